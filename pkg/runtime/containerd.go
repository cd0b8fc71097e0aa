package runtime

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"

	"github.com/cuemby/wafflemaker/pkg/wferrors"
)

const (
	// DefaultNamespace is the containerd namespace WaffleMaker's containers
	// run in, isolating them from any other containerd user on the host.
	DefaultNamespace = "wafflemaker"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// ContainerdDriver implements ContainerDriver on top of containerd.
type ContainerdDriver struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdDriver connects to the containerd socket at socketPath,
// defaulting to DefaultSocketPath.
func NewContainerdDriver(socketPath, namespace string) (*ContainerdDriver, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}

	return &ContainerdDriver{client: client, namespace: namespace}, nil
}

// Close releases the containerd client connection.
func (d *ContainerdDriver) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

func (d *ContainerdDriver) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, d.namespace)
}

func (d *ContainerdDriver) Pull(ctx context.Context, image string) error {
	ctx = d.ctx(ctx)
	if _, err := d.client.Pull(ctx, image, containerd.WithPullUnpack); err != nil {
		return wferrors.Wrap(wferrors.KindUpstream, fmt.Sprintf("pull image %s", image), err)
	}
	return nil
}

func (d *ContainerdDriver) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	ctx = d.ctx(ctx)

	image, err := d.client.GetImage(ctx, spec.Image)
	if err != nil {
		return "", wferrors.Wrap(wferrors.KindUpstream, fmt.Sprintf("get image %s", spec.Image), err)
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
	}

	container, err := d.client.NewContainer(
		ctx,
		spec.Name,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.Name+"-snapshot", image),
		containerd.WithNewSpec(opts...),
		containerd.WithContainerLabels(spec.Labels),
	)
	if err != nil {
		return "", wferrors.Wrap(wferrors.KindUpstream, "create container", err)
	}

	return container.ID(), nil
}

func (d *ContainerdDriver) Start(ctx context.Context, runtimeID string) error {
	ctx = d.ctx(ctx)

	container, err := d.client.LoadContainer(ctx, runtimeID)
	if err != nil {
		return wferrors.Wrap(wferrors.KindUpstream, fmt.Sprintf("load container %s", runtimeID), err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return wferrors.Wrap(wferrors.KindUpstream, "create task", err)
	}

	if err := task.Start(ctx); err != nil {
		return wferrors.Wrap(wferrors.KindUpstream, "start task", err)
	}

	return nil
}

func (d *ContainerdDriver) Inspect(ctx context.Context, runtimeID string) (Status, error) {
	ctx = d.ctx(ctx)

	container, err := d.client.LoadContainer(ctx, runtimeID)
	if err != nil {
		return Status{State: StateUnknown}, wferrors.Wrap(wferrors.KindUpstream, fmt.Sprintf("load container %s", runtimeID), err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return Status{State: StateStopped}, nil
	}

	taskStatus, err := task.Status(ctx)
	if err != nil {
		return Status{State: StateUnknown}, wferrors.Wrap(wferrors.KindUpstream, "task status", err)
	}

	state := StateStopped
	if taskStatus.Status == containerd.Running || taskStatus.Status == containerd.Paused {
		state = StateRunning
	}

	address, _ := d.address(ctx, task.Pid())
	return Status{State: state, Address: address}, nil
}

func (d *ContainerdDriver) Stop(ctx context.Context, runtimeID string, grace time.Duration) error {
	ctx = d.ctx(ctx)

	container, err := d.client.LoadContainer(ctx, runtimeID)
	if err != nil {
		return wferrors.Wrap(wferrors.KindUpstream, fmt.Sprintf("load container %s", runtimeID), err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		// no task means the container was never started
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return wferrors.Wrap(wferrors.KindUpstream, "send SIGTERM", err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return wferrors.Wrap(wferrors.KindUpstream, "wait for task exit", err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return wferrors.Wrap(wferrors.KindUpstream, "send SIGKILL", err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return wferrors.Wrap(wferrors.KindUpstream, "delete task", err)
	}

	return nil
}

func (d *ContainerdDriver) Remove(ctx context.Context, runtimeID string) error {
	ctx = d.ctx(ctx)

	container, err := d.client.LoadContainer(ctx, runtimeID)
	if err != nil {
		// already gone; remove is idempotent
		return nil
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return wferrors.Wrap(wferrors.KindUpstream, fmt.Sprintf("delete container %s", runtimeID), err)
	}

	return nil
}

// address extracts the container's eth0 IPv4 address by entering its
// network namespace via nsenter, since containerd's client does not expose
// routed addresses directly for the runc runtime.
func (d *ContainerdDriver) address(ctx context.Context, pid uint32) (string, error) {
	if pid == 0 {
		return "", fmt.Errorf("task has no pid")
	}

	cmd := exec.CommandContext(ctx, "nsenter", "-t", fmt.Sprintf("%d", pid), "-n", "ip", "-4", "addr", "show", "eth0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("get container address: %w (output: %s)", err, string(output))
	}

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "inet ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip, _, err := net.ParseCIDR(fields[1])
		if err != nil {
			return "", fmt.Errorf("parse container address %s: %w", fields[1], err)
		}
		return ip.String(), nil
	}

	return "", fmt.Errorf("no address found for container")
}
