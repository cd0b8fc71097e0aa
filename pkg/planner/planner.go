package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/cuemby/wafflemaker/pkg/spec"
	"github.com/cuemby/wafflemaker/pkg/types"
)

const servicesPrefix = "services/"

// Planner computes Deployments and Jobs from a git repository checkout.
type Planner struct {
	repoPath string
}

// New builds a Planner over the git repository checked out at repoPath.
func New(repoPath string) *Planner {
	return &Planner{repoPath: repoPath}
}

// Plan diffs fromCommit (the Registry's LastCommit, "" if none recorded)
// against HEAD and returns the Deployment to record plus the ordered job
// list to enqueue. A nil Deployment and empty job list means HEAD has not
// moved since fromCommit.
func (p *Planner) Plan(fromCommit string) (*types.Deployment, []types.Job, error) {
	repo, err := git.PlainOpen(p.repoPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve head: %w", err)
	}
	toHash := head.Hash().String()

	if toHash == fromCommit {
		return nil, nil, nil
	}

	toCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, nil, fmt.Errorf("load head commit: %w", err)
	}

	var changes []types.Change
	if fromCommit == "" {
		changes, err = fullReconcileChanges(toCommit, toHash)
	} else {
		changes, err = diffChanges(repo, fromCommit, toHash)
	}
	if err != nil {
		return nil, nil, err
	}

	jobs, err := buildJobs(toCommit, toHash, changes)
	if err != nil {
		return nil, nil, err
	}

	deployment := &types.Deployment{
		Commit:    toHash,
		Changes:   changes,
		CreatedAt: time.Now(),
	}

	return deployment, jobs, nil
}

func fullReconcileChanges(commit *object.Commit, toHash string) ([]types.Change, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}

	var out []types.Change
	err = tree.Files().ForEach(func(f *object.File) error {
		if strings.HasPrefix(f.Name, servicesPrefix) && strings.HasSuffix(f.Name, ".toml") {
			out = append(out, types.Change{Commit: toHash, Path: f.Name, Action: types.ChangeModified})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk tree: %w", err)
	}
	return out, nil
}

func diffChanges(repo *git.Repository, fromHash, toHash string) ([]types.Change, error) {
	fromCommit, err := repo.CommitObject(plumbing.NewHash(fromHash))
	if err != nil {
		return nil, fmt.Errorf("load from commit %s: %w", fromHash, err)
	}
	toCommit, err := repo.CommitObject(plumbing.NewHash(toHash))
	if err != nil {
		return nil, fmt.Errorf("load to commit %s: %w", toHash, err)
	}

	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load from tree: %w", err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load to tree: %w", err)
	}

	diffs, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}

	var out []types.Change
	for _, d := range diffs {
		path := d.To.Name
		action := types.ChangeModified
		if path == "" {
			path = d.From.Name
			action = types.ChangeDeleted
		}
		if !strings.HasPrefix(path, servicesPrefix) || !strings.HasSuffix(path, ".toml") {
			continue
		}
		out = append(out, types.Change{Commit: toHash, Path: path, Action: action})
	}
	return out, nil
}

// buildJobs turns changes into the ordered job list: every Delete before
// any Reconcile/Fail, lexicographic by service id within each group.
func buildJobs(commit *object.Commit, toHash string, changes []types.Change) ([]types.Job, error) {
	now := time.Now()
	var deletes, rest []types.Job

	for _, c := range changes {
		serviceID := spec.ServiceID(c.Path)

		if c.Action == types.ChangeDeleted {
			deletes = append(deletes, types.Job{Kind: types.JobDelete, ServiceID: serviceID, EnqueuedAt: now})
			continue
		}

		file, err := commit.File(c.Path)
		if err != nil {
			rest = append(rest, types.Job{Kind: types.JobFail, ServiceID: serviceID, Reason: err.Error(), EnqueuedAt: now})
			continue
		}
		content, err := file.Contents()
		if err != nil {
			rest = append(rest, types.Job{Kind: types.JobFail, ServiceID: serviceID, Reason: err.Error(), EnqueuedAt: now})
			continue
		}

		parsed, err := spec.Parse([]byte(content))
		if err != nil {
			rest = append(rest, types.Job{Kind: types.JobFail, ServiceID: serviceID, Reason: err.Error(), EnqueuedAt: now})
			continue
		}

		rest = append(rest, types.Job{Kind: types.JobReconcile, ServiceID: serviceID, Spec: &parsed, EnqueuedAt: now})
	}

	sortJobsByServiceID(deletes)
	sortJobsByServiceID(rest)

	return append(deletes, rest...), nil
}

func sortJobsByServiceID(jobs []types.Job) {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ServiceID < jobs[j].ServiceID })
}
