// Package types defines the domain model shared across WaffleMaker: the
// declarative service spec, the facts the Registry persists, and the jobs
// that flow through the queue and reconciler.
package types

import "time"

// Deployment is one reconciled source commit. It is inserted atomically with
// its Changes when a plan is accepted and is never mutated afterward.
type Deployment struct {
	Commit    string
	Changes   []Change
	CreatedAt time.Time
}

// ChangeAction is the two-valued action a Change can record. "added" folds
// into ChangeModified; see DESIGN.md for why the enum stays two-valued.
type ChangeAction string

const (
	ChangeModified ChangeAction = "modified"
	ChangeDeleted  ChangeAction = "deleted"
)

// Change is one file-level diff entry between two commits, restricted to the
// services/ subtree.
type Change struct {
	Commit string
	Path   string
	Action ChangeAction
}

// Service is the declarative unit: a stable id derived from the defining
// file's path, plus its parsed spec. A Service exists iff its file exists in
// the most recently reconciled commit.
type Service struct {
	ID        string
	Spec      ServiceSpec
	Domain    string
	Path      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ServiceSpec is the validated, in-memory form of a service's TOML
// definition (§4.3).
type ServiceSpec struct {
	Dependencies Dependencies
	Docker       DockerSpec
	Environment  map[string]string
	Secrets      map[string]SecretDecl
	Web          *WebSpec
	Health       *HealthCheckSpec
}

// HealthCheckKind discriminates a declared health check's probing strategy.
type HealthCheckKind string

const (
	HealthCheckHTTP HealthCheckKind = "http"
	HealthCheckTCP  HealthCheckKind = "tcp"
	HealthCheckExec HealthCheckKind = "exec"
)

// HealthCheckSpec is a service's optional HealthProbe declaration. Omitted
// entirely, the Reconciler falls back to the "no healthcheck" rule of three
// consecutive running=true polls (§9).
type HealthCheckSpec struct {
	Kind HealthCheckKind

	// http: path appended to the candidate container's inspected address.
	Path string

	// tcp: address to dial, defaulting to the candidate container's
	// inspected address when empty.
	Address string

	// exec: command run against the candidate container.
	Command []string
}

// Dependencies holds the optional postgres/redis dependency declarations.
type Dependencies struct {
	Postgres *DepRef
	Redis    *DepRef
}

// DepRef is one of: enabled (bool), a renamed variable (string), or a full
// {role, name} form. Enabled reports whether the dependency participates at
// all; Rename/Role/VarName capture whichever shape the TOML decoder saw.
type DepRef struct {
	Enabled bool
	Rename  string // non-empty if declared as a bare string (variable rename)
	Role    string // resolved role, defaulting to the service id
	VarName string // resolved env var name, after applying Rename
}

// DockerSpec describes the container image and its update policy.
type DockerSpec struct {
	Image  string
	Tag    string // defaults to "latest"
	Update UpdatePolicy
}

// UpdatePolicy controls whether an image-registry push triggers a Reconcile.
type UpdatePolicy struct {
	Automatic      bool
	AdditionalTags []string
}

// SecretKind discriminates the three SecretDecl shapes.
type SecretKind string

const (
	SecretLoad     SecretKind = "load"
	SecretAWS      SecretKind = "aws"
	SecretGenerate SecretKind = "generate"
)

// GenerateFormat is the output alphabet for a "generate" secret.
type GenerateFormat string

const (
	GenerateAlphanumeric GenerateFormat = "alphanumeric"
	GenerateBase64       GenerateFormat = "base64"
	GenerateHex          GenerateFormat = "hex"
)

// AWSPart selects which half of an AWS credential pair a secret exposes.
type AWSPart string

const (
	AWSPartAccess AWSPart = "access"
	AWSPartSecret AWSPart = "secret"
)

// SecretDecl is a single entry of spec.secrets (§3).
type SecretDecl struct {
	Kind SecretKind

	// aws
	Role string
	Part AWSPart

	// generate
	Format     GenerateFormat
	Length     int
	Regenerate bool
}

// WebSpec declares ingress/DNS participation.
type WebSpec struct {
	Enabled bool
	Base    string
}

// ContainerStatus is the lifecycle status of a Container row (§3).
type ContainerStatus string

const (
	ContainerConfiguring ContainerStatus = "configuring"
	ContainerPulling     ContainerStatus = "pulling"
	ContainerCreating    ContainerStatus = "creating"
	ContainerStarting    ContainerStatus = "starting"
	ContainerHealthy     ContainerStatus = "healthy"
	ContainerUnhealthy   ContainerStatus = "unhealthy"
	ContainerStopped     ContainerStatus = "stopped"
)

// Container is one row per Service currently backed by a running container.
type Container struct {
	ServiceID string
	RuntimeID string
	Image     string
	Status    ContainerStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Lease is one row per outstanding dynamic credential (§3).
type Lease struct {
	ServiceID  string
	ID         string
	Expiration time.Time
	TTL        time.Duration
}

// JobKind discriminates the Reconciler job shapes (§4.7, §4.1).
type JobKind string

const (
	JobReconcile JobKind = "reconcile"
	JobDelete    JobKind = "delete"
	JobFail      JobKind = "fail"
)

// Job is one unit of work produced by the Planner or a webhook trigger and
// consumed by the worker pool.
type Job struct {
	Kind       JobKind
	ServiceID  string
	Spec       *ServiceSpec // populated for JobReconcile
	Reason     string       // populated for JobFail
	EnqueuedAt time.Time
}
