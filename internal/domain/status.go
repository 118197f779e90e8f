package domain

// Status is the shared state machine for integrations, parent groups and
// chunk processing jobs. Parents derive their status from their children via
// the rollup in internal/pipeline; only the scheduler and worker drive the
// initial NOT_STARTED/QUEUED transitions directly.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusQueued     Status = "queued"
	StatusRunning    Status = "running"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a status is a resting state. A parent group is
// only eligible for re-scheduling once it is terminal (or never ran).
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// SourceType identifies the external system an integration pulls from.
type SourceType string

const (
	SourceSlack  SourceType = "slack"
	SourceGithub SourceType = "github"
)

// GroupType identifies the kind of parent group a descriptor refers to.
type GroupType string

const (
	GroupSlackChannel GroupType = "slack_channel"
	GroupGithubRepo   GroupType = "github_repository"
)

// ExecutionRole distinguishes the two long-lived processor resources that
// exist per integration: the cron-driven scheduler and the queue-draining
// worker.
type ExecutionRole string

const (
	RoleScheduler ExecutionRole = "scheduler"
	RoleWorker    ExecutionRole = "worker"
)

// ResourceKind is the orchestrator-level resource type backing a role.
type ResourceKind string

const (
	KindDeployment ResourceKind = "deployment"
	KindCronJob    ResourceKind = "cronjob"
)
