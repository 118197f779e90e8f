package cluster

import (
	"context"

	types "github.com/weftlabs/weft-backend/internal/domain"
)

// DefaultBackoffLimit is the bounded automatic retry count stamped on every
// execution job. A new attempt is a fresh isolated run; individual attempts
// are never restarted in place.
const DefaultBackoffLimit = 3

// JobSpec is the launch contract for one execution job. JobID, ChunkKey,
// IntegrationID and Namespace are propagated to the process as environment
// inputs; everything else it needs it fetches from the chunk store.
type JobSpec struct {
	Name          string
	Namespace     string
	JobID         string
	ChunkKey      string
	IntegrationID string
	Source        types.SourceType
	BackoffLimit  int
}

// JobState is the orchestrator's view of a job. Found=false means the job no
// longer exists; Complete and Failed mirror the runtime's terminal condition
// flags and are mutually exclusive.
type JobState struct {
	Found    bool
	Complete bool
	Failed   bool
}

// DeploymentSpec describes a long-running worker replica set.
type DeploymentSpec struct {
	Name      string
	Namespace string
	Replicas  int
	Env       map[string]string
}

// CronJobSpec describes the periodic scheduler trigger.
type CronJobSpec struct {
	Name      string
	Namespace string
	Schedule  string
	Env       map[string]string
}

// Runtime is the cluster-orchestrator boundary. The pipeline consumes these
// capabilities without caring what backs them; localruntime provides a
// single-host process implementation.
type Runtime interface {
	LaunchJob(ctx context.Context, spec JobSpec) error
	CountJobs(ctx context.Context, namespace, pattern string) (int, error)
	GetJobState(ctx context.Context, namespace, name string) (JobState, error)

	// DeleteJobs / DeletePods / DeleteCronJobs are best-effort, not
	// synchronously awaited, and ignore already-missing resources.
	DeleteJobs(ctx context.Context, namespace, pattern string) error
	DeletePods(ctx context.Context, namespace, pattern string) error
	DeleteCronJobs(ctx context.Context, namespace, pattern string) error

	CreateDeployment(ctx context.Context, spec DeploymentSpec) error
	DeleteDeployment(ctx context.Context, namespace, name string) error
	CreateCronJob(ctx context.Context, spec CronJobSpec) error
	DeleteCronJob(ctx context.Context, namespace, name string) error
}

// StatusFromJobState derives a processing-job status from the orchestrator's
// condition flags. A job that is not found is reported as SUCCESS: garbage
// collection deletes only successful jobs, so absence implies success.
func StatusFromJobState(state JobState) types.Status {
	switch {
	case !state.Found:
		return types.StatusSuccess
	case state.Complete:
		return types.StatusSuccess
	case state.Failed:
		return types.StatusFailed
	default:
		return types.StatusRunning
	}
}
