// Package localruntime runs pipeline workloads as local OS processes. It is
// the single-host stand-in for a cluster orchestrator: execution jobs are
// child processes with bounded retries, worker deployments are long-lived
// child processes kept alive by a restart loop, and scheduler cronjobs fire
// through an in-process cron.
//
// Job state lives in Redis so that every binary sharing the Redis instance
// sees the same registry. The aggregator in the API server can poll a job
// that the worker binary launched, and a job name absent from the registry
// means the job was reaped, not that it never ran. Deployments and cronjobs
// stay process-local: only the API server's deployer creates them, so no
// other binary needs to see them.
package localruntime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/weftlabs/weft-backend/internal/cluster"
	"github.com/weftlabs/weft-backend/internal/platform/envutil"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
)

const (
	stateRunning  = "running"
	stateComplete = "complete"
	stateFailed   = "failed"
)

type deploymentEntry struct {
	spec    cluster.DeploymentSpec
	cancels []context.CancelFunc
}

type cronEntry struct {
	spec cluster.CronJobSpec
	id   cron.EntryID
}

type Runtime struct {
	rdb          *goredis.Client
	log          *logger.Logger
	processorBin string
	workerBin    string
	schedulerBin string
	cron         *cron.Cron

	mu          sync.Mutex
	procs       map[string]context.CancelFunc
	deployments map[string]*deploymentEntry
	cronjobs    map[string]*cronEntry
}

func New(rdb *goredis.Client, baseLog *logger.Logger) *Runtime {
	log := baseLog.With("service", "LocalRuntime")
	r := &Runtime{
		rdb:          rdb,
		log:          log,
		processorBin: envutil.GetEnv("PROCESSOR_BIN", "weft-processor", log),
		workerBin:    envutil.GetEnv("WORKER_BIN", "weft-worker", log),
		schedulerBin: envutil.GetEnv("SCHEDULER_BIN", "weft-scheduler", log),
		cron:         cron.New(),
		procs:        make(map[string]context.CancelFunc),
		deployments:  make(map[string]*deploymentEntry),
		cronjobs:     make(map[string]*cronEntry),
	}
	r.cron.Start()
	return r
}

func (r *Runtime) Stop() {
	r.cron.Stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.procs {
		cancel()
	}
	for _, dep := range r.deployments {
		for _, cancel := range dep.cancels {
			cancel()
		}
	}
}

func jobsKey(namespace string) string {
	return "runtime:jobs:" + namespace
}

func key(namespace, name string) string {
	return namespace + "/" + name
}

func (r *Runtime) runProcess(ctx context.Context, bin string, env map[string]string) error {
	cmd := exec.CommandContext(ctx, bin)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// settleJob records the terminal state of a job this runtime owns. The write
// is guarded on the registry entry still existing: an owner finishing after
// a purge observes the deleted entry and drops the update, so reaped jobs
// are never resurrected.
func (r *Runtime) settleJob(namespace, name, state string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := r.rdb.HExists(ctx, jobsKey(namespace), name).Result()
	if err != nil {
		r.log.Warn("job registry lookup failed", "job", name, "error", err)
		return
	}
	if !exists {
		return
	}
	if err := r.rdb.HSet(ctx, jobsKey(namespace), name, state).Err(); err != nil {
		r.log.Warn("job registry write failed", "job", name, "state", state, "error", err)
	}
}

// LaunchJob registers the job and starts the processor binary for one chunk.
// Each retry is a fresh process; the job settles failed only after the
// backoff limit is exhausted.
func (r *Runtime) LaunchJob(ctx context.Context, spec cluster.JobSpec) error {
	set, err := r.rdb.HSetNX(ctx, jobsKey(spec.Namespace), spec.Name, stateRunning).Result()
	if err != nil {
		return fmt.Errorf("localruntime: register job %s: %w", spec.Name, err)
	}
	if !set {
		return fmt.Errorf("localruntime: job %s already exists", spec.Name)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.procs[key(spec.Namespace, spec.Name)] = cancel
	r.mu.Unlock()

	env := map[string]string{
		"JOB_ID":         spec.JobID,
		"CHUNK_DATA_KEY": spec.ChunkKey,
		"INTEGRATION_ID": spec.IntegrationID,
		"NAMESPACE":      spec.Namespace,
	}

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.procs, key(spec.Namespace, spec.Name))
			r.mu.Unlock()
		}()

		attempts := spec.BackoffLimit + 1
		if attempts < 1 {
			attempts = 1
		}
		var err error
		for attempt := 0; attempt < attempts; attempt++ {
			if procCtx.Err() != nil {
				return
			}
			err = r.runProcess(procCtx, r.processorBin, env)
			if err == nil {
				break
			}
			r.log.Warn("execution job attempt failed",
				"job", spec.Name, "attempt", attempt+1, "attempts", attempts, "error", err)
		}

		if err == nil {
			r.settleJob(spec.Namespace, spec.Name, stateComplete)
		} else {
			r.settleJob(spec.Namespace, spec.Name, stateFailed)
		}
	}()
	return nil
}

// CountJobs counts live (non-terminal) jobs whose name contains pattern.
func (r *Runtime) CountJobs(ctx context.Context, namespace, pattern string) (int, error) {
	entries, err := r.rdb.HGetAll(ctx, jobsKey(namespace)).Result()
	if err != nil {
		return 0, fmt.Errorf("localruntime: list jobs in %s: %w", namespace, err)
	}
	count := 0
	for name, state := range entries {
		if strings.Contains(name, pattern) && state == stateRunning {
			count++
		}
	}
	return count, nil
}

func (r *Runtime) GetJobState(ctx context.Context, namespace, name string) (cluster.JobState, error) {
	state, err := r.rdb.HGet(ctx, jobsKey(namespace), name).Result()
	if errors.Is(err, goredis.Nil) {
		return cluster.JobState{Found: false}, nil
	}
	if err != nil {
		return cluster.JobState{}, fmt.Errorf("localruntime: job state %s: %w", name, err)
	}
	return cluster.JobState{
		Found:    true,
		Complete: state == stateComplete,
		Failed:   state == stateFailed,
	}, nil
}

func (r *Runtime) DeleteJobs(ctx context.Context, namespace, pattern string) error {
	entries, err := r.rdb.HGetAll(ctx, jobsKey(namespace)).Result()
	if err != nil {
		return fmt.Errorf("localruntime: list jobs in %s: %w", namespace, err)
	}
	var names []string
	for name := range entries {
		if strings.Contains(name, pattern) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	if err := r.rdb.HDel(ctx, jobsKey(namespace), names...).Err(); err != nil {
		return fmt.Errorf("localruntime: delete jobs in %s: %w", namespace, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if cancel, ok := r.procs[key(namespace, name)]; ok {
			cancel()
			delete(r.procs, key(namespace, name))
		}
	}
	return nil
}

// DeletePods is a no-op locally; killing the job process is the whole story.
func (r *Runtime) DeletePods(_ context.Context, _, _ string) error {
	return nil
}

func (r *Runtime) DeleteCronJobs(_ context.Context, namespace, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, entry := range r.cronjobs {
		if !strings.HasPrefix(k, namespace+"/") || !strings.Contains(entry.spec.Name, pattern) {
			continue
		}
		r.cron.Remove(entry.id)
		delete(r.cronjobs, k)
	}
	return nil
}

// CreateDeployment starts the requested replica count of the worker binary
// and restarts any replica that exits, so a worker that crashed on a bad
// descriptor comes back after a short pause.
func (r *Runtime) CreateDeployment(_ context.Context, spec cluster.DeploymentSpec) error {
	k := key(spec.Namespace, spec.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.deployments[k]; exists {
		return fmt.Errorf("localruntime: deployment %s already exists", spec.Name)
	}

	replicas := spec.Replicas
	if replicas < 1 {
		replicas = 1
	}
	entry := &deploymentEntry{spec: spec}
	for i := 0; i < replicas; i++ {
		procCtx, cancel := context.WithCancel(context.Background())
		entry.cancels = append(entry.cancels, cancel)
		go func(replica int) {
			for {
				err := r.runProcess(procCtx, r.workerBin, spec.Env)
				if procCtx.Err() != nil {
					return
				}
				if err != nil {
					r.log.Error("worker process exited", "deployment", spec.Name, "replica", replica, "error", err)
				} else {
					r.log.Warn("worker process exited cleanly, restarting", "deployment", spec.Name, "replica", replica)
				}
				select {
				case <-procCtx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}(i)
	}
	r.deployments[k] = entry
	return nil
}

func (r *Runtime) DeleteDeployment(_ context.Context, namespace, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.deployments[key(namespace, name)]
	if !ok {
		return nil
	}
	for _, cancel := range entry.cancels {
		cancel()
	}
	delete(r.deployments, key(namespace, name))
	return nil
}

func (r *Runtime) CreateCronJob(_ context.Context, spec cluster.CronJobSpec) error {
	k := key(spec.Namespace, spec.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cronjobs[k]; exists {
		return fmt.Errorf("localruntime: cronjob %s already exists", spec.Name)
	}

	id, err := r.cron.AddFunc(spec.Schedule, func() {
		if err := r.runProcess(context.Background(), r.schedulerBin, spec.Env); err != nil {
			r.log.Error("scheduler run failed", "cronjob", spec.Name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("localruntime: schedule cronjob %s: %w", spec.Name, err)
	}
	r.cronjobs[k] = &cronEntry{spec: spec, id: id}
	return nil
}

func (r *Runtime) DeleteCronJob(_ context.Context, namespace, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cronjobs[key(namespace, name)]
	if !ok {
		return nil
	}
	r.cron.Remove(entry.id)
	delete(r.cronjobs, key(namespace, name))
	return nil
}

var _ cluster.Runtime = (*Runtime)(nil)
