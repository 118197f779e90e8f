// Package clustertest provides an in-memory cluster.Runtime for pipeline
// tests.
package clustertest

import (
	"context"
	"strings"
	"sync"

	"github.com/weftlabs/weft-backend/internal/cluster"
)

type FakeRuntime struct {
	mu sync.Mutex

	Jobs        map[string]cluster.JobSpec
	States      map[string]cluster.JobState
	Deployments map[string]cluster.DeploymentSpec
	CronJobs    map[string]cluster.CronJobSpec

	DeletedJobPatterns []string
	DeletedPodPatterns []string

	// LaunchErr, when set, fails the next LaunchJob call.
	LaunchErr error
}

func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		Jobs:        make(map[string]cluster.JobSpec),
		States:      make(map[string]cluster.JobState),
		Deployments: make(map[string]cluster.DeploymentSpec),
		CronJobs:    make(map[string]cluster.CronJobSpec),
	}
}

func (f *FakeRuntime) LaunchJob(_ context.Context, spec cluster.JobSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LaunchErr != nil {
		err := f.LaunchErr
		f.LaunchErr = nil
		return err
	}
	f.Jobs[spec.Name] = spec
	f.States[spec.Name] = cluster.JobState{Found: true}
	return nil
}

func (f *FakeRuntime) CountJobs(_ context.Context, _ string, pattern string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for name := range f.Jobs {
		if strings.Contains(name, pattern) {
			count++
		}
	}
	return count, nil
}

func (f *FakeRuntime) GetJobState(_ context.Context, _ string, name string) (cluster.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.States[name]
	if !ok {
		return cluster.JobState{Found: false}, nil
	}
	return state, nil
}

// SetState overrides the reported state for a job, simulating the
// orchestrator marking it Complete or Failed.
func (f *FakeRuntime) SetState(name string, state cluster.JobState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.States[name] = state
}

func (f *FakeRuntime) DeleteJobs(_ context.Context, _ string, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedJobPatterns = append(f.DeletedJobPatterns, pattern)
	for name := range f.Jobs {
		if strings.Contains(name, pattern) {
			delete(f.Jobs, name)
			delete(f.States, name)
		}
	}
	return nil
}

func (f *FakeRuntime) DeletePods(_ context.Context, _ string, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedPodPatterns = append(f.DeletedPodPatterns, pattern)
	return nil
}

func (f *FakeRuntime) DeleteCronJobs(_ context.Context, _ string, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name := range f.CronJobs {
		if strings.Contains(name, pattern) {
			delete(f.CronJobs, name)
		}
	}
	return nil
}

func (f *FakeRuntime) CreateDeployment(_ context.Context, spec cluster.DeploymentSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deployments[spec.Name] = spec
	return nil
}

func (f *FakeRuntime) DeleteDeployment(_ context.Context, _ string, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Deployments, name)
	return nil
}

func (f *FakeRuntime) CreateCronJob(_ context.Context, spec cluster.CronJobSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CronJobs[spec.Name] = spec
	return nil
}

func (f *FakeRuntime) DeleteCronJob(_ context.Context, _ string, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.CronJobs, name)
	return nil
}

var _ cluster.Runtime = (*FakeRuntime)(nil)
