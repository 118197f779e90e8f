package cluster

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a five-field cron expression before it is stamped
// onto a scheduler cronjob.
func ValidateSchedule(schedule string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return nil
}

// Deployer creates and destroys the two long-lived processor resources each
// integration owns: a worker deployment draining the queue and a scheduler
// cronjob feeding it.
type Deployer struct {
	runtime Runtime
	log     *logger.Logger
}

func NewDeployer(runtime Runtime, baseLog *logger.Logger) *Deployer {
	return &Deployer{
		runtime: runtime,
		log:     baseLog.With("service", "Deployer"),
	}
}

func (d *Deployer) env(integration *types.Integration) map[string]string {
	return map[string]string{
		"INTEGRATION_ID": integration.ID.String(),
		"NAMESPACE":      integration.Namespace,
	}
}

// DeployWorker creates the worker deployment and returns its resource name.
func (d *Deployer) DeployWorker(ctx context.Context, integration *types.Integration, replicas int) (string, error) {
	name := ResourceName(integration.Source, types.RoleWorker, types.KindDeployment)
	spec := DeploymentSpec{
		Name:      name,
		Namespace: integration.Namespace,
		Replicas:  replicas,
		Env:       d.env(integration),
	}
	if err := d.runtime.CreateDeployment(ctx, spec); err != nil {
		return "", fmt.Errorf("deploy worker %s: %w", name, err)
	}
	d.log.Info("Deployed worker", "name", name, "namespace", integration.Namespace, "replicas", replicas)
	return name, nil
}

// DeployScheduler creates the scheduler cronjob on the integration's refresh
// schedule and returns its resource name.
func (d *Deployer) DeployScheduler(ctx context.Context, integration *types.Integration) (string, error) {
	if err := ValidateSchedule(integration.RefreshSchedule); err != nil {
		return "", err
	}
	name := ResourceName(integration.Source, types.RoleScheduler, types.KindCronJob)
	spec := CronJobSpec{
		Name:      name,
		Namespace: integration.Namespace,
		Schedule:  integration.RefreshSchedule,
		Env:       d.env(integration),
	}
	if err := d.runtime.CreateCronJob(ctx, spec); err != nil {
		return "", fmt.Errorf("deploy scheduler %s: %w", name, err)
	}
	d.log.Info("Deployed scheduler", "name", name, "namespace", integration.Namespace, "schedule", integration.RefreshSchedule)
	return name, nil
}

// Teardown destroys the worker deployment and scheduler cronjob. The queue is
// left intact so a re-activated integration picks up where it left off.
func (d *Deployer) Teardown(ctx context.Context, integration *types.Integration) error {
	deploymentName := ResourceName(integration.Source, types.RoleWorker, types.KindDeployment)
	cronjobName := ResourceName(integration.Source, types.RoleScheduler, types.KindCronJob)

	if err := d.runtime.DeleteDeployment(ctx, integration.Namespace, deploymentName); err != nil {
		return fmt.Errorf("teardown deployment %s: %w", deploymentName, err)
	}
	if err := d.runtime.DeleteCronJob(ctx, integration.Namespace, cronjobName); err != nil {
		return fmt.Errorf("teardown cronjob %s: %w", cronjobName, err)
	}
	d.log.Info("Tore down processor resources", "deployment", deploymentName, "cronjob", cronjobName)
	return nil
}

// PurgeJobs issues best-effort deletion of every execution job and pod left
// behind by an integration. In-flight jobs that finish after this races
// ahead keep whatever database state they already wrote.
func (d *Deployer) PurgeJobs(ctx context.Context, integration *types.Integration) error {
	pattern := ProcessorPattern(integration.Source)
	if err := d.runtime.DeleteJobs(ctx, integration.Namespace, pattern); err != nil {
		return fmt.Errorf("purge jobs %s: %w", pattern, err)
	}
	if err := d.runtime.DeletePods(ctx, integration.Namespace, pattern); err != nil {
		return fmt.Errorf("purge pods %s: %w", pattern, err)
	}
	return nil
}
