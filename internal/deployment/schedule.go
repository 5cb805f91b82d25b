package deployment

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kandev/conductor/internal/common/logger"
)

// Scheduler ticks registered Deployments on their cron expressions, calling
// Service.Trigger unless schedule_skip_if_active finds the previous run
// still in flight — a tick that fires while the deployment is active is
// skipped, never queued, per spec.md §4.6.
type Scheduler struct {
	cron         *cron.Cron
	service      *Service
	tracker      *Tracker
	skipIfActive bool
	log          *logger.Logger
}

// NewScheduler builds a Scheduler. skipIfActive mirrors the
// schedule_skip_if_active config option.
func NewScheduler(service *Service, tracker *Tracker, skipIfActive bool, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	return &Scheduler{
		cron:         cron.New(),
		service:      service,
		tracker:      tracker,
		skipIfActive: skipIfActive,
		log:          log.WithFields(zap.String("component", "deployment.scheduler")),
	}
}

// Start registers every scheduled Deployment's cron job and starts ticking.
// Deployments with an empty Cron field are manually-triggered only and are
// skipped here.
func (s *Scheduler) Start() error {
	for _, d := range s.tracker.All() {
		if d.Cron == "" {
			continue
		}
		deploymentID := d.ID
		if _, err := s.cron.AddFunc(d.Cron, func() { s.tick(deploymentID) }); err != nil {
			return err
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any running job functions (not
// the deployment executions themselves, which run independently) to
// return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick(deploymentID string) {
	if s.skipIfActive && s.tracker.IsActive(deploymentID) {
		s.log.Info("schedule tick skipped, previous run still active", zap.String("deployment_id", deploymentID))
		return
	}

	if _, err := s.service.Trigger(context.Background(), deploymentID); err != nil {
		s.log.Error("scheduled trigger failed", zap.String("deployment_id", deploymentID), zap.Error(err))
	}
}
