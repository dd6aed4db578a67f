package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
)

//Runner runs background jobs on cron schedules. Specs accept an optional
//seconds field as well as descriptors such as "@every 10s".
type Runner struct {
	cron    *cron.Cron
	log     logging.Logger
	baseCtx context.Context
}

//New creates a stopped Runner. Jobs are skipped once baseCtx is done.
func New(baseCtx context.Context, log logging.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	return &Runner{
		cron:    cron.New(cron.WithParser(cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		log:     log,
		baseCtx: baseCtx,
	}
}

//Add schedules job. The job is skipped once the base context is done.
func (r *Runner) Add(name, spec string, job func(context.Context)) error {
	_, err := r.cron.AddFunc(spec, func() {
		if r.baseCtx.Err() != nil {
			return
		}
		job(r.baseCtx)
	})

	if err != nil {
		return fmt.Errorf("failed to schedule %s with spec %q: %w", name, spec, err)
	}

	r.log.Infof("Scheduled %s at %s", name, spec)
	return nil
}

//Len returns the number of scheduled jobs
func (r *Runner) Len() int {
	return len(r.cron.Entries())
}

//Start runs the scheduled jobs in the background
func (r *Runner) Start() {
	r.log.Infof("Scheduler started")
	r.cron.Start()
}

//Stop stops scheduling and waits for running jobs to finish
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.log.Infof("Scheduler stopped")
}
