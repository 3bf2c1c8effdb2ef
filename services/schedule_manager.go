package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Cron specs in the lab timezone.
const (
	SpecMorningReminder = "0 7 * * *"
	SpecEveningReminder = "0 19 * * *"
	SpecDailyReport     = "0 20 * * *"
	SpecSemesterUpdate  = "0 0 1 2,8 *"
	SpecLogArchive      = "0 * * * *"
	SpecLoanReminder    = "30 8 * * *"
)

const logArchiveAgeDays = 30

// ScheduleJobs holds the services driven by the scheduler. Nil members
// leave their job unscheduled.
type ScheduleJobs struct {
	Reminders     *ReminderService
	Semesters     *SemesterService
	Logs          *LogArchiveService
	LoanReminders *LoanReminderScheduler
	DailyReport   bool
}

// ScheduleManager runs the periodic jobs on a cron.
type ScheduleManager struct {
	cron    *cron.Cron
	jobs    ScheduleJobs
	timeout time.Duration
}

func NewScheduleManager(jobs ScheduleJobs, loc *time.Location) *ScheduleManager {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	return &ScheduleManager{
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		jobs:    jobs,
		timeout: 5 * time.Minute,
	}
}

func (sm *ScheduleManager) run(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			logrus.WithFields(logrus.Fields{"job": name, "error": err.Error()}).Error("scheduled job failed")
			return
		}
		logrus.WithFields(logrus.Fields{"job": name, "took": time.Since(start).String()}).Debug("scheduled job done")
	}
}

func (sm *ScheduleManager) add(spec, name string, fn func(ctx context.Context) error) error {
	_, err := sm.cron.AddFunc(spec, sm.run(name, fn))
	return err
}

type cronJob struct {
	spec, name string
	fn         func(ctx context.Context) error
}

// Register adds every configured job. It is separate from Start so the
// entries can be inspected.
func (sm *ScheduleManager) Register() error {
	j := sm.jobs
	var jobs []cronJob
	push := func(spec, name string, fn func(ctx context.Context) error) {
		jobs = append(jobs, cronJob{spec, name, fn})
	}

	if j.Reminders != nil {
		push(SpecMorningReminder, "piket_reminder_morning", func(ctx context.Context) error {
			_, err := j.Reminders.SendPiketReminders(ctx, ReminderMorning)
			return err
		})
		push(SpecEveningReminder, "piket_reminder_evening", func(ctx context.Context) error {
			_, err := j.Reminders.SendPiketReminders(ctx, ReminderEvening)
			return err
		})
		if j.DailyReport {
			push(SpecDailyReport, "daily_report", func(ctx context.Context) error {
				_, err := j.Reminders.SendDailyReport(ctx)
				return err
			})
		}
	}
	if j.Semesters != nil {
		push(SpecSemesterUpdate, "semester_increment", func(ctx context.Context) error {
			n, err := j.Semesters.Increment(ctx)
			if err == nil {
				logrus.WithField("users", n).Info("semesters incremented")
			}
			return err
		})
	}
	if j.Logs != nil {
		push(SpecLogArchive, "log_archive", func(ctx context.Context) error {
			if _, err := j.Logs.Flush(ctx); err != nil {
				return err
			}
			_, err := j.Logs.Archive(ctx, logArchiveAgeDays)
			return err
		})
	}
	if j.LoanReminders != nil {
		push(SpecLoanReminder, "loan_reminder", func(ctx context.Context) error {
			_, err := j.LoanReminders.Check(ctx)
			return err
		})
	}

	for _, job := range jobs {
		if err := sm.add(job.spec, job.name, job.fn); err != nil {
			return err
		}
	}
	return nil
}

// Start registers the jobs and starts the cron in its own goroutine.
func (sm *ScheduleManager) Start() error {
	if err := sm.Register(); err != nil {
		return err
	}
	sm.cron.Start()
	logrus.WithField("jobs", len(sm.cron.Entries())).Info("schedule manager started")
	return nil
}

// Stop waits for running jobs to finish.
func (sm *ScheduleManager) Stop() {
	<-sm.cron.Stop().Done()
}

// Entries lists the scheduled jobs.
func (sm *ScheduleManager) Entries() []cron.Entry {
	return sm.cron.Entries()
}
