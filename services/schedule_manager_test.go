package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleManagerRegistersConfiguredJobs(t *testing.T) {
	db := newDB(t)
	jobs := ScheduleJobs{
		Reminders: NewReminderService(db, &fakeSender{}, wib, ""),
		Semesters: NewSemesterService(db),
	}
	sm := NewScheduleManager(jobs, wib)
	require.NoError(t, sm.Register())
	assert.Len(t, sm.Entries(), 3)

	jobs.DailyReport = true
	jobs.Logs = NewLogArchiveServiceWithStore(db, nil, nil, "")
	sm = NewScheduleManager(jobs, wib)
	require.NoError(t, sm.Register())
	entries := sm.Entries()
	assert.Len(t, entries, 5)

	from := time.Date(2025, 3, 10, 6, 0, 0, 0, wib)
	var nexts []time.Time
	for _, e := range entries {
		nexts = append(nexts, e.Schedule.Next(from))
	}
	assert.Contains(t, nexts, time.Date(2025, 3, 10, 7, 0, 0, 0, wib))
	assert.Contains(t, nexts, time.Date(2025, 8, 1, 0, 0, 0, 0, wib))
}

func TestScheduleManagerRunSwallowsErrors(t *testing.T) {
	sm := NewScheduleManager(ScheduleJobs{}, wib)
	called := false
	sm.run("boom", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		called = ok
		return errors.New("boom")
	})()
	assert.True(t, called)
}
