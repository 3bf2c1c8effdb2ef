package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthReport(t *testing.T) {
	db := newDB(t)
	svc := NewHealthService(db, nil, "Aslab API", "test")
	svc.startTime = time.Date(2025, 3, 10, 8, 0, 0, 0, wib)
	svc.now = fixedClock(time.Date(2025, 3, 11, 9, 2, 5, 0, wib))

	r := svc.Report(context.Background())
	assert.Equal(t, StatusOK, r.Status)
	assert.Equal(t, "1d 1h 2m 5s", r.UptimeHuman)
	assert.Len(t, r.Dependencies, 2)
	assert.Equal(t, depUp, r.Dependencies[0].Status)
	assert.Equal(t, depDisabled, r.Dependencies[1].Status)
	assert.Equal(t, 200, HTTPStatus(r.Status))
}

func TestHealthReportWithoutDatabase(t *testing.T) {
	r := NewHealthService(nil, nil, "Aslab API", "").Report(context.Background())
	assert.Equal(t, StatusCritical, r.Status)
	assert.Equal(t, "unknown", r.Environment)
	assert.Equal(t, 503, HTTPStatus(r.Status))
}

func TestHumanizeDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{time.Hour, "1h"},
		{26*time.Hour + 30*time.Second, "1d 2h 30s"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, humanizeDuration(c.in), c.in.String())
	}
}
