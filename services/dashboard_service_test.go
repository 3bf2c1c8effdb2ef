package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"aslab_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func addAttendance(t *testing.T, db *gorm.DB, userID uint, typ string, ts time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.Attendance{
		UserID: userID, Type: typ, Timestamp: ts, Date: ts.Format("2006-01-02"),
	}).Error)
}

func dashboardFixture(t *testing.T) (*DashboardService, models.User, models.User) {
	t.Helper()
	db := newDB(t)
	svc := NewDashboardService(db, wib)
	svc.now = fixedClock(time.Date(2025, 3, 10, 12, 0, 0, 0, wib))

	a := createUser(t, db, "alpha")
	b := createUser(t, db, "beta")
	createUser(t, db, "mhs", withRole(models.RoleMahasiswa))

	today := time.Date(2025, 3, 10, 8, 0, 0, 0, wib)
	addAttendance(t, db, a.ID, models.AttendanceCheckIn, today)
	addAttendance(t, db, a.ID, models.AttendanceCheckOut, today.Add(3*time.Hour))
	addAttendance(t, db, b.ID, models.AttendanceCheckIn, today.Add(time.Hour))
	addAttendance(t, db, a.ID, models.AttendanceCheckIn, today.AddDate(0, 0, -1))
	addAttendance(t, db, a.ID, models.AttendanceCheckIn, today.AddDate(0, -2, 0))
	return svc, a, b
}

func TestDashboardStats(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := dashboardFixture(t)

	st, err := svc.Stats(ctx, DateRange{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.TotalAslabs)
	assert.EqualValues(t, 2, st.TodayCheckins)
	assert.EqualValues(t, 1, st.TodayCheckouts)
	assert.EqualValues(t, 1, st.ActiveToday)

	st, err = svc.Stats(ctx, DateRange{Start: "2025-03-01", End: "2025-03-09"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.TodayCheckins)
	assert.Zero(t, st.ActiveToday)
}

func TestDashboardTodayAndMostActive(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := dashboardFixture(t)

	rows, err := svc.TodayAttendances(ctx, DateRange{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	status := map[string]string{}
	for _, r := range rows {
		status[r.User.Name] = r.Status
	}
	assert.Equal(t, "Sudah pulang", status["alpha"])
	assert.Equal(t, "Sedang di lab", status["beta"])

	active, err := svc.MostActive(ctx, DateRange{})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "alpha", active[0].Name)
	assert.EqualValues(t, 2, active[0].TotalAttendance)
	assert.EqualValues(t, 1, active[1].TotalAttendance)
}

func TestDashboardChart(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := dashboardFixture(t)

	daily, err := svc.Chart(ctx, DateRange{})
	require.NoError(t, err)
	require.Len(t, daily, 7)
	assert.Equal(t, "04/03", daily[0].Date)
	assert.Equal(t, "10/03", daily[6].Date)
	assert.EqualValues(t, 2, daily[6].Count)
	assert.EqualValues(t, 1, daily[5].Count)

	monthly, err := svc.Chart(ctx, DateRange{Start: "2025-01-01", End: "2025-03-10"})
	require.NoError(t, err)
	require.Len(t, monthly, 3)
	assert.Equal(t, "Jan 2025", monthly[0].Date)
	assert.EqualValues(t, 1, monthly[0].Count)
	assert.EqualValues(t, 3, monthly[2].Count)

	_, err = svc.Chart(ctx, DateRange{Start: "bad", End: "2025-03-10"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDashboardDayDetail(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := dashboardFixture(t)

	for _, raw := range []string{"10/03", "2025-03-10"} {
		rows, err := svc.DayDetail(ctx, raw)
		require.NoError(t, err, raw)
		require.Len(t, rows, 2)
		assert.Equal(t, "present", rows[0].Status)
		assert.Equal(t, "partial", rows[1].Status)
		assert.Equal(t, "2025-03-10", rows[0].Date)
	}

	_, err := svc.DayDetail(ctx, "tomorrow")
	assert.ErrorIs(t, err, ErrValidation)
}

type recordingHub struct {
	mu     sync.Mutex
	events []string
	data   []interface{}
}

func (h *recordingHub) BroadcastChannel(channel, event string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, channel+":"+event)
	h.data = append(h.data, data)
}

func TestDashboardBroadcasterPushesOnAttendance(t *testing.T) {
	svc, a, _ := dashboardFixture(t)
	hub := &recordingHub{}
	NewDashboardBroadcaster(svc, hub).HandleAttendanceCreated(context.Background(), AttendanceCreated{
		Attendance: models.Attendance{Type: models.AttendanceCheckIn},
		User:       a,
	})

	require.Equal(t, []string{"dashboard:attendance.updated"}, hub.events)
	payload, ok := hub.data[0].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, payload, "stats")
	assert.Contains(t, payload, "todayAttendances")
	assert.Contains(t, payload, "weeklyChartData")
}
