package services

import (
	"context"
	"testing"
	"time"

	"aslab_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTomorrowPiketDay(t *testing.T) {
	day, tomorrow := TomorrowPiketDay(time.Date(2025, 3, 2, 19, 0, 0, 0, wib)) // Sunday
	assert.Equal(t, "senin", day)
	assert.Equal(t, 3, tomorrow.Day())

	day, _ = TomorrowPiketDay(time.Date(2025, 3, 7, 7, 0, 0, 0, wib)) // Friday
	assert.Equal(t, "sabtu", day)
}

func reminderFixture(t *testing.T, now time.Time) (*ReminderService, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	svc := NewReminderService(newDB(t), sender, wib, "999")
	svc.now = fixedClock(now)
	svc.pause = 0
	return svc, sender
}

func TestSendPiketRemindersTargetsTomorrow(t *testing.T) {
	ctx := context.Background()
	svc, sender := reminderFixture(t, time.Date(2025, 3, 3, 7, 0, 0, 0, wib)) // Monday

	createUser(t, svc.db, "tue1", withPiket("selasa"), withChat("11"))
	createUser(t, svc.db, "tue2", withPiket("selasa"), withChat("12"))
	createUser(t, svc.db, "muted", withPiket("selasa"), withChat("13"), notificationsOff())
	createUser(t, svc.db, "nochat", withPiket("selasa"))
	createUser(t, svc.db, "gone", withPiket("selasa"), withChat("14"), inactive())
	createUser(t, svc.db, "wed", withPiket("rabu"), withChat("15"))
	createUser(t, svc.db, "dosen", withPiket("selasa"), withChat("16"), withRole(models.RoleDosen))

	sum, err := svc.SendPiketReminders(ctx, ReminderMorning)
	require.NoError(t, err)
	assert.Equal(t, "selasa", sum.Day)
	assert.Equal(t, "2025-03-04", sum.Date)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 2, sum.Sent)
	assert.Zero(t, sum.Failed)

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "11", msgs[0].ChatID)
	assert.Contains(t, msgs[0].Text, "Besok (Selasa)")
	assert.Contains(t, msgs[0].Text, "Datang tepat waktu")
}

func TestSendPiketRemindersEveningAndFailures(t *testing.T) {
	ctx := context.Background()
	svc, sender := reminderFixture(t, time.Date(2025, 3, 3, 19, 0, 0, 0, wib))
	createUser(t, svc.db, "tue", withPiket("selasa"), withChat("11"))

	sender.setFail(errSendFailed)
	sum, err := svc.SendPiketReminders(ctx, ReminderEvening)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	sender.setFail(nil)
	_, err = svc.SendPiketReminders(ctx, ReminderEvening)
	require.NoError(t, err)
	require.Len(t, sender.messages(), 1)
	assert.Contains(t, sender.messages()[0].Text, "Istirahat yang cukup")

	_, err = svc.SendPiketReminders(ctx, "noon")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSendPiketRemindersStopsWhenCancelled(t *testing.T) {
	svc, sender := reminderFixture(t, time.Date(2025, 3, 3, 7, 0, 0, 0, wib))
	svc.pause = time.Hour
	createUser(t, svc.db, "tue1", withPiket("selasa"), withChat("11"))
	createUser(t, svc.db, "tue2", withPiket("selasa"), withChat("12"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	sum, err := svc.SendPiketReminders(ctx, ReminderMorning)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.NotNil(t, sum)
	assert.Equal(t, 1, sum.Sent)
	assert.Len(t, sender.messages(), 1)
}

func TestSendPiketRemindersSkipsWeekend(t *testing.T) {
	svc, sender := reminderFixture(t, time.Date(2025, 3, 7, 7, 0, 0, 0, wib)) // Friday
	createUser(t, svc.db, "sat", withPiket("sabtu"), withChat("11"))

	sum, err := svc.SendPiketReminders(context.Background(), ReminderMorning)
	require.NoError(t, err)
	assert.Equal(t, "weekend", sum.Skipped)
	assert.Empty(t, sender.messages())
}

func TestDailyReport(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 3, 20, 0, 0, 0, wib) // Monday
	svc, sender := reminderFixture(t, now)

	here := createUser(t, svc.db, "hadir", withPiket("senin"))
	createUser(t, svc.db, "bolos", withPiket("senin"), withSemester(5))
	createUser(t, svc.db, "libur", withPiket("rabu"))

	require.NoError(t, svc.db.Create(&models.Attendance{
		UserID: here.ID, Type: models.AttendanceCheckIn, Timestamp: now, Date: "2025-03-03",
	}).Error)

	r, err := svc.SendDailyReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Present)
	assert.Equal(t, 2, r.Absent)

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "999", msgs[0].ChatID)
	assert.Contains(t, msgs[0].Text, "Total Aslab Hadir:</b> 1")
	assert.Contains(t, msgs[1].Text, "bolos (Informatika, Semester 5)")
	assert.NotContains(t, msgs[1].Text, "libur")
}

func TestSemesterIncrement(t *testing.T) {
	db := newDB(t)
	a := createUser(t, db, "aslab", withSemester(3))
	m := createUser(t, db, "mhs", withSemester(1), withRole(models.RoleMahasiswa))
	d := createUser(t, db, "dosen", withSemester(9), withRole(models.RoleDosen))
	createUser(t, db, "none")

	n, err := NewSemesterService(db).Increment(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for id, want := range map[uint]int{a.ID: 4, m.ID: 2, d.ID: 9} {
		var u models.User
		require.NoError(t, db.First(&u, id).Error)
		assert.Equal(t, want, *u.Semester)
	}
}
