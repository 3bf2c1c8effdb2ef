package services

import (
	"context"
	"time"

	"aslab_go/models"
	"aslab_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReminderService sends piket reminders and the admin reports.
type ReminderService struct {
	db          *gorm.DB
	telegram    TelegramSender
	loc         *time.Location
	adminChatID string
	now         func() time.Time
	pause       time.Duration
}

func NewReminderService(db *gorm.DB, telegram TelegramSender, loc *time.Location, adminChatID string) *ReminderService {
	return &ReminderService{
		db:          db,
		telegram:    telegram,
		loc:         loc,
		adminChatID: adminChatID,
		now:         time.Now,
		pause:       100 * time.Millisecond,
	}
}

// ReminderSummary reports one reminder run.
type ReminderSummary struct {
	Kind    string `json:"reminder_type"`
	Day     string `json:"piket_day"`
	Date    string `json:"date"`
	Total   int    `json:"total_aslabs"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Skipped string `json:"skipped,omitempty"`
}

// TomorrowPiketDay maps the day after now to its piket day key.
func TomorrowPiketDay(now time.Time) (string, time.Time) {
	tomorrow := now.AddDate(0, 0, 1)
	return utils.DayName(tomorrow.Weekday()), tomorrow
}

// SendPiketReminders messages every linked aslab whose piket is tomorrow.
func (s *ReminderService) SendPiketReminders(ctx context.Context, kind string) (*ReminderSummary, error) {
	if kind != ReminderMorning && kind != ReminderEvening {
		return nil, userErr(ErrValidation, "reminder type must be morning or evening")
	}
	day, tomorrow := TomorrowPiketDay(s.now().In(s.loc))
	sum := &ReminderSummary{Kind: kind, Day: day, Date: tomorrow.Format(utils.DateLayout)}
	if utils.IsWeekend(day) {
		sum.Skipped = "weekend"
		logrus.WithField("piket_day", day).Info("tomorrow is weekend, no piket reminders needed")
		return sum, nil
	}

	var aslabs []models.User
	err := s.db.WithContext(ctx).
		Where("role = ? AND is_active = ? AND piket_day = ?", models.RoleAslab, true, day).
		Where("telegram_chat_id IS NOT NULL AND telegram_chat_id <> '' AND telegram_notifications = ?", true).
		Order("name").Find(&aslabs).Error
	if err != nil {
		return nil, errors.Wrap(err, "load aslabs for reminder")
	}
	sum.Total = len(aslabs)

	for i, u := range aslabs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := s.telegram.SendMessage(ctx, *u.TelegramChatID, PiketReminderMessage(u, kind)); err != nil {
			sum.Failed++
			logrus.WithFields(logrus.Fields{"user_id": u.ID, "error": err.Error()}).Error("piket reminder failed")
		} else {
			sum.Sent++
		}
		if i < len(aslabs)-1 {
			if err := sleepCtx(ctx, s.pause); err != nil {
				return sum, err
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"reminder_type": kind,
		"piket_day":     day,
		"total":         sum.Total,
		"sent":          sum.Sent,
		"failed":        sum.Failed,
	}).Info("piket reminder summary")
	return sum, nil
}

// BuildDailyReport counts active aslabs with and without a check-in on day.
func (s *ReminderService) BuildDailyReport(ctx context.Context, day time.Time) (*DailyReport, error) {
	date := day.In(s.loc).Format(utils.DateLayout)

	var aslabs []models.User
	if err := s.db.WithContext(ctx).Where("role = ? AND is_active = ?", models.RoleAslab, true).
		Order("name").Find(&aslabs).Error; err != nil {
		return nil, errors.Wrap(err, "load aslabs")
	}
	var present []uint
	if err := s.db.WithContext(ctx).Model(&models.Attendance{}).
		Where("date = ? AND type = ?", date, models.AttendanceCheckIn).
		Distinct("user_id").Pluck("user_id", &present).Error; err != nil {
		return nil, errors.Wrap(err, "load present users")
	}
	seen := make(map[uint]bool, len(present))
	for _, id := range present {
		seen[id] = true
	}

	r := &DailyReport{Date: day.In(s.loc)}
	for _, u := range aslabs {
		if seen[u.ID] {
			r.Present++
		} else {
			r.Absent++
			r.Absents = append(r.Absents, u)
		}
	}
	return r, nil
}

// SendDailyReport posts today's report, plus absentees on their own piket
// day, to the admin chat.
func (s *ReminderService) SendDailyReport(ctx context.Context) (*DailyReport, error) {
	if s.adminChatID == "" {
		return nil, userErr(ErrValidation, "TELEGRAM_ADMIN_CHAT_ID is not configured")
	}
	now := s.now().In(s.loc)
	r, err := s.BuildDailyReport(ctx, now)
	if err != nil {
		return nil, err
	}
	if err := s.telegram.SendMessage(ctx, s.adminChatID, DailyReportMessage(*r)); err != nil {
		return r, err
	}

	today := utils.DayName(now.Weekday())
	var onDuty []models.User
	for _, u := range r.Absents {
		if u.PiketDay != nil && *u.PiketDay == today {
			onDuty = append(onDuty, u)
		}
	}
	if len(onDuty) > 0 {
		if err := s.telegram.SendMessage(ctx, s.adminChatID, AbsenceMessage(onDuty)); err != nil {
			return r, err
		}
	}
	return r, nil
}

// SemesterService bumps the semester of students once per term.
type SemesterService struct {
	db *gorm.DB
}

func NewSemesterService(db *gorm.DB) *SemesterService {
	return &SemesterService{db: db}
}

// Increment adds one to every aslab and mahasiswa semester that is set.
func (s *SemesterService) Increment(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role IN ? AND semester IS NOT NULL", []string{models.RoleAslab, models.RoleMahasiswa}).
		UpdateColumn("semester", gorm.Expr("semester + ?", 1))
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "increment semesters")
	}
	logrus.WithField("count", res.RowsAffected).Info("incremented semester for aslab and mahasiswa users")
	return res.RowsAffected, nil
}

// sleepCtx waits d between sends and gives up when ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
