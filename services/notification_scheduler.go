package services

import (
	"context"
	"fmt"
	"time"

	"aslab_go/cache"
	"aslab_go/models"
	"aslab_go/services/notifications"
	"aslab_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const loanReminderTTL = 36 * time.Hour

// LoanReminderScheduler tells borrowers about loans due tomorrow and loans
// past their target date. Each loan gets at most one message per kind per
// day.
type LoanReminderScheduler struct {
	db       *gorm.DB
	notifier Notifier
	store    cache.Store
	loc      *time.Location
	now      func() time.Time
}

func NewLoanReminderScheduler(db *gorm.DB, notifier Notifier, store cache.Store, loc *time.Location) *LoanReminderScheduler {
	return &LoanReminderScheduler{db: db, notifier: notifier, store: store, loc: loc, now: time.Now}
}

type LoanReminderSummary struct {
	Due     int `json:"due"`
	Overdue int `json:"overdue"`
}

// Check scans open loans once.
func (s *LoanReminderScheduler) Check(ctx context.Context) (*LoanReminderSummary, error) {
	now := s.now().In(s.loc)
	today := utils.StartOfDay(now)
	tomorrowEnd := today.AddDate(0, 0, 2)

	var loans []models.PeminjamanAset
	err := s.db.WithContext(ctx).Preload("Aset").Preload("Bahan").
		Where("status IN ? AND user_id IS NOT NULL AND target_return_date IS NOT NULL AND target_return_date < ?",
			[]string{models.LoanApproved, models.LoanBorrowed}, tomorrowEnd).
		Find(&loans).Error
	if err != nil {
		return nil, errors.Wrap(err, "load open loans")
	}

	sum := &LoanReminderSummary{}
	for i := range loans {
		l := &loans[i]
		target := l.TargetReturnDate.In(s.loc)
		overdue := target.Before(now)
		kind, typ := "due", notifications.TypeLoanDue
		if overdue {
			kind, typ = "overdue", notifications.TypeLoanOverdue
		}
		key := fmt.Sprintf("loan_reminder_%s_%d_%s", kind, l.ID, today.Format(utils.DateLayout))
		claimed, err := s.store.SetNX(ctx, key, "sent", loanReminderTTL)
		if err != nil || !claimed {
			continue
		}

		title, msg := "Pengingat Pengembalian",
			fmt.Sprintf("%s harus dikembalikan pada %s", l.ItemName(), target.Format("02/01/2006 15:04"))
		if overdue {
			days := int(today.Sub(utils.StartOfDay(target)).Hours() / 24)
			title = "Peminjaman Terlambat"
			msg = fmt.Sprintf("%s sudah melewati batas pengembalian (%d hari). Segera kembalikan ke lab.", l.ItemName(), days)
		}
		p := notifications.New(typ, title, msg, notifications.ChannelNormal, notifications.ChannelTelegram).
			WithData(map[string]interface{}{"peminjaman_id": l.ID, "item_name": l.ItemName(), "target_return_date": target}).
			RelatedTo(loanModelType, l.ID)
		if err := s.notifier.EnqueueOrCreate(ctx, []uint{*l.UserID}, p); err != nil {
			_ = s.store.Forget(ctx, key)
			logrus.WithFields(logrus.Fields{"loan_id": l.ID, "error": err.Error()}).Warn("loan reminder failed")
			continue
		}
		if overdue {
			sum.Overdue++
		} else {
			sum.Due++
		}
	}
	if sum.Due+sum.Overdue > 0 {
		logrus.WithFields(logrus.Fields{"due": sum.Due, "overdue": sum.Overdue}).Info("loan reminders sent")
	}
	return sum, nil
}
