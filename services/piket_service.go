package services

import (
	"context"
	"math/rand"

	"aslab_go/models"
	"aslab_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PiketService assigns aslabs to weekday duty.
type PiketService struct {
	db      *gorm.DB
	shuffle func(n int, swap func(i, j int))
}

// NewPiketService shuffles with the package-level math/rand source, which is
// safe for concurrent requests.
func NewPiketService(db *gorm.DB) *PiketService {
	return &PiketService{db: db, shuffle: rand.Shuffle}
}

// PiketSchedule is the active aslabs grouped by day. Unassigned aslabs are
// listed separately.
type PiketSchedule struct {
	Days       map[string][]utils.UserShort `json:"days"`
	Unassigned []utils.UserShort            `json:"unassigned"`
	All        []models.User                `json:"all_aslabs"`
}

func validPiketDay(day *string) error {
	if day != nil && !utils.IsValidPiketDay(*day) {
		return userErr(ErrValidation, "Hari piket harus senin, selasa, rabu, kamis, atau jumat")
	}
	return nil
}

// Index groups active aslabs by piket day.
func (s *PiketService) Index(ctx context.Context) (*PiketSchedule, error) {
	var aslabs []models.User
	if err := s.db.WithContext(ctx).Where("role = ? AND is_active = ?", models.RoleAslab, true).
		Order("piket_day").Order("name").Find(&aslabs).Error; err != nil {
		return nil, errors.Wrap(err, "load aslabs")
	}
	out := &PiketSchedule{Days: map[string][]utils.UserShort{}, All: aslabs}
	for _, d := range models.PiketDays {
		out.Days[d] = []utils.UserShort{}
	}
	for _, u := range aslabs {
		if u.PiketDay == nil || *u.PiketDay == "" {
			out.Unassigned = append(out.Unassigned, utils.ToUserShort(u))
			continue
		}
		out.Days[*u.PiketDay] = append(out.Days[*u.PiketDay], utils.ToUserShort(u))
	}
	return out, nil
}

// GenerateAuto clears every aslab's day and deals the active ones out
// round-robin in random order.
func (s *PiketService) GenerateAuto(ctx context.Context) (int, error) {
	assigned := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("role = ?", models.RoleAslab).
			Update("piket_day", nil).Error; err != nil {
			return errors.Wrap(err, "reset piket")
		}
		var aslabs []models.User
		if err := tx.Where("role = ? AND is_active = ?", models.RoleAslab, true).
			Order("id").Find(&aslabs).Error; err != nil {
			return errors.Wrap(err, "load aslabs")
		}
		s.shuffle(len(aslabs), func(i, j int) { aslabs[i], aslabs[j] = aslabs[j], aslabs[i] })

		for i, u := range aslabs {
			day := models.PiketDays[i%len(models.PiketDays)]
			if err := tx.Model(&models.User{}).Where("id = ?", u.ID).Update("piket_day", day).Error; err != nil {
				return errors.Wrap(err, "assign piket")
			}
			assigned++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logrus.WithField("assigned", assigned).Info("piket schedule generated")
	return assigned, nil
}

func (s *PiketService) findAslab(ctx context.Context, db *gorm.DB, userID uint) (*models.User, error) {
	var u models.User
	err := db.WithContext(ctx).Where("id = ? AND role = ?", userID, models.RoleAslab).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userErr(ErrNotFound, "Aslab tidak ditemukan")
	}
	return &u, errors.Wrap(err, "find aslab")
}

// UpdateManual sets or clears one aslab's day.
func (s *PiketService) UpdateManual(ctx context.Context, userID uint, day *string) error {
	if err := validPiketDay(day); err != nil {
		return err
	}
	u, err := s.findAslab(ctx, s.db, userID)
	if err != nil {
		return err
	}
	return errors.Wrap(s.db.WithContext(ctx).Model(u).Update("piket_day", day).Error, "update piket")
}

// Swap moves one aslab to newDay and reports the day they left.
func (s *PiketService) Swap(ctx context.Context, userID uint, newDay *string) (from, to *string, err error) {
	if err := validPiketDay(newDay); err != nil {
		return nil, nil, err
	}
	u, err := s.findAslab(ctx, s.db, userID)
	if err != nil {
		return nil, nil, err
	}
	from = u.PiketDay
	if err := s.db.WithContext(ctx).Model(u).Update("piket_day", newDay).Error; err != nil {
		return nil, nil, errors.Wrap(err, "swap piket")
	}
	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"from":    utils.Deref(from),
		"to":      utils.Deref(newDay),
	}).Info("piket swapped")
	return from, newDay, nil
}

// PiketUpdate is one entry of a batch update.
type PiketUpdate struct {
	UserID      uint    `json:"user_id" validate:"required"`
	NewPiketDay *string `json:"new_piket_day"`
}

// BatchUpdate applies all updates or none.
func (s *PiketService) BatchUpdate(ctx context.Context, updates []PiketUpdate) (int, error) {
	for _, up := range updates {
		if err := validPiketDay(up.NewPiketDay); err != nil {
			return 0, err
		}
	}
	n := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, up := range updates {
			u, err := s.findAslab(ctx, tx, up.UserID)
			if err != nil {
				return err
			}
			if err := tx.Model(u).Update("piket_day", up.NewPiketDay).Error; err != nil {
				return errors.Wrap(err, "update piket")
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Reset clears every aslab's day.
func (s *PiketService) Reset(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", models.RoleAslab).Update("piket_day", nil)
	return res.RowsAffected, errors.Wrap(res.Error, "reset piket")
}

// StandaloneView is what a card holder sees on the kiosk page.
type StandaloneView struct {
	User       models.User   `json:"user"`
	Colleagues []models.User `json:"colleagues"`
}

// Standalone returns the card holder and the active aslabs sharing their day.
func (s *PiketService) Standalone(ctx context.Context, rfid string) (*StandaloneView, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("rfid_code = ?", utils.NormalizeRFID(rfid)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userErr(ErrNotFound, "RFID tidak terdaftar")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user by rfid")
	}
	view := &StandaloneView{User: u, Colleagues: []models.User{}}
	if u.PiketDay != nil && *u.PiketDay != "" {
		if err := s.db.WithContext(ctx).
			Where("piket_day = ? AND id <> ? AND role = ? AND is_active = ?", *u.PiketDay, u.ID, models.RoleAslab, true).
			Order("name").Find(&view.Colleagues).Error; err != nil {
			return nil, errors.Wrap(err, "load colleagues")
		}
	}
	return view, nil
}
