package services

import (
	"context"
	"encoding/json"
	"time"

	"aslab_go/cache"
	"aslab_go/models"
	"aslab_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	RFIDModeKey      = "rfid_mode"
	LastRFIDScanKey  = "last_rfid_scan"
	RFIDModeTTL      = 24 * time.Hour
	LastRFIDScanTTL  = time.Minute
	RFIDModeDefault  = "registration"
	RFIDModeCheckIn  = "check_in"
	RFIDModeCheckOut = "check_out"
)

// RFIDService manages the device mode and card registration.
type RFIDService struct {
	db    *gorm.DB
	store cache.Store
	now   func() time.Time
}

func NewRFIDService(db *gorm.DB, store cache.Store) *RFIDService {
	return &RFIDService{db: db, store: store, now: time.Now}
}

// Mode returns the current device mode.
func (s *RFIDService) Mode(ctx context.Context) string {
	return cache.GetOr(ctx, s.store, RFIDModeKey, RFIDModeDefault)
}

// SetMode stores mode for a day.
func (s *RFIDService) SetMode(ctx context.Context, mode string) error {
	switch mode {
	case RFIDModeDefault, RFIDModeCheckIn, RFIDModeCheckOut:
	default:
		return userErr(ErrValidation, "Mode harus registration, check_in, atau check_out")
	}
	if err := s.store.Put(ctx, RFIDModeKey, mode, RFIDModeTTL); err != nil {
		return errors.Wrap(err, "store rfid mode")
	}
	logrus.WithField("mode", mode).Info("rfid mode changed")
	return nil
}

// LastScan is the card most recently presented in registration mode.
type LastScan struct {
	RFIDCode     string           `json:"rfid_code"`
	Available    bool             `json:"available"`
	RegisteredTo *utils.UserShort `json:"registered_to,omitempty"`
	ScannedAt    time.Time        `json:"scanned_at"`
}

// ScanForRegistration remembers the card for a minute and reports whether it
// is free. A taken card returns ErrRFIDTaken together with the scan.
func (s *RFIDService) ScanForRegistration(ctx context.Context, rfid string) (*LastScan, error) {
	code := utils.NormalizeRFID(rfid)
	if code == "" {
		return nil, userErr(ErrValidation, "RFID code wajib diisi")
	}
	scan := &LastScan{RFIDCode: code, Available: true, ScannedAt: s.now()}

	var owner models.User
	err := s.db.WithContext(ctx).Where("rfid_code = ?", code).First(&owner).Error
	switch {
	case err == nil:
		short := utils.ToUserShort(owner)
		scan.Available = false
		scan.RegisteredTo = &short
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errors.Wrap(err, "find rfid owner")
	}

	raw, _ := json.Marshal(scan)
	if err := s.store.Put(ctx, LastRFIDScanKey, string(raw), LastRFIDScanTTL); err != nil {
		logrus.WithField("error", err.Error()).Warn("cache last rfid scan failed")
	}
	if !scan.Available {
		return scan, userErr(ErrRFIDTaken, "RFID sudah terdaftar")
	}
	return scan, nil
}

// PullLastScan returns and forgets the cached registration scan.
func (s *RFIDService) PullLastScan(ctx context.Context) (*LastScan, error) {
	raw, err := cache.Pull(ctx, s.store, LastRFIDScanKey)
	if errors.Is(err, cache.ErrMiss) {
		return nil, userErr(ErrNotFound, "No recent scan")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read last scan")
	}
	var scan LastScan
	if err := json.Unmarshal([]byte(raw), &scan); err != nil {
		return nil, errors.Wrap(err, "decode last scan")
	}
	return &scan, nil
}

// Register assigns a card to a user.
func (s *RFIDService) Register(ctx context.Context, userID uint, rfid string) (*models.User, error) {
	code := utils.NormalizeRFID(rfid)
	if code == "" {
		return nil, userErr(ErrValidation, "RFID code wajib diisi")
	}
	var owner models.User
	err := s.db.WithContext(ctx).Where("rfid_code = ?", code).First(&owner).Error
	if err == nil {
		if owner.ID == userID {
			return &owner, nil
		}
		return nil, userErr(ErrRFIDTaken, "RFID sudah terdaftar untuk user: "+owner.Name)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "find rfid owner")
	}

	var u models.User
	if err := s.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, userErr(ErrNotFound, "User tidak ditemukan")
		}
		return nil, errors.Wrap(err, "find user")
	}
	if err := s.db.WithContext(ctx).Model(&u).Update("rfid_code", code).Error; err != nil {
		return nil, errors.Wrap(err, "save rfid")
	}
	u.RFIDCode = &code
	logrus.WithFields(logrus.Fields{"user_id": u.ID, "rfid": code}).Info("rfid registered")
	return &u, nil
}

// Unregister clears a user's card.
func (s *RFIDService) Unregister(ctx context.Context, userID uint) error {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return userErr(ErrNotFound, "User tidak ditemukan")
		}
		return errors.Wrap(err, "find user")
	}
	return errors.Wrap(s.db.WithContext(ctx).Model(&u).Update("rfid_code", nil).Error, "clear rfid")
}

// Aslabs lists aslab users by name for the registration picker.
func (s *RFIDService) Aslabs(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Where("role = ?", models.RoleAslab).Order("name").Find(&users).Error
	return users, errors.Wrap(err, "list aslabs")
}
