package services

import (
	"context"
	"strings"

	"aslab_go/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// LineLinker matches LINE user ids to accounts by email so that the
// notification fan-out can reach them on the line channel.
type LineLinker struct {
	db *gorm.DB
}

func NewLineLinker(db *gorm.DB) *LineLinker {
	return &LineLinker{db: db}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseLinkCommand accepts "link <email>" in any letter case.
func ParseLinkCommand(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "link") {
		return "", false
	}
	return normalizeEmail(fields[1]), true
}

// Link binds lineUserID to the active account with the given email. A LINE
// id already bound elsewhere, or an account bound to another LINE id, is a
// conflict.
func (l *LineLinker) Link(ctx context.Context, lineUserID, email string) (*models.User, error) {
	if lineUserID == "" {
		return nil, userErr(ErrValidation, "LINE user id kosong")
	}
	var user *models.User
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).Where("line_user_id = ?", lineUserID).Count(&taken).Error; err != nil {
			return errors.Wrap(err, "check line id")
		}
		if taken > 0 {
			return userErr(ErrConflict, "Akun LINE ini sudah terhubung")
		}
		var u models.User
		err := tx.Where("LOWER(email) = ? AND is_active = ?", normalizeEmail(email), true).First(&u).Error
		if err != nil {
			return notFound(err, "Email tidak terdaftar")
		}
		if u.LineUserID != nil && *u.LineUserID != "" {
			return userErr(ErrConflict, "Akun sudah terhubung ke LINE lain")
		}
		if err := tx.Model(&u).Update("line_user_id", lineUserID).Error; err != nil {
			return errors.Wrap(err, "link line id")
		}
		u.LineUserID = &lineUserID
		user = &u
		return nil
	})
	return user, err
}

// Unlink clears the LINE id of whichever account holds it.
func (l *LineLinker) Unlink(ctx context.Context, lineUserID string) (bool, error) {
	res := l.db.WithContext(ctx).Model(&models.User{}).Where("line_user_id = ?", lineUserID).Update("line_user_id", nil)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "unlink line id")
	}
	return res.RowsAffected > 0, nil
}
