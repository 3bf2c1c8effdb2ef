package services

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"aslab_go/cache"
	"aslab_go/models"
	"aslab_go/utils"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	passwordResetPrefix = "password_reset:"
	PasswordResetTTL    = 60 * time.Minute
)

// AuthService checks credentials and manages a user's own account.
type AuthService struct {
	db          *gorm.DB
	perms       *PermissionService
	store       cache.Store
	mailer      Mailer
	frontendURL string
}

func NewAuthService(db *gorm.DB, perms *PermissionService, store cache.Store, mailer Mailer, frontendURL string) *AuthService {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &AuthService{db: db, perms: perms, store: store, mailer: mailer, frontendURL: strings.TrimRight(frontendURL, "/")}
}

// Login returns the active user matching email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, userErr(ErrUnauthorized, "Email atau password salah")
		}
		return nil, errors.Wrap(err, "find user")
	}
	if utils.CheckPassword(password, u.Password) != nil {
		return nil, userErr(ErrUnauthorized, "Email atau password salah")
	}
	if !u.IsActive {
		return nil, userErr(ErrForbidden, "Akun Anda tidak aktif")
	}
	return &u, nil
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required,notblank,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8"`
	Prodi    string `json:"prodi" validate:"max=255"`
	Semester *int   `json:"semester" validate:"omitempty,min=1,max=14"`
}

// Register creates an active mahasiswa account with the role's permissions.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := emailFree(ctx, s.db, email, 0); err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	u := models.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Password: hash,
		Prodi:    in.Prodi,
		Semester: in.Semester,
		Role:     models.RoleMahasiswa,
		IsActive: true,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return errors.Wrap(err, "create user")
		}
		return s.perms.SyncUserPermissions(ctx, tx, &u, nil)
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user_id": u.ID, "email": u.Email}).Info("user registered")
	return &u, nil
}

// countRows runs q.Count, wrapping a failure with what.
func countRows(q *gorm.DB, what string) (int64, error) {
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, what)
	}
	return n, nil
}

func emailFree(ctx context.Context, db *gorm.DB, email string, exceptID uint) error {
	n, err := countRows(db.WithContext(ctx).Model(&models.User{}).Where("email = ? AND id <> ?", email, exceptID), "check email")
	if err != nil {
		return err
	}
	if n > 0 {
		return userErr(ErrConflict, "Email sudah terdaftar")
	}
	return nil
}

// Me returns the user with their permission names.
func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, []string, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		return nil, nil, notFound(err, "User tidak ditemukan")
	}
	perms, err := s.perms.UserPermissions(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return &u, perms, nil
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uint, in ChangePasswordInput) error {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		return notFound(err, "User tidak ditemukan")
	}
	if utils.CheckPassword(in.CurrentPassword, u.Password) != nil {
		return userErr(ErrValidation, "Password saat ini salah")
	}
	return s.setPassword(ctx, &u, in.NewPassword)
}

func (s *AuthService) setPassword(ctx context.Context, u *models.User, password string) error {
	if len(password) < 8 {
		return userErr(ErrValidation, "Password minimal 8 karakter")
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	return errors.Wrap(s.db.WithContext(ctx).Model(u).Update("password", hash).Error, "update password")
}

type ProfileInput struct {
	Name     string `json:"name" validate:"required,notblank,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Prodi    string `json:"prodi" validate:"max=255"`
	Semester *int   `json:"semester" validate:"omitempty,min=1,max=14"`
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID uint, in ProfileInput) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		return nil, notFound(err, "User tidak ditemukan")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := emailFree(ctx, s.db, email, userID); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&u).Updates(map[string]interface{}{
		"name":     strings.TrimSpace(in.Name),
		"email":    email,
		"prodi":    in.Prodi,
		"semester": in.Semester,
	}).Error; err != nil {
		return nil, errors.Wrap(err, "update profile")
	}
	return &u, errors.Wrap(s.db.WithContext(ctx).First(&u, userID).Error, "reload user")
}

// ForgotPassword mails a reset link. Unknown emails succeed silently so the
// endpoint does not reveal who has an account.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(email)), true).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logrus.WithField("email", email).Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "find user")
	}

	token := uuid.NewString()
	if err := s.store.Put(ctx, passwordResetPrefix+token, strconv.FormatUint(uint64(u.ID), 10), PasswordResetTTL); err != nil {
		return errors.Wrap(err, "store reset token")
	}
	link := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)
	text := fmt.Sprintf("Halo %s,\n\nBuka tautan berikut untuk mengatur ulang password Anda:\n%s\n\nTautan berlaku %d menit.", u.Name, link, int(PasswordResetTTL.Minutes()))
	body := fmt.Sprintf(`<p>Halo %s,</p><p><a href="%s">Atur ulang password</a></p><p>Tautan berlaku %d menit.</p>`,
		html.EscapeString(u.Name), html.EscapeString(link), int(PasswordResetTTL.Minutes()))
	if err := s.mailer.Send(ctx, u.Name, u.Email, "Reset Password", text, body); err != nil {
		_ = s.store.Forget(ctx, passwordResetPrefix+token)
		return errors.Wrap(err, "send reset mail")
	}
	logrus.WithField("user_id", u.ID).Info("password reset mail sent")
	return nil
}

// ResetPassword consumes a reset token.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	if len(password) < 8 {
		return userErr(ErrValidation, "Password minimal 8 karakter")
	}
	raw, err := cache.Pull(ctx, s.store, passwordResetPrefix+strings.TrimSpace(token))
	if err != nil {
		return userErr(ErrValidation, "Token reset tidak valid atau sudah kedaluwarsa")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return userErr(ErrValidation, "Token reset tidak valid atau sudah kedaluwarsa")
	}
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, uint(id)).Error; err != nil {
		return notFound(err, "User tidak ditemukan")
	}
	return s.setPassword(ctx, &u, password)
}
