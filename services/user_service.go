package services

import (
	"context"
	"strings"

	"aslab_go/models"
	"aslab_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UserService is the admin side of account management.
type UserService struct {
	db    *gorm.DB
	perms *PermissionService
}

func NewUserService(db *gorm.DB, perms *PermissionService) *UserService {
	return &UserService{db: db, perms: perms}
}

type UserFilter struct {
	Search string
	Role   string
}

// UserInput creates or updates a user. Password is optional on update.
// Permissions nil keeps the role defaults on create and leaves them alone on
// update unless the role changed.
type UserInput struct {
	Name        string    `json:"name" validate:"required,notblank,max=255"`
	Email       string    `json:"email" validate:"required,email,max=255"`
	Password    string    `json:"password" validate:"omitempty,min=8"`
	Role        string    `json:"role" validate:"required,oneof=admin aslab mahasiswa dosen"`
	Prodi       string    `json:"prodi" validate:"max=255"`
	Semester    *int      `json:"semester" validate:"omitempty,min=1,max=14"`
	RFIDCode    *string   `json:"rfid_code" validate:"omitempty,max=255"`
	PiketDay    *string   `json:"piket_day" validate:"omitempty,oneof=senin selasa rabu kamis jumat"`
	Permissions *[]string `json:"permissions"`
}

func (s *UserService) List(ctx context.Context, f UserFilter) ([]models.User, error) {
	q := s.db.WithContext(ctx).Model(&models.User{})
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + term + "%"
		q = q.Where("name LIKE ? OR email LIKE ? OR rfid_code LIKE ?", like, like, like)
	}
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	var out []models.User
	return out, errors.Wrap(q.Order("name").Find(&out).Error, "list users")
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Preload("Permissions").First(&u, id).Error; err != nil {
		return nil, notFound(err, "User tidak ditemukan")
	}
	return &u, nil
}

func (s *UserService) checkUnique(ctx context.Context, email string, rfid *string, exceptID uint) error {
	if err := emailFree(ctx, s.db, email, exceptID); err != nil {
		return err
	}
	if rfid != nil {
		n, err := countRows(s.db.WithContext(ctx).Model(&models.User{}).Where("rfid_code = ? AND id <> ?", *rfid, exceptID), "check rfid")
		if err != nil {
			return err
		}
		if n > 0 {
			return userErr(ErrRFIDTaken, "RFID sudah terdaftar")
		}
	}
	return nil
}

func normalizeOptionalRFID(code *string) *string {
	if code == nil {
		return nil
	}
	n := utils.NormalizeRFID(*code)
	if n == "" {
		return nil
	}
	return &n
}

func (s *UserService) Create(ctx context.Context, in UserInput) (*models.User, error) {
	if !utils.IsValidRole(in.Role) {
		return nil, userErr(ErrValidation, "Role tidak valid")
	}
	if len(in.Password) < 8 {
		return nil, userErr(ErrValidation, "Password minimal 8 karakter")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	rfid := normalizeOptionalRFID(in.RFIDCode)
	if err := s.checkUnique(ctx, email, rfid, 0); err != nil {
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
		Role:     in.Role,
		Prodi:    in.Prodi,
		Semester: in.Semester,
		RFIDCode: rfid,
		PiketDay: in.PiketDay,
		IsActive: true,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return errors.Wrap(err, "create user")
		}
		var perms []string
		if in.Permissions != nil {
			perms = *in.Permissions
		}
		return s.perms.SyncUserPermissions(ctx, tx, &u, perms)
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("user created")
	return s.Get(ctx, u.ID)
}

func (s *UserService) Update(ctx context.Context, id uint, in UserInput) (*models.User, error) {
	if !utils.IsValidRole(in.Role) {
		return nil, userErr(ErrValidation, "Role tidak valid")
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	rfid := normalizeOptionalRFID(in.RFIDCode)
	if err := s.checkUnique(ctx, email, rfid, id); err != nil {
		return nil, err
	}
	roleChanged := u.Role != in.Role
	updates := map[string]interface{}{
		"name":      strings.TrimSpace(in.Name),
		"email":     email,
		"role":      in.Role,
		"prodi":     in.Prodi,
		"semester":  in.Semester,
		"rfid_code": rfid,
		"piket_day": in.PiketDay,
	}
	if in.Password != "" {
		if len(in.Password) < 8 {
			return nil, userErr(ErrValidation, "Password minimal 8 karakter")
		}
		hash, err := utils.HashPassword(in.Password)
		if err != nil {
			return nil, errors.Wrap(err, "hash password")
		}
		updates["password"] = hash
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update user")
		}
		u.Role = in.Role
		switch {
		case in.Permissions != nil:
			return s.perms.SyncUserPermissions(ctx, tx, u, *in.Permissions)
		case roleChanged:
			return s.perms.SyncUserPermissions(ctx, tx, u, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete refuses to remove the acting admin.
func (s *UserService) Delete(ctx context.Context, actorID, id uint) error {
	if actorID == id {
		return userErr(ErrForbidden, "Tidak dapat menghapus akun sendiri!")
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(u).Association("Permissions").Clear(); err != nil {
			return errors.Wrap(err, "clear permissions")
		}
		return errors.Wrap(tx.Delete(u).Error, "delete user")
	})
}

// ToggleStatus flips is_active and returns the new value.
func (s *UserService) ToggleStatus(ctx context.Context, actorID, id uint) (bool, error) {
	if actorID == id {
		return false, userErr(ErrForbidden, "Tidak dapat menonaktifkan akun sendiri!")
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	active := !u.IsActive
	if err := s.db.WithContext(ctx).Model(u).Update("is_active", active).Error; err != nil {
		return false, errors.Wrap(err, "toggle status")
	}
	return active, nil
}

// Aslabs lists active aslabs by name.
func (s *UserService) Aslabs(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := s.db.WithContext(ctx).Where("role = ? AND is_active = ?", models.RoleAslab, true).Order("name").Find(&out).Error
	return out, errors.Wrap(err, "list aslabs")
}
