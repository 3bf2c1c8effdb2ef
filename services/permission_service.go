package services

import (
	"context"
	"sort"
	"strings"

	"aslab_go/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Permission names.
const (
	PermViewDashboard         = "view_dashboard"
	PermViewAttendance        = "view_attendance"
	PermViewAttendanceHistory = "view_attendance_history"
	PermViewPicketSchedule    = "view_picket_schedule"
	PermScanAttendance        = "scan_attendance"
	PermViewAssets            = "view_assets"
	PermManageAssets          = "manage_assets"
	PermViewLoans             = "view_loans"
	PermApproveLoans          = "approve_loans"
	PermViewUsers             = "view_users"
	PermManageUsers           = "manage_users"
	PermManageRoles           = "manage_roles"
)

// PermissionCatalogue lists every permission by group.
var PermissionCatalogue = map[string][]string{
	"dashboard":  {PermViewDashboard},
	"attendance": {PermViewAttendance, PermViewAttendanceHistory, PermViewPicketSchedule, PermScanAttendance},
	"assets":     {PermViewAssets, PermManageAssets},
	"loans":      {PermViewLoans, PermApproveLoans},
	"users":      {PermViewUsers, PermManageUsers},
	"roles":      {PermManageRoles},
}

// RoleDefaults are the permissions each system role starts with. Admin is
// absent because it passes every check.
var RoleDefaults = map[string][]string{
	models.RoleAslab: {
		PermViewDashboard, PermViewAttendance, PermViewAttendanceHistory, PermViewPicketSchedule,
		PermViewAssets, PermManageAssets, PermViewLoans, PermApproveLoans, PermViewUsers,
	},
	models.RoleMahasiswa: {PermViewDashboard, PermViewPicketSchedule, PermViewLoans},
	models.RoleDosen:     {PermViewDashboard, PermViewAttendanceHistory},
}

var systemRoles = []string{models.RoleAdmin, models.RoleAslab, models.RoleMahasiswa, models.RoleDosen}

func isSystemRole(name string) bool {
	for _, r := range systemRoles {
		if r == name {
			return true
		}
	}
	return false
}

// AllPermissions returns the catalogue as a sorted list.
func AllPermissions() []string {
	var out []string
	for _, perms := range PermissionCatalogue {
		out = append(out, perms...)
	}
	sort.Strings(out)
	return out
}

// PermissionService stores roles and per-user permissions.
type PermissionService struct {
	db *gorm.DB
}

func NewPermissionService(db *gorm.DB) *PermissionService {
	return &PermissionService{db: db}
}

// EnsureCatalogue creates missing permissions and system roles. Admin's role
// carries every permission. The other system roles get RoleDefaults when
// first created and keep whatever they were edited to afterwards.
func (s *PermissionService) EnsureCatalogue(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var all []models.Permission
		byName := map[string]models.Permission{}
		for _, name := range AllPermissions() {
			p := models.Permission{Name: name, GuardName: "web"}
			if err := tx.Where(models.Permission{Name: name}).FirstOrCreate(&p).Error; err != nil {
				return errors.Wrapf(err, "ensure permission %s", name)
			}
			all = append(all, p)
			byName[name] = p
		}
		for _, name := range systemRoles {
			var r models.Role
			created := false
			err := tx.Where("name = ?", name).First(&r).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				r = models.Role{Name: name, GuardName: "web", IsSystem: true}
				err, created = tx.Create(&r).Error, true
			}
			if err != nil {
				return errors.Wrapf(err, "ensure role %s", name)
			}
			if name == models.RoleAdmin {
				if err := tx.Model(&r).Association("Permissions").Replace(all); err != nil {
					return errors.Wrap(err, "grant admin permissions")
				}
				continue
			}
			if !created || len(RoleDefaults[name]) == 0 {
				continue
			}
			defaults := make([]models.Permission, 0, len(RoleDefaults[name]))
			for _, p := range RoleDefaults[name] {
				defaults = append(defaults, byName[p])
			}
			if err := tx.Model(&r).Association("Permissions").Replace(defaults); err != nil {
				return errors.Wrapf(err, "seed %s permissions", name)
			}
			logrus.WithFields(logrus.Fields{"role": name, "permissions": len(defaults)}).Info("role permissions seeded")
		}
		return nil
	})
}

func (s *PermissionService) loadPermissions(db *gorm.DB, names []string) ([]models.Permission, error) {
	uniq := map[string]struct{}{}
	for _, n := range names {
		uniq[strings.TrimSpace(n)] = struct{}{}
	}
	var perms []models.Permission
	if len(uniq) == 0 {
		return perms, nil
	}
	want := make([]string, 0, len(uniq))
	for n := range uniq {
		want = append(want, n)
	}
	if err := db.Where("name IN ?", want).Find(&perms).Error; err != nil {
		return nil, errors.Wrap(err, "load permissions")
	}
	if len(perms) != len(want) {
		found := map[string]bool{}
		for _, p := range perms {
			found[p.Name] = true
		}
		for _, n := range want {
			if !found[n] {
				return nil, userErr(ErrValidation, "Permission tidak dikenal: "+n)
			}
		}
	}
	return perms, nil
}

// SyncUserPermissions replaces the permissions granted to the user directly.
// A nil list drops every direct grant, leaving only what the user's role
// carries.
func (s *PermissionService) SyncUserPermissions(ctx context.Context, db *gorm.DB, user *models.User, names []string) error {
	if db == nil {
		db = s.db
	}
	db = db.WithContext(ctx)
	perms, err := s.loadPermissions(db, names)
	if err != nil {
		return err
	}
	assoc := db.Model(user).Association("Permissions")
	if len(perms) == 0 {
		return errors.Wrap(assoc.Clear(), "clear user permissions")
	}
	return errors.Wrap(assoc.Replace(perms), "sync user permissions")
}

// grantedTo scopes permissions to those held by user, either directly or
// through the role named by user.Role.
func grantedTo(db *gorm.DB, user models.User) *gorm.DB {
	direct := db.Table("user_permissions").Select("permission_id").Where("user_id = ?", user.ID)
	viaRole := db.Table("role_permissions").Select("role_permissions.permission_id").
		Joins("JOIN roles ON roles.id = role_permissions.role_id").
		Where("roles.name = ? AND roles.deleted_at IS NULL", user.Role)
	return db.Model(&models.Permission{}).
		Where("permissions.id IN (?) OR permissions.id IN (?)", direct, viaRole)
}

// UserPermissions lists the names a user holds, directly or through their
// role. Admins hold everything.
func (s *PermissionService) UserPermissions(ctx context.Context, user models.User) ([]string, error) {
	if user.Role == models.RoleAdmin {
		return AllPermissions(), nil
	}
	var names []string
	err := grantedTo(s.db.WithContext(ctx), user).
		Distinct("permissions.name").Order("permissions.name").Pluck("permissions.name", &names).Error
	return names, errors.Wrap(err, "load user permissions")
}

// HasPermission reports whether the user holds name. Admins always pass.
func (s *PermissionService) HasPermission(ctx context.Context, user models.User, name string) (bool, error) {
	if user.Role == models.RoleAdmin {
		return true, nil
	}
	var n int64
	err := grantedTo(s.db.WithContext(ctx), user).Where("permissions.name = ?", name).Count(&n).Error
	if err != nil {
		return false, errors.Wrap(err, "check permission")
	}
	return n > 0, nil
}

// ---- roles ----

func (s *PermissionService) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	err := s.db.WithContext(ctx).Preload("Permissions").Order("name").Find(&roles).Error
	return roles, errors.Wrap(err, "list roles")
}

func (s *PermissionService) checkRoleName(ctx context.Context, id uint, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", userErr(ErrValidation, "Nama role wajib diisi")
	}
	if len(name) > 255 {
		return "", userErr(ErrValidation, "Nama role maksimal 255 karakter")
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Role{}).Where("name = ? AND id <> ?", name, id).Count(&n).Error
	if err != nil {
		return "", errors.Wrap(err, "check role name")
	}
	if n > 0 {
		return "", userErr(ErrConflict, "Nama role sudah digunakan")
	}
	return name, nil
}

func (s *PermissionService) CreateRole(ctx context.Context, name string) (*models.Role, error) {
	name, err := s.checkRoleName(ctx, 0, name)
	if err != nil {
		return nil, err
	}
	r := models.Role{Name: name, GuardName: "web"}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return nil, errors.Wrap(err, "create role")
	}
	logrus.WithField("role", name).Info("role created")
	return &r, nil
}

func (s *PermissionService) findRole(ctx context.Context, id uint) (*models.Role, error) {
	var r models.Role
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, notFound(err, "Role tidak ditemukan")
	}
	return &r, nil
}

// UpdateRole renames a custom role. System role names are fixed because
// users reference them by name.
func (s *PermissionService) UpdateRole(ctx context.Context, id uint, name string) (*models.Role, error) {
	r, err := s.findRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if name, err = s.checkRoleName(ctx, id, name); err != nil {
		return nil, err
	}
	if isSystemRole(r.Name) && name != r.Name {
		return nil, userErr(ErrForbidden, "Cannot rename system roles.")
	}
	r.Name = name
	return r, errors.Wrap(s.db.WithContext(ctx).Save(r).Error, "update role")
}

func (s *PermissionService) DeleteRole(ctx context.Context, id uint) error {
	r, err := s.findRole(ctx, id)
	if err != nil {
		return err
	}
	if isSystemRole(r.Name) {
		return userErr(ErrForbidden, "Cannot delete system roles.")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(r).Association("Permissions").Clear(); err != nil {
			return errors.Wrap(err, "clear role permissions")
		}
		return errors.Wrap(tx.Delete(r).Error, "delete role")
	})
}

// SyncRolePermissions replaces the permissions attached to a role.
func (s *PermissionService) SyncRolePermissions(ctx context.Context, id uint, names []string) (*models.Role, error) {
	r, err := s.findRole(ctx, id)
	if err != nil {
		return nil, err
	}
	perms, err := s.loadPermissions(s.db.WithContext(ctx), names)
	if err != nil {
		return nil, err
	}
	assoc := s.db.WithContext(ctx).Model(r).Association("Permissions")
	if len(perms) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(perms)
	}
	if err != nil {
		return nil, errors.Wrap(err, "sync role permissions")
	}
	r.Permissions = perms
	return r, nil
}

// GroupedPermissions is the picker shown when editing a user. view_dashboard
// is left out since every role has it.
func GroupedPermissions() map[string][]string {
	out := map[string][]string{}
	for group, perms := range PermissionCatalogue {
		for _, p := range perms {
			if p == PermViewDashboard {
				continue
			}
			out[group] = append(out[group], p)
		}
	}
	return out
}
