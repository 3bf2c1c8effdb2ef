package seeders

import (
	"context"

	"aslab_go/models"
	"aslab_go/services"
	"aslab_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AdminAccount is the first administrator created on an empty database.
type AdminAccount struct {
	Name     string
	Email    string
	Password string
}

// SeedAll runs every seeder. Each one skips rows that already exist, so it
// is safe to run on every deploy.
func SeedAll(ctx context.Context, db *gorm.DB, admin AdminAccount) error {
	logrus.Info("Starting database seeding...")

	perms := services.NewPermissionService(db)
	if err := perms.EnsureCatalogue(ctx); err != nil {
		return err
	}
	if err := SeedAdmin(ctx, db, perms, admin); err != nil {
		return err
	}
	if err := SeedReferenceData(ctx, db); err != nil {
		return err
	}

	logrus.Info("Database seeding completed successfully!")
	return nil
}

// SeedAdmin creates the administrator unless any admin exists.
func SeedAdmin(ctx context.Context, db *gorm.DB, perms *services.PermissionService, admin AdminAccount) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return errors.Wrap(err, "count admins")
	}
	if count > 0 {
		logrus.Info("Admin already seeded, skipping...")
		return nil
	}
	if admin.Email == "" || admin.Password == "" {
		return errors.New("admin email and password are required")
	}
	hash, err := utils.HashPassword(admin.Password)
	if err != nil {
		return err
	}
	if admin.Name == "" {
		admin.Name = "Administrator"
	}
	u := models.User{
		Name:     admin.Name,
		Email:    admin.Email,
		Password: hash,
		Role:     models.RoleAdmin,
		IsActive: true,
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return errors.Wrap(err, "create admin")
		}
		if err := perms.SyncUserPermissions(ctx, tx, &u, nil); err != nil {
			return err
		}
		logrus.WithField("email", u.Email).Info("Admin seeded successfully")
		return nil
	})
}

var (
	defaultJenis  = []string{"Elektronik", "Perkakas", "Jaringan", "Furnitur"}
	defaultLokasi = []string{"Lab Komputer 1", "Lab Komputer 2", "Gudang Aslab"}
)

// SeedReferenceData fills the jenis and lokasi lookups the inventory forms
// need.
func SeedReferenceData(ctx context.Context, db *gorm.DB) error {
	tx := db.WithContext(ctx)
	for _, name := range defaultJenis {
		j := models.JenisAset{NamaJenisAset: name}
		if err := tx.Where(models.JenisAset{NamaJenisAset: name}).FirstOrCreate(&j).Error; err != nil {
			return errors.Wrapf(err, "seed jenis %s", name)
		}
	}
	for _, name := range defaultLokasi {
		l := models.Lokasi{NamaLokasi: name}
		if err := tx.Where(models.Lokasi{NamaLokasi: name}).FirstOrCreate(&l).Error; err != nil {
			return errors.Wrapf(err, "seed lokasi %s", name)
		}
	}
	logrus.Info("Reference data seeded successfully")
	return nil
}
