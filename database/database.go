package database

import (
	"aslab_go/cache"
	"aslab_go/config"
	"aslab_go/models"
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB
var RedisClient *redis.Client

// Cache is Redis-backed when Redis is reachable, in-memory otherwise.
var Cache cache.Store

// Connect initializes the database and Redis connections
func Connect() {
	connectDatabase()
	connectRedis()
}

// connectDatabase initializes the database connection
func connectDatabase() {
	var err error
	dsn := config.AppConfig.GetDSN()

	var gormLogger logger.Interface
	if config.AppConfig.AppEnv == "development" {
		gormLogger = logger.Default.LogMode(logger.Info)
	} else {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	var lastErr error
	for attempt := 1; attempt <= 8; attempt++ {
		DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger: gormLogger,
		})
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		logrus.WithFields(logrus.Fields{"attempt": attempt, "error": err.Error()}).Warn("database connect attempt failed")
		time.Sleep(time.Duration(attempt*attempt) * 300 * time.Millisecond)
	}
	if lastErr != nil {
		logrus.WithError(lastErr).Fatal("failed to connect to database after retries")
	}

	logrus.Info("Database connected successfully")

	sqlDB, err := DB.DB()
	if err != nil {
		logrus.WithError(err).Fatal("failed to get database instance")
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(55 * time.Minute)

	if !config.AppConfig.SkipMigrate {
		if err := AutoMigrate(DB); err != nil {
			logrus.WithError(err).Fatal("auto migration failed")
		}
		logrus.Info("Database migration completed successfully")
	}
}

// Models lists every table managed by AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&models.Permission{},
		&models.Role{},
		&models.User{},
		&models.Attendance{},
		&models.JenisAset{},
		&models.Lokasi{},
		&models.AsetAslab{},
		&models.Bahan{},
		&models.PeminjamanAset{},
		&models.PenggunaanBahan{},
		&models.Kelas{},
		&models.DosenPraktikum{},
		&models.MataKuliahPraktikum{},
		&models.KelasPraktikum{},
		&models.AbsensiPraktikum{},
		&models.ActivityLog{},
		&models.Notification{},
		&models.LogArchive{},
	}
}

// AutoMigrate performs automatic database migration
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// connectRedis initializes Redis connection
func connectRedis() {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.AppConfig.RedisHost, config.AppConfig.RedisPort),
		Password: config.AppConfig.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := RedisClient.Ping(ctx).Result()
	if err != nil {
		logrus.WithError(err).Warn("Redis connection failed")
		logrus.Info("Continuing without Redis: cache is in-memory and logs are saved directly to database")
		RedisClient = nil
		Cache = cache.NewMemoryStore(time.Minute)
		return
	}

	Cache = cache.NewRedisStore(RedisClient, "aslab:")
	logrus.Info("Redis connected successfully")
}

// GetRedisClient returns the Redis client instance
func GetRedisClient() *redis.Client {
	return RedisClient
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() {
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		logrus.WithError(err).Error("error getting database instance")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("error closing database connection")
		return
	}

	logrus.Info("Database connection closed")
}
