package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// JWT
	JWTSecret    string
	JWTExpiresIn time.Duration

	// AWS S3
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3BucketName       string
	LogArchiveBucket   string

	// Server
	Port        string
	AppEnv      string
	AppName     string
	FrontendURL string
	Timezone    string

	// RFID devices send this in X-Device-Key; empty disables the check
	RFIDDeviceKey string

	// Telegram
	TelegramEnabled       bool
	TelegramBotToken      string
	TelegramWebhookURL    string
	TelegramWebhookSecret string
	TelegramAdminChatID   string

	// LINE
	LineChannelSecret string
	LineChannelToken  string

	// Mail
	SendgridAPIKey string
	MailFromName   string
	MailFromEmail  string

	// Error reporting
	RollbarToken string

	// File Upload
	MaxFileSize int64

	// Logging
	LogLevel string
	LogFile  string

	// Feature Toggles
	UseRedisNotifications bool
	SkipMigrate           bool
	DailyReportEnabled    bool
}

func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=Local"
}

// Location returns the configured timezone, falling back to a fixed WIB offset
// when the tz database is missing from the host.
func (c *Config) Location() *time.Location {
	return LoadLocation(c.Timezone)
}

// LoadLocation resolves name, defaulting to Asia/Jakarta.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = "Asia/Jakarta"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

var AppConfig *Config

func LoadConfig() {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var (
		ssmClient *ssm.SSM
		paramMap  map[string]string
	)

	basePath := getEnv("SSM_BASE_PATH", "/aslab")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	basePath = strings.TrimRight(basePath, "/")
	prefix := basePath + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "ap-southeast-1"))})
		if err != nil {
			logrus.Fatal("Failed to create AWS session:", err)
		}
		ssmClient = ssm.New(sess)
		logrus.Infof("Using AWS SSM Parameter Store (prefix=%s)", prefix)
		paramMap = fetchSSMParameters(ssmClient, prefix)
	} else {
		if err := godotenv.Load(); err != nil {
			logrus.Warn(".env file not found, using environment variables")
		}
	}

	getVal := func(key, def string) string {
		if useSSM {
			uk := strings.ToUpper(key)
			if v, ok := paramMap[uk]; ok && v != "" {
				return v
			}
		}
		return getEnv(strings.ToUpper(key), def)
	}
	getBool := func(key, def string) bool {
		return strings.ToLower(getVal(key, def)) == "true"
	}

	jwtExpires, err := ParseDuration(getVal("JWT_EXPIRES_IN", "24h"))
	if err != nil {
		logrus.Fatal("Invalid JWT_EXPIRES_IN format:", err)
	}

	maxFileSizeStr := getVal("MAX_FILE_SIZE", "5242880")
	maxFileSize, err := strconv.ParseInt(maxFileSizeStr, 10, 64)
	if err != nil {
		logrus.Fatal("Invalid MAX_FILE_SIZE format:", err)
	}

	AppConfig = &Config{
		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", "3306"),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "aslab"),

		RedisHost:     getVal("REDIS_HOST", "localhost"),
		RedisPort:     getVal("REDIS_PORT", "6379"),
		RedisPassword: getVal("REDIS_PASSWORD", ""),

		JWTSecret:    getVal("JWT_SECRET", "your_super_secret_jwt_key"),
		JWTExpiresIn: jwtExpires,

		AWSRegion:          getVal("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:     getVal("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getVal("AWS_SECRET_ACCESS_KEY", ""),
		S3BucketName:       getVal("S3_BUCKET_NAME", "aslab-storage"),
		LogArchiveBucket:   getVal("LOG_ARCHIVE_BUCKET", getVal("S3_BUCKET_NAME", "aslab-storage")),

		Port:        getVal("PORT", "3000"),
		AppEnv:      getVal("APP_ENV", "development"),
		AppName:     getVal("APP_NAME", "Sistem Absensi Aslab"),
		FrontendURL: getVal("FRONTEND_URL", "http://localhost:5173"),
		Timezone:    getVal("APP_TIMEZONE", "Asia/Jakarta"),

		RFIDDeviceKey: getVal("RFID_DEVICE_KEY", ""),

		TelegramEnabled:       getBool("TELEGRAM_ENABLED", "false"),
		TelegramBotToken:      getVal("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookURL:    getVal("TELEGRAM_WEBHOOK_URL", ""),
		TelegramWebhookSecret: getVal("TELEGRAM_WEBHOOK_SECRET", ""),
		TelegramAdminChatID:   getVal("TELEGRAM_ADMIN_CHAT_ID", ""),

		LineChannelSecret: getVal("LINE_CHANNEL_SECRET", ""),
		LineChannelToken:  getVal("LINE_CHANNEL_TOKEN", ""),

		SendgridAPIKey: getVal("SENDGRID_API_KEY", ""),
		MailFromName:   getVal("MAIL_FROM_NAME", "Aslab Lab"),
		MailFromEmail:  getVal("MAIL_FROM_EMAIL", "no-reply@aslab.local"),

		RollbarToken: getVal("ROLLBAR_TOKEN", ""),

		MaxFileSize: maxFileSize,

		LogLevel: getVal("LOG_LEVEL", "info"),
		LogFile:  getVal("LOG_FILE", "logs/app.log"),

		UseRedisNotifications: getBool("USE_REDIS_NOTIFICATIONS", "false"),
		SkipMigrate:           getBool("SKIP_MIGRATE", "false"),
		DailyReportEnabled:    getBool("DAILY_REPORT_ENABLED", "false"),
	}

	validateConfig(AppConfig, useSSM)
}

// ParseDuration accepts Go durations plus the d (days) and w (weeks)
// shorthands. A bare integer is read as hours.
func ParseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err == nil {
		return d, nil
	}
	s := strings.TrimSpace(strings.ToLower(raw))
	if n, err2 := strconv.Atoi(s); err2 == nil {
		return time.Duration(n) * time.Hour, nil
	}
	if len(s) > 1 {
		unit := s[len(s)-1]
		if n, err2 := strconv.Atoi(s[:len(s)-1]); err2 == nil {
			switch unit {
			case 'd':
				return time.Duration(n) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(n*7) * 24 * time.Hour, nil
			}
		}
	}
	return 0, err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// fetchSSMParameters reads all parameters under prefix and returns map with UPPERCASE keys.
func fetchSSMParameters(client *ssm.SSM, prefix string) map[string]string {
	out := make(map[string]string)
	next := aws.String("")
	for {
		in := &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			WithDecryption: aws.Bool(true),
			Recursive:      aws.Bool(true),
		}
		if *next != "" {
			in.NextToken = next
		}
		resp, err := client.GetParametersByPath(in)
		if err != nil {
			logrus.WithError(err).Warnf("unable to fetch SSM parameters for prefix %s", prefix)
			break
		}
		for _, p := range resp.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			name := *p.Name
			idx := strings.LastIndex(name, "/")
			key := name
			if idx >= 0 {
				key = name[idx+1:]
			}
			if key == "" {
				continue
			}
			out[strings.ToUpper(key)] = *p.Value
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		next = resp.NextToken
	}
	return out
}

func validateConfig(c *Config, usedSSM bool) {
	if c.TelegramEnabled && strings.TrimSpace(c.TelegramBotToken) == "" {
		logrus.Fatal("TELEGRAM_ENABLED=true but TELEGRAM_BOT_TOKEN is empty")
	}
	// Only enforce stricter rules in production
	if strings.ToLower(c.AppEnv) != "production" {
		return
	}
	required := map[string]string{
		"DB_HOST":     c.DBHost,
		"DB_NAME":     c.DBName,
		"DB_PASSWORD": c.DBPassword,
		"JWT_SECRET":  c.JWTSecret,
	}
	for k, v := range required {
		if strings.TrimSpace(v) == "" {
			logrus.Fatalf("Missing required secret %s in production (SSM=%v)", k, usedSSM)
		}
	}
	if len(c.JWTSecret) < 16 {
		logrus.Fatal("JWT_SECRET too short (min 16 chars)")
	}
}
