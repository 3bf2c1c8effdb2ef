package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"aslab_go/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	LogQueueKey       = "logs:queue"
	logEntryTTL       = 48 * time.Hour
	MinArchiveAgeDays = 7
	archiveBatchSize  = 1000
)

// ArchiveStore is the part of the S3 v2 client used for archives.
type ArchiveStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// LogArchiveService owns activity logs: queueing in Redis, flushing to the
// database and archiving old rows to S3.
type LogArchiveService struct {
	db     *gorm.DB
	rdb    *redis.Client
	store  ArchiveStore
	bucket string
	now    func() time.Time
}

// NewLogArchiveService loads the default AWS chain for region. Archiving
// fails until credentials resolve; queueing and flushing still work.
func NewLogArchiveService(ctx context.Context, db *gorm.DB, rdb *redis.Client, region, bucket string) *LogArchiveService {
	s := &LogArchiveService{db: db, rdb: rdb, bucket: bucket, now: time.Now}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		logrus.WithError(err).Warn("aws config not loaded; log archiving disabled")
		return s
	}
	s.store = s3.NewFromConfig(cfg)
	return s
}

func NewLogArchiveServiceWithStore(db *gorm.DB, rdb *redis.Client, store ArchiveStore, bucket string) *LogArchiveService {
	return &LogArchiveService{db: db, rdb: rdb, store: store, bucket: bucket, now: time.Now}
}

// Record queues an activity log in Redis, or writes it straight to the
// database when Redis is not available.
func (s *LogArchiveService) Record(ctx context.Context, entry models.ActivityLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if s.rdb != nil {
		err := s.enqueue(ctx, entry)
		if err == nil {
			return nil
		}
		logrus.WithError(err).Warn("activity log queue unavailable, writing to database")
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&entry).Error, "save activity log")
}

func (s *LogArchiveService) enqueue(ctx context.Context, entry models.ActivityLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("log:%d:%s:%d", entry.UserID, entry.Action, entry.CreatedAt.UnixNano())
	if err := s.rdb.Set(ctx, key, data, logEntryTTL).Err(); err != nil {
		return err
	}
	return s.rdb.ZAdd(ctx, LogQueueKey, &redis.Z{Score: float64(entry.CreatedAt.Unix()), Member: key}).Err()
}

// Flush moves every queued log into the database and returns the count.
func (s *LogArchiveService) Flush(ctx context.Context) (int, error) {
	if s.rdb == nil {
		return 0, nil
	}
	keys, err := s.rdb.ZRangeByScore(ctx, LogQueueKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(s.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, errors.Wrap(err, "read log queue")
	}
	flushed, failed := 0, 0
	for _, key := range keys {
		raw, err := s.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			s.rdb.ZRem(ctx, LogQueueKey, key)
			continue
		}
		if err != nil {
			failed++
			continue
		}
		var entry models.ActivityLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			logrus.WithError(err).WithField("key", key).Error("drop unreadable activity log")
			s.rdb.ZRem(ctx, LogQueueKey, key)
			continue
		}
		entry.ID = 0
		if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
			failed++
			continue
		}
		pipe := s.rdb.Pipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, LogQueueKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("queued log not removed")
		}
		flushed++
	}
	logrus.WithFields(logrus.Fields{"flushed": flushed, "failed": failed}).Info("activity logs flushed")
	return flushed, nil
}

// LogFilter narrows List. Dates are Y-m-d, inclusive.
type LogFilter struct {
	UserID   uint
	Action   string
	Resource string
	From     string
	To       string
	Offset   int
	Limit    int
}

func (s *LogArchiveService) List(ctx context.Context, f LogFilter) ([]models.ActivityLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.ActivityLog{})
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Resource != "" {
		q = q.Where("resource = ?", f.Resource)
	}
	if f.From != "" {
		from, err := time.Parse("2006-01-02", f.From)
		if err != nil {
			return nil, 0, userErr(ErrValidation, "Format tanggal tidak valid")
		}
		q = q.Where("created_at >= ?", from)
	}
	if f.To != "" {
		to, err := time.Parse("2006-01-02", f.To)
		if err != nil {
			return nil, 0, userErr(ErrValidation, "Format tanggal tidak valid")
		}
		q = q.Where("created_at < ?", to.AddDate(0, 0, 1))
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count logs")
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	var out []models.ActivityLog
	err := q.Preload("User").Order("created_at desc").Offset(f.Offset).Limit(f.Limit).Find(&out).Error
	return out, total, errors.Wrap(err, "list logs")
}

// Archive uploads logs older than days to S3 and removes them from the
// database. It returns nil, nil when nothing is old enough.
func (s *LogArchiveService) Archive(ctx context.Context, days int) (*models.LogArchive, error) {
	if days < MinArchiveAgeDays {
		return nil, userErr(ErrValidation, fmt.Sprintf("Umur arsip minimal %d hari", MinArchiveAgeDays))
	}
	if s.store == nil {
		return nil, errors.New("log archive storage not configured")
	}
	cutoff := s.now().AddDate(0, 0, -days)

	var logs []models.ActivityLog
	var batch []models.ActivityLog
	res := s.db.WithContext(ctx).Preload("User").Where("created_at < ?", cutoff).Order("created_at").
		FindInBatches(&batch, archiveBatchSize, func(tx *gorm.DB, _ int) error {
			logs = append(logs, batch...)
			return nil
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "load logs to archive")
	}
	if len(logs) == 0 {
		logrus.Info("no activity logs to archive")
		return nil, nil
	}

	name := fmt.Sprintf("activity_logs_%s.zip", cutoff.Format("2006-01-02"))
	buf, err := zipLogs(logs)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("logs/archived/%d/%02d/%s", cutoff.Year(), cutoff.Month(), name)
	if _, err := s.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/zip"),
	}); err != nil {
		return nil, errors.Wrap(err, "upload log archive")
	}

	archive := models.LogArchive{
		FileName:    name,
		S3Key:       key,
		StartDate:   logs[0].CreatedAt,
		EndDate:     cutoff,
		RecordCount: len(logs),
		FileSize:    int64(buf.Len()),
		Status:      "completed",
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("created_at < ?", cutoff).Delete(&models.ActivityLog{}).Error; err != nil {
			return errors.Wrap(err, "delete archived logs")
		}
		return errors.Wrap(tx.Create(&archive).Error, "save archive record")
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"key": key, "records": len(logs)}).Info("activity logs archived")
	return &archive, nil
}

type archivedLog struct {
	ID         uint            `json:"id"`
	UserID     uint            `json:"user_id"`
	UserName   string          `json:"user_name,omitempty"`
	UserRole   string          `json:"user_role,omitempty"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID uint            `json:"resource_id"`
	Details    json.RawMessage `json:"details,omitempty"`
	IPAddress  string          `json:"ip_address"`
	UserAgent  string          `json:"user_agent"`
	CreatedAt  time.Time       `json:"created_at"`
}

// zipLogs writes activity_logs.json and activity_logs.csv.
func zipLogs(logs []models.ActivityLog) (*bytes.Buffer, error) {
	rows := make([]archivedLog, len(logs))
	for i, l := range logs {
		rows[i] = archivedLog{
			ID: l.ID, UserID: l.UserID, UserName: l.User.Name, UserRole: l.User.Role,
			Action: l.Action, Resource: l.Resource, ResourceID: l.ResourceID,
			IPAddress: l.IPAddress, UserAgent: l.UserAgent, CreatedAt: l.CreatedAt,
		}
		if !l.Details.IsNull() && json.Valid(l.Details) {
			rows[i].Details = json.RawMessage(l.Details)
		}
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	jf, err := zw.Create("activity_logs.json")
	if err != nil {
		return nil, errors.Wrap(err, "zip json")
	}
	enc := json.NewEncoder(jf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]interface{}{"record_count": len(rows), "logs": rows}); err != nil {
		return nil, errors.Wrap(err, "encode logs")
	}

	cf, err := zw.Create("activity_logs.csv")
	if err != nil {
		return nil, errors.Wrap(err, "zip csv")
	}
	w := csv.NewWriter(cf)
	_ = w.Write([]string{"ID", "User ID", "User", "Role", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"})
	for _, r := range rows {
		_ = w.Write([]string{
			strconv.FormatUint(uint64(r.ID), 10), strconv.FormatUint(uint64(r.UserID), 10), r.UserName, r.UserRole,
			r.Action, r.Resource, strconv.FormatUint(uint64(r.ResourceID), 10), r.IPAddress, r.UserAgent,
			r.CreatedAt.Format("2006-01-02 15:04:05"), string(r.Details),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "write csv")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "close zip")
	}
	return buf, nil
}

func (s *LogArchiveService) Archives(ctx context.Context) ([]models.LogArchive, error) {
	var out []models.LogArchive
	return out, errors.Wrap(s.db.WithContext(ctx).Order("created_at desc").Find(&out).Error, "list archives")
}

// Download opens an archive from S3. The caller closes the reader.
func (s *LogArchiveService) Download(ctx context.Context, id uint) (io.ReadCloser, string, error) {
	var a models.LogArchive
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, "", notFound(err, "Arsip tidak ditemukan")
	}
	if s.store == nil {
		return nil, "", errors.New("log archive storage not configured")
	}
	out, err := s.store.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(a.S3Key)})
	if err != nil {
		return nil, "", errors.Wrap(err, "download archive")
	}
	return out.Body, a.FileName, nil
}
