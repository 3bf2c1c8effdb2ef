package services

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"aslab_go/models"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiveStore struct {
	objects map[string][]byte
}

func (f *fakeArchiveStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeArchiveStore) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.objects[*in.Key]))}, nil
}

func TestRecordWithoutRedisWritesDatabase(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	svc := NewLogArchiveServiceWithStore(db, nil, nil, "bucket")
	u := createUser(t, db, "admin", withRole(models.RoleAdmin))

	require.NoError(t, svc.Record(ctx, models.ActivityLog{UserID: u.ID, Action: "CREATE", Resource: "loans", ResourceID: 3}))
	require.NoError(t, svc.Record(ctx, models.ActivityLog{UserID: u.ID, Action: "DELETE", Resource: "users"}))

	n, err := svc.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	logs, total, err := svc.List(ctx, LogFilter{Resource: "loans"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	assert.Equal(t, "admin", logs[0].User.Name)
}

func TestArchiveOldLogs(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	store := &fakeArchiveStore{}
	svc := NewLogArchiveServiceWithStore(db, nil, store, "bucket")
	now := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)
	u := createUser(t, db, "andi")

	old := models.ActivityLog{UserID: u.ID, Action: "UPDATE", Resource: "aset", Details: models.JSON(`{"stok":3}`)}
	old.CreatedAt = now.AddDate(0, 0, -40)
	require.NoError(t, db.Create(&old).Error)
	recent := models.ActivityLog{UserID: u.ID, Action: "UPDATE", Resource: "aset"}
	recent.CreatedAt = now.AddDate(0, 0, -2)
	require.NoError(t, db.Create(&recent).Error)

	_, err := svc.Archive(ctx, 3)
	assert.ErrorIs(t, err, ErrValidation)

	a, err := svc.Archive(ctx, 30)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 1, a.RecordCount)
	assert.Equal(t, "logs/archived/2025/03/activity_logs_2025-03-01.zip", a.S3Key)

	zr, err := zip.NewReader(bytes.NewReader(store.objects[a.S3Key]), int64(len(store.objects[a.S3Key])))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"activity_logs.json", "activity_logs.csv"}, names)

	var left []models.ActivityLog
	require.NoError(t, db.Unscoped().Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, recent.ID, left[0].ID)

	again, err := svc.Archive(ctx, 30)
	require.NoError(t, err)
	assert.Nil(t, again)

	rc, name, err := svc.Download(ctx, a.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, a.FileName, name)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, store.objects[a.S3Key], body)
}
