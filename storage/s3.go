package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"aslab_go/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MaxImageSize bounds aset and bahan pictures.
const MaxImageSize = 2 << 20

var (
	ErrNotImage     = errors.New("file is not an image")
	ErrFileTooLarge = errors.New("file too large")
)

var imageExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}

// StorageService keeps inventory pictures in S3.
type StorageService struct {
	s3Client s3iface.S3API
	bucket   string
	region   string
	now      func() time.Time
}

// NewStorageService creates a new storage service
func NewStorageService() (*StorageService, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AppConfig.AWSRegion),
		Credentials: credentials.NewStaticCredentials(
			config.AppConfig.AWSAccessKeyID,
			config.AppConfig.AWSSecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create AWS session")
	}
	return NewWithClient(s3.New(sess), config.AppConfig.S3BucketName, config.AppConfig.AWSRegion), nil
}

func NewWithClient(client s3iface.S3API, bucket, region string) *StorageService {
	return &StorageService{s3Client: client, bucket: bucket, region: region, now: time.Now}
}

// UploadImage stores an uploaded picture under folder/userID/Y/m/d and
// returns its public URL. Images are converted to WebP when cwebp exists.
func (s *StorageService) UploadImage(ctx context.Context, file *multipart.FileHeader, folder string, userID uint) (string, error) {
	if file.Size > MaxImageSize {
		return "", ErrFileTooLarge
	}
	src, err := file.Open()
	if err != nil {
		return "", errors.Wrap(err, "open upload")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxImageSize+1))
	if err != nil {
		return "", errors.Wrap(err, "read upload")
	}
	if len(data) > MaxImageSize {
		return "", ErrFileTooLarge
	}
	return s.PutImage(ctx, file.Filename, data, folder, userID)
}

// PutImage uploads raw image bytes.
func (s *StorageService) PutImage(ctx context.Context, filename string, data []byte, folder string, userID uint) (string, error) {
	ext := fileExtension(filename)
	if !isImage(ext) || !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return "", ErrNotImage
	}
	if ext != "webp" && ext != "gif" {
		if converted, ok := convertToWebP(data); ok {
			data, ext = converted, "webp"
		}
	}

	key := s.objectKey(folder, userID, ext)
	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(ext)),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return "", errors.Wrap(err, "upload to S3")
	}
	return s.publicURL(key), nil
}

// DeleteFile deletes a file from S3
func (s *StorageService) DeleteFile(ctx context.Context, fileURL string) error {
	key := s.keyFromURL(fileURL)
	if key == "" {
		return fmt.Errorf("invalid file URL %q", fileURL)
	}
	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrap(err, "delete from S3")
}

func (s *StorageService) objectKey(folder string, userID uint, ext string) string {
	now := s.now()
	return fmt.Sprintf("%s/%d/%d/%02d/%02d/%s.%s",
		folder, userID, now.Year(), now.Month(), now.Day(), uuid.New().String()[:16], ext)
}

func (s *StorageService) publicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// keyFromURL only accepts URLs of this bucket.
func (s *StorageService) keyFromURL(url string) string {
	prefix := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", s.bucket, s.region)
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	return strings.TrimPrefix(url, prefix)
}

func isImage(ext string) bool {
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func fileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 1 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// convertToWebP shells out to cwebp so the binary needs no cgo.
func convertToWebP(img []byte) ([]byte, bool) {
	cwebp, err := exec.LookPath("cwebp")
	if err != nil {
		return nil, false
	}
	dir, err := os.MkdirTemp("", "aslab-img-")
	if err != nil {
		return nil, false
	}
	defer os.RemoveAll(dir)

	in, out := filepath.Join(dir, "in"), filepath.Join(dir, "out.webp")
	if err := os.WriteFile(in, img, 0o600); err != nil {
		return nil, false
	}
	if err := exec.Command(cwebp, "-q", "80", in, "-o", out).Run(); err != nil {
		return nil, false
	}
	b, err := os.ReadFile(out)
	if err != nil {
		return nil, false
	}
	return b, true
}

func contentType(ext string) string {
	switch ext {
	case "webp":
		return "image/webp"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
