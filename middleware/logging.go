package middleware

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"aslab_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ActivityRecorder stores activity log entries. *services.LogArchiveService
// implements it.
type ActivityRecorder interface {
	Record(ctx context.Context, entry models.ActivityLog) error
}

var recorder ActivityRecorder

// SetActivityRecorder installs the sink used by LogActivity.
func SetActivityRecorder(r ActivityRecorder) { recorder = r }

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		entry := logrus.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"duration":   time.Since(start).String(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
		})
		if id, ok := c.Locals("requestid").(string); ok {
			entry = entry.WithField("request_id", id)
		}
		switch {
		case status >= 500:
			entry.Error("HTTP Request")
		case status >= 400:
			entry.Warn("HTTP Request")
		default:
			entry.Info("HTTP Request")
		}
		return err
	}
}

// LogActivity records a user action. The write happens off the request
// goroutine.
func LogActivity(c *fiber.Ctx, action, resource string, resourceID uint, details interface{}) {
	if recorder == nil {
		return
	}
	var userID uint
	if user, err := GetCurrentUser(c); err == nil {
		userID = user.ID
	}

	entry := models.ActivityLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
	}
	entry.CreatedAt = time.Now()

	meta := map[string]interface{}{
		"original_details": details,
		"integrity_hash":   integrityHash(entry),
		"request_id":       c.Get("X-Request-ID", uuid.NewString()),
		"forwarded_for":    c.Get("X-Forwarded-For"),
		"method":           c.Method(),
		"path":             c.Path(),
		"query":            string(c.Request().URI().QueryString()),
		"status_code":      c.Response().StatusCode(),
	}
	if b, err := json.Marshal(meta); err == nil {
		entry.Details = b
	}

	go func(e models.ActivityLog) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in LogActivity goroutine")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.Record(ctx, e); err != nil {
			logrus.WithError(err).Error("failed to record activity log")
		}
	}(entry)
}

// integrityHash fingerprints the fields that identify an entry.
func integrityHash(log models.ActivityLog) string {
	data := fmt.Sprintf("%d:%s:%s:%d:%s:%s:%s",
		log.UserID, log.Action, log.Resource, log.ResourceID,
		log.IPAddress, log.UserAgent, log.CreatedAt.Format(time.RFC3339))
	return fmt.Sprintf("%x", md5.Sum([]byte(data)))
}

// LogActivityMiddleware automatically logs write requests that succeed.
func LogActivityMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || strings.Contains(c.Path(), "/auth/") {
			return c.Next()
		}

		err := c.Next()

		var action string
		switch c.Method() {
		case fiber.MethodPost:
			action = "CREATE"
		case fiber.MethodPut, fiber.MethodPatch:
			action = "UPDATE"
		case fiber.MethodDelete:
			action = "DELETE"
		default:
			return err
		}

		if err == nil && c.Response().StatusCode() < 400 {
			LogActivity(c, action, resourceFromPath(c.Path()), resourceID(c), nil)
		}
		return err
	}
}

// resourceFromPath returns the segment after /api.
func resourceFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "api" {
		return parts[1]
	}
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}

func resourceID(c *fiber.Ctx) uint {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
