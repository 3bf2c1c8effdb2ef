package services

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusCritical = "critical"

	depUp       = "up"
	depDown     = "down"
	depDisabled = "disabled"

	healthTimeout = 1500 * time.Millisecond
)

// Redis keys whose backlog is reported on /health.
var healthQueues = []string{"notifications:queue", "logs:queue"}

// HealthService reports dependency status and uptime.
type HealthService struct {
	db          *gorm.DB
	rdb         *redis.Client
	name        string
	environment string
	startTime   time.Time
	timeout     time.Duration
	now         func() time.Time
}

type HealthReport struct {
	Status        string             `json:"status"`
	Service       string             `json:"service"`
	Environment   string             `json:"environment"`
	Time          time.Time          `json:"time"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	UptimeHuman   string             `json:"uptime_human"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	Queues        map[string]int64   `json:"queues,omitempty"`
	Runtime       RuntimeStats       `json:"runtime"`
}

type DependencyStatus struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

type RuntimeStats struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heap_alloc_bytes"`
	SysBytes   uint64 `json:"sys_bytes"`
	NumGC      uint32 `json:"num_gc"`
}

// NewHealthService takes the live handles. A nil rdb reports Redis as
// disabled since the app runs without it.
func NewHealthService(db *gorm.DB, rdb *redis.Client, name, environment string) *HealthService {
	if strings.TrimSpace(environment) == "" {
		environment = "unknown"
	}
	return &HealthService{
		db:          db,
		rdb:         rdb,
		name:        name,
		environment: environment,
		startTime:   time.Now(),
		timeout:     healthTimeout,
		now:         time.Now,
	}
}

// Report probes every dependency.
func (s *HealthService) Report(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	uptime := now.Sub(s.startTime)
	if uptime < 0 {
		uptime = 0
	}
	report := HealthReport{
		Status:        StatusOK,
		Service:       s.name,
		Environment:   s.environment,
		Time:          now.UTC(),
		UptimeSeconds: uptime.Seconds(),
		UptimeHuman:   humanizeDuration(uptime),
	}

	db := s.checkDatabase(ctx)
	report.Dependencies = append(report.Dependencies, db)
	if db.Status != depUp {
		report.Status = worse(report.Status, StatusCritical)
	}

	rd := s.checkRedis(ctx)
	report.Dependencies = append(report.Dependencies, rd)
	if rd.Status == depDown {
		report.Status = worse(report.Status, StatusDegraded)
	}
	if rd.Status == depUp {
		report.Queues = s.queueLengths(ctx)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	report.Runtime = RuntimeStats{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  mem.HeapAlloc,
		SysBytes:   mem.Sys,
		NumGC:      mem.NumGC,
	}
	return report
}

// HTTPStatus is 503 only when the database is gone.
func HTTPStatus(status string) int {
	if status == StatusCritical {
		return 503
	}
	return 200
}

func (s *HealthService) checkDatabase(ctx context.Context) DependencyStatus {
	dep := DependencyStatus{Name: "database"}
	if s.db == nil {
		dep.Status, dep.Error = depDown, "database connection not initialised"
		return dep
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		dep.Status, dep.Error = depDown, fmt.Sprintf("sql handle: %v", err)
		return dep
	}
	start := time.Now()
	err = sqlDB.PingContext(ctx)
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status, dep.Error = depDown, err.Error()
		return dep
	}
	st := sqlDB.Stats()
	dep.Status = depUp
	dep.Details = map[string]interface{}{
		"dialect":          s.db.Dialector.Name(),
		"open_connections": st.OpenConnections,
		"in_use":           st.InUse,
		"idle":             st.Idle,
		"wait_count":       st.WaitCount,
	}
	return dep
}

func (s *HealthService) checkRedis(ctx context.Context) DependencyStatus {
	dep := DependencyStatus{Name: "redis"}
	if s.rdb == nil {
		dep.Status = depDisabled
		dep.Details = map[string]interface{}{"fallback": "memory cache, direct DB writes"}
		return dep
	}
	start := time.Now()
	err := s.rdb.Ping(ctx).Err()
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status, dep.Error = depDown, err.Error()
		return dep
	}
	dep.Status = depUp
	dep.Details = map[string]interface{}{"address": s.rdb.Options().Addr}
	return dep
}

func (s *HealthService) queueLengths(ctx context.Context) map[string]int64 {
	out := make(map[string]int64, len(healthQueues))
	for _, key := range healthQueues {
		typ, err := s.rdb.Type(ctx, key).Result()
		if err != nil {
			continue
		}
		var n int64
		switch typ {
		case "list":
			n, err = s.rdb.LLen(ctx, key).Result()
		case "zset":
			n, err = s.rdb.ZCard(ctx, key).Result()
		}
		if err == nil {
			out[key] = n
		}
	}
	return out
}

func worse(a, b string) string {
	rank := map[string]int{StatusOK: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func humanizeDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d %= 24 * time.Hour
	hours := d / time.Hour
	d %= time.Hour
	minutes := d / time.Minute
	seconds := (d % time.Minute) / time.Second

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, " ")
}
