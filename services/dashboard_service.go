package services

import (
	"context"
	"strings"
	"time"

	"aslab_go/models"
	"aslab_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DashboardService aggregates attendance for the dashboard.
type DashboardService struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

func NewDashboardService(db *gorm.DB, loc *time.Location) *DashboardService {
	return &DashboardService{db: db, loc: loc, now: time.Now}
}

// DateRange is an inclusive Y-m-d range. Empty bounds take the defaults of
// each query.
type DateRange struct {
	Start string `json:"start_date"`
	End   string `json:"end_date"`
}

type DashboardStats struct {
	TotalAslabs    int64 `json:"total_aslabs"`
	TodayCheckins  int64 `json:"today_checkins"`
	TodayCheckouts int64 `json:"today_checkouts"`
	ActiveToday    int64 `json:"active_today"`
}

type PeriodAttendance struct {
	User     utils.UserShort `json:"user"`
	Date     string          `json:"date"`
	CheckIn  *string         `json:"check_in"`
	CheckOut *string         `json:"check_out"`
	Status   string          `json:"status"`
}

type ActiveAslab struct {
	Name            string `json:"name"`
	Prodi           string `json:"prodi"`
	Semester        *int   `json:"semester"`
	TotalAttendance int64  `json:"total_attendance"`
}

type ChartPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type DayDetailEntry struct {
	User     utils.UserShort `json:"user"`
	CheckIn  *time.Time      `json:"check_in"`
	CheckOut *time.Time      `json:"check_out"`
	Status   string          `json:"status"`
	Date     string          `json:"date"`
}

// DashboardData is the full payload for the page and the websocket push.
type DashboardData struct {
	Stats            *DashboardStats    `json:"stats"`
	TodayAttendances []PeriodAttendance `json:"todayAttendances"`
	MostActiveAslabs []ActiveAslab      `json:"mostActiveAslabs"`
	WeeklyChartData  []ChartPoint       `json:"weeklyChartData"`
}

func (s *DashboardService) today() string {
	return s.now().In(s.loc).Format(utils.DateLayout)
}

// orToday fills an empty range with today, and an empty end with start.
func (s *DashboardService) orToday(r DateRange) DateRange {
	if r.Start == "" {
		r.Start = s.today()
	}
	if r.End == "" {
		r.End = r.Start
	}
	return r
}

func (s *DashboardService) countType(ctx context.Context, typ, start, end string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Attendance{}).
		Where("date BETWEEN ? AND ? AND type = ?", start, end, typ).Count(&n).Error
	return n, err
}

// Stats counts aslabs and attendance in the range. ActiveToday is only
// computed when the range covers today.
func (s *DashboardService) Stats(ctx context.Context, r DateRange) (*DashboardStats, error) {
	r = s.orToday(r)
	st := &DashboardStats{}
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ? AND is_active = ?", models.RoleAslab, true).Count(&st.TotalAslabs).Error; err != nil {
		return nil, errors.Wrap(err, "count aslabs")
	}
	var err error
	if st.TodayCheckins, err = s.countType(ctx, models.AttendanceCheckIn, r.Start, r.End); err != nil {
		return nil, errors.Wrap(err, "count check-ins")
	}
	if st.TodayCheckouts, err = s.countType(ctx, models.AttendanceCheckOut, r.Start, r.End); err != nil {
		return nil, errors.Wrap(err, "count check-outs")
	}

	today := s.today()
	if r.Start <= today && r.End >= today {
		in, err := s.countType(ctx, models.AttendanceCheckIn, today, today)
		if err != nil {
			return nil, errors.Wrap(err, "count today check-ins")
		}
		out, err := s.countType(ctx, models.AttendanceCheckOut, today, today)
		if err != nil {
			return nil, errors.Wrap(err, "count today check-outs")
		}
		if in > out {
			st.ActiveToday = in - out
		}
	}
	return st, nil
}

// TodayAttendances lists one line per user per date in the range.
func (s *DashboardService) TodayAttendances(ctx context.Context, r DateRange) ([]PeriodAttendance, error) {
	r = s.orToday(r)
	var rows []models.Attendance
	if err := s.db.WithContext(ctx).Preload("User").
		Where("date BETWEEN ? AND ?", r.Start, r.End).
		Order("timestamp desc").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load attendance")
	}

	type key struct {
		user uint
		date string
	}
	idx := map[key]*PeriodAttendance{}
	var order []key
	for _, a := range rows {
		k := key{a.UserID, a.Date}
		p, ok := idx[k]
		if !ok {
			p = &PeriodAttendance{User: utils.ToUserShort(a.User), Date: a.Date}
			idx[k] = p
			order = append(order, k)
		}
		t := a.Timestamp.In(s.loc).Format(utils.TimeLayout)
		if a.Type == models.AttendanceCheckIn {
			p.CheckIn = &t
		} else {
			p.CheckOut = &t
		}
	}

	out := make([]PeriodAttendance, 0, len(order))
	for _, k := range order {
		p := idx[k]
		p.Status = "Sedang di lab"
		if p.CheckIn != nil && p.CheckOut != nil {
			p.Status = "Sudah pulang"
		}
		out = append(out, *p)
	}
	return out, nil
}

// MostActive ranks active aslabs by check-ins. Defaults to month to date.
func (s *DashboardService) MostActive(ctx context.Context, r DateRange) ([]ActiveAslab, error) {
	now := s.now().In(s.loc)
	if r.Start == "" {
		r.Start = utils.StartOfMonth(now).Format(utils.DateLayout)
	}
	if r.End == "" {
		r.End = now.Format(utils.DateLayout)
	}

	var out []ActiveAslab
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Select("users.name, users.prodi, users.semester, COUNT(attendances.id) AS total_attendance").
		Joins("LEFT JOIN attendances ON attendances.user_id = users.id AND attendances.type = ? AND attendances.date BETWEEN ? AND ? AND attendances.deleted_at IS NULL",
			models.AttendanceCheckIn, r.Start, r.End).
		Where("users.role = ? AND users.is_active = ?", models.RoleAslab, true).
		Group("users.id, users.name, users.prodi, users.semester").
		Order("total_attendance desc").Order("users.name").
		Limit(10).
		Scan(&out).Error
	return out, errors.Wrap(err, "most active aslabs")
}

// Chart returns check-in counts. Ranges up to 31 days are daily (d/m);
// longer ones are monthly (Jan 2006) with each month clamped to the range.
func (s *DashboardService) Chart(ctx context.Context, r DateRange) ([]ChartPoint, error) {
	var start, end time.Time
	if r.Start == "" || r.End == "" {
		end = utils.StartOfDay(s.now().In(s.loc))
		start = end.AddDate(0, 0, -6)
	} else {
		var err error
		if start, err = utils.ParseDate(r.Start, s.loc); err != nil {
			return nil, userErr(ErrValidation, "Format tanggal tidak valid")
		}
		if end, err = utils.ParseDate(r.End, s.loc); err != nil {
			return nil, userErr(ErrValidation, "Format tanggal tidak valid")
		}
	}
	if end.Before(start) {
		start, end = end, start
	}

	var points []ChartPoint
	days := int(end.Sub(start).Hours() / 24)
	if days <= 31 {
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			ds := d.Format(utils.DateLayout)
			n, err := s.countType(ctx, models.AttendanceCheckIn, ds, ds)
			if err != nil {
				return nil, errors.Wrap(err, "chart count")
			}
			points = append(points, ChartPoint{Date: d.Format("02/01"), Count: n})
		}
		return points, nil
	}

	for m := utils.StartOfMonth(start); !m.After(end); m = m.AddDate(0, 1, 0) {
		from, to := m, m.AddDate(0, 1, -1)
		if from.Before(start) {
			from = start
		}
		if to.After(end) {
			to = end
		}
		n, err := s.countType(ctx, models.AttendanceCheckIn, from.Format(utils.DateLayout), to.Format(utils.DateLayout))
		if err != nil {
			return nil, errors.Wrap(err, "chart count")
		}
		points = append(points, ChartPoint{Date: m.Format("Jan 2006"), Count: n})
	}
	return points, nil
}

// ParseDayParam accepts d/m (current year) or Y-m-d.
func (s *DashboardService) ParseDayParam(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation("2/1", raw, s.loc); err == nil {
		y := s.now().In(s.loc).Year()
		return time.Date(y, t.Month(), t.Day(), 0, 0, 0, 0, s.loc).Format(utils.DateLayout), nil
	}
	if t, err := utils.ParseDate(raw, s.loc); err == nil {
		return t.Format(utils.DateLayout), nil
	}
	return "", userErr(ErrValidation, "Invalid date format: "+raw)
}

// DayDetail lists every user with attendance on a date and whether the day
// is complete.
func (s *DashboardService) DayDetail(ctx context.Context, raw string) ([]DayDetailEntry, error) {
	date, err := s.ParseDayParam(raw)
	if err != nil {
		return nil, err
	}
	var rows []models.Attendance
	if err := s.db.WithContext(ctx).Preload("User").Where("date = ?", date).
		Order("user_id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load day attendance")
	}

	idx := map[uint]*DayDetailEntry{}
	var order []uint
	for _, a := range rows {
		e, ok := idx[a.UserID]
		if !ok {
			e = &DayDetailEntry{User: utils.ToUserShort(a.User), Date: date}
			idx[a.UserID] = e
			order = append(order, a.UserID)
		}
		ts := a.Timestamp
		if a.Type == models.AttendanceCheckIn {
			e.CheckIn = &ts
		} else {
			e.CheckOut = &ts
		}
	}
	out := make([]DayDetailEntry, 0, len(order))
	for _, id := range order {
		e := idx[id]
		e.Status = dayStatus(e.CheckIn != nil, e.CheckOut != nil)
		out = append(out, *e)
	}
	logrus.WithFields(logrus.Fields{"date": date, "count": len(out)}).Debug("day detail")
	return out, nil
}

func dayStatus(in, out bool) string {
	switch {
	case in && out:
		return "present"
	case in || out:
		return "partial"
	default:
		return "absent"
	}
}

// AllDashboardData bundles everything the dashboard page renders.
func (s *DashboardService) AllDashboardData(ctx context.Context, r DateRange) (*DashboardData, error) {
	stats, err := s.Stats(ctx, r)
	if err != nil {
		return nil, err
	}
	today, err := s.TodayAttendances(ctx, r)
	if err != nil {
		return nil, err
	}
	active, err := s.MostActive(ctx, r)
	if err != nil {
		return nil, err
	}
	chart, err := s.Chart(ctx, r)
	if err != nil {
		return nil, err
	}
	return &DashboardData{Stats: stats, TodayAttendances: today, MostActiveAslabs: active, WeeklyChartData: chart}, nil
}

// ChannelBroadcaster pushes an event to websocket subscribers of a channel.
type ChannelBroadcaster interface {
	BroadcastChannel(channel, event string, data interface{})
}

const (
	DashboardChannel       = "dashboard"
	EventAttendanceUpdated = "attendance.updated"
)

// DashboardBroadcaster refreshes dashboard subscribers on each attendance.
type DashboardBroadcaster struct {
	dashboard *DashboardService
	hub       ChannelBroadcaster
}

func NewDashboardBroadcaster(dashboard *DashboardService, hub ChannelBroadcaster) *DashboardBroadcaster {
	return &DashboardBroadcaster{dashboard: dashboard, hub: hub}
}

func (b *DashboardBroadcaster) HandleAttendanceCreated(ctx context.Context, ev AttendanceCreated) {
	data, err := b.dashboard.AllDashboardData(ctx, DateRange{})
	if err != nil {
		logrus.WithFields(logrus.Fields{"attendance_id": ev.Attendance.ID, "error": err.Error()}).Error("dashboard broadcast failed")
		return
	}
	b.hub.BroadcastChannel(DashboardChannel, EventAttendanceUpdated, map[string]interface{}{
		"attendance": map[string]interface{}{
			"id":        ev.Attendance.ID,
			"type":      ev.Attendance.Type,
			"timestamp": ev.Attendance.Timestamp,
			"date":      ev.Attendance.Date,
			"user":      utils.ToUserShort(ev.User),
		},
		"stats":            data.Stats,
		"todayAttendances": data.TodayAttendances,
		"weeklyChartData":  data.WeeklyChartData,
	})
}
