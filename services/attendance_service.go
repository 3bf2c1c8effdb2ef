package services

import (
	"context"
	"sort"
	"time"

	"aslab_go/models"
	"aslab_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttendanceService owns the RFID check-in/check-out toggle.
type AttendanceService struct {
	db     *gorm.DB
	events *Dispatcher
	loc    *time.Location
	now    func() time.Time
}

func NewAttendanceService(db *gorm.DB, events *Dispatcher, loc *time.Location) *AttendanceService {
	return &AttendanceService{db: db, events: events, loc: loc, now: time.Now}
}

// ScanResult is the outcome of a successful scan.
type ScanResult struct {
	User       models.User
	Attendance models.Attendance
	Message    string
}

// decideNext picks the attendance type for the next scan of the day. ok is
// false once both rows exist.
func decideNext(hasIn, hasOut bool) (typ string, ok bool) {
	switch {
	case !hasIn:
		return models.AttendanceCheckIn, true
	case !hasOut:
		return models.AttendanceCheckOut, true
	default:
		return "", false
	}
}

func (s *AttendanceService) today() (time.Time, string) {
	now := s.now().In(s.loc)
	return now, now.Format(utils.DateLayout)
}

// Scan records the next attendance row for the card holder.
func (s *AttendanceService) Scan(ctx context.Context, rfid string) (*ScanResult, error) {
	code := utils.NormalizeRFID(rfid)
	if code == "" {
		return nil, userErr(ErrValidation, "RFID code wajib diisi")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("rfid_code = ? AND is_active = ?", code, true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userErr(ErrNotFound, "RFID tidak terdaftar atau tidak aktif")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user by rfid")
	}

	now, today := s.today()
	var created models.Attendance
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// serialize scans of the same card
		var locked models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, user.ID).Error; err != nil {
			return errors.Wrap(err, "lock user")
		}

		var rows []models.Attendance
		if err := tx.Where("user_id = ? AND date = ?", user.ID, today).Find(&rows).Error; err != nil {
			return errors.Wrap(err, "load today attendance")
		}
		in, out := splitDay(rows)

		typ, ok := decideNext(in != nil, out != nil)
		if !ok {
			return &AttendanceCompleteError{
				User:     user.Name,
				CheckIn:  in.Timestamp.In(s.loc).Format(utils.TimeLayout),
				CheckOut: out.Timestamp.In(s.loc).Format(utils.TimeLayout),
			}
		}

		notes := "Check-in via RFID"
		if typ == models.AttendanceCheckOut {
			notes = "Check-out via RFID"
		}
		created = models.Attendance{
			UserID:    user.ID,
			Type:      typ,
			Timestamp: now,
			Date:      today,
			Notes:     notes,
		}
		return errors.Wrap(tx.Create(&created).Error, "create attendance")
	})
	if err != nil {
		return nil, err
	}

	created.User = user
	logrus.WithFields(logrus.Fields{
		"attendance_id": created.ID,
		"user_id":       user.ID,
		"type":          created.Type,
		"date":          today,
	}).Info("attendance recorded")

	s.dispatch(created, user)

	msg := "Selamat datang, " + user.Name + "! Check-in berhasil."
	if created.Type == models.AttendanceCheckOut {
		msg = "Sampai jumpa, " + user.Name + "! Check-out berhasil."
	}
	return &ScanResult{User: user, Attendance: created, Message: msg}, nil
}

func (s *AttendanceService) dispatch(a models.Attendance, u models.User) {
	if s.events == nil {
		return
	}
	s.events.DispatchAttendanceCreated(AttendanceCreated{Attendance: a, User: u})
}

func splitDay(rows []models.Attendance) (in, out *models.Attendance) {
	for i := range rows {
		switch rows[i].Type {
		case models.AttendanceCheckIn:
			in = &rows[i]
		case models.AttendanceCheckOut:
			out = &rows[i]
		}
	}
	return in, out
}

// AttendanceStatus is a card holder's view of today.
type AttendanceStatus struct {
	User  models.User
	Today []models.Attendance
}

// Status returns today's rows for a card, active or not.
func (s *AttendanceService) Status(ctx context.Context, rfid string) (*AttendanceStatus, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("rfid_code = ?", utils.NormalizeRFID(rfid)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userErr(ErrNotFound, "RFID tidak terdaftar")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user by rfid")
	}
	_, today := s.today()
	var rows []models.Attendance
	if err := s.db.WithContext(ctx).Where("user_id = ? AND date = ?", user.ID, today).
		Order("timestamp").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load today attendance")
	}
	return &AttendanceStatus{User: user, Today: rows}, nil
}

// DaySummaryEntry is one user's row in the today summary.
type DaySummaryEntry struct {
	User     utils.UserShort `json:"user"`
	CheckIn  *string         `json:"check_in"`
	CheckOut *string         `json:"check_out"`
	Status   string          `json:"status"`
}

type DaySummary struct {
	Date         string            `json:"date"`
	TotalCheckIn int               `json:"total_check_in"`
	TotalOut     int               `json:"total_check_out"`
	ActiveUsers  int               `json:"active_users"`
	Attendances  []DaySummaryEntry `json:"attendances"`
}

// TodaySummary groups today's rows per user.
func (s *AttendanceService) TodaySummary(ctx context.Context) (*DaySummary, error) {
	now, today := s.today()
	var rows []models.Attendance
	if err := s.db.WithContext(ctx).Preload("User").Where("date = ?", today).
		Order("timestamp desc").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load today attendance")
	}

	byUser := map[uint]*DaySummaryEntry{}
	var order []uint
	sum := &DaySummary{Date: now.Format("02/01/2006")}
	for _, r := range rows {
		e, ok := byUser[r.UserID]
		if !ok {
			e = &DaySummaryEntry{User: utils.ToUserShort(r.User), Status: "absent"}
			byUser[r.UserID] = e
			order = append(order, r.UserID)
		}
		t := r.Timestamp.In(s.loc).Format(utils.TimeLayout)
		switch r.Type {
		case models.AttendanceCheckIn:
			e.CheckIn = &t
			e.Status = "present"
			sum.TotalCheckIn++
		case models.AttendanceCheckOut:
			e.CheckOut = &t
			sum.TotalOut++
		}
	}
	for _, id := range order {
		sum.Attendances = append(sum.Attendances, *byUser[id])
	}
	sum.ActiveUsers = len(order)
	return sum, nil
}

// Logs pages through attendance rows, newest first.
func (s *AttendanceService) Logs(ctx context.Context, date string, page, perPage int) ([]models.Attendance, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Attendance{})
	if date != "" {
		q = q.Where("date = ?", date)
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count attendance")
	}
	var rows []models.Attendance
	err := q.Preload("User").Order("timestamp desc").
		Offset((page - 1) * perPage).Limit(perPage).Find(&rows).Error
	return rows, total, errors.Wrap(err, "list attendance")
}

// HistoryFilter narrows History. Zero values mean unfiltered.
type HistoryFilter struct {
	UserID *uint
	From   string
	To     string
	Type   string
}

// History lists rows in a date range, most recent day first.
func (s *AttendanceService) History(ctx context.Context, f HistoryFilter) ([]models.Attendance, error) {
	q := s.db.WithContext(ctx).Preload("User")
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.From != "" {
		q = q.Where("date >= ?", f.From)
	}
	if f.To != "" {
		q = q.Where("date <= ?", f.To)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	var rows []models.Attendance
	err := q.Order("date desc").Order("timestamp asc").Find(&rows).Error
	return rows, errors.Wrap(err, "attendance history")
}

// ManualInput is an admin-entered attendance row.
type ManualInput struct {
	UserID    uint
	Type      string
	Timestamp time.Time
	Notes     string
}

// Manual records a piket attendance on behalf of a user. The one-per-type
// per-day rule still applies, and a check-out needs a prior check-in.
func (s *AttendanceService) Manual(ctx context.Context, in ManualInput) (*models.Attendance, error) {
	if in.Type != models.AttendanceCheckIn && in.Type != models.AttendanceCheckOut {
		return nil, userErr(ErrValidation, "Tipe absensi tidak valid")
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = s.now()
	}
	ts := in.Timestamp.In(s.loc)
	date := ts.Format(utils.DateLayout)

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, in.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, userErr(ErrNotFound, "User tidak ditemukan")
		}
		return nil, errors.Wrap(err, "find user")
	}

	var created models.Attendance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&models.User{}, user.ID).Error; err != nil {
			return errors.Wrap(err, "lock user")
		}
		var rows []models.Attendance
		if err := tx.Where("user_id = ? AND date = ?", user.ID, date).Find(&rows).Error; err != nil {
			return errors.Wrap(err, "load day attendance")
		}
		checkIn, checkOut := splitDay(rows)
		if (in.Type == models.AttendanceCheckIn && checkIn != nil) || (in.Type == models.AttendanceCheckOut && checkOut != nil) {
			return userErr(ErrConflict, "Absensi "+in.Type+" untuk tanggal ini sudah ada")
		}
		if in.Type == models.AttendanceCheckOut {
			if checkIn == nil {
				return userErr(ErrValidation, "Belum ada check-in pada tanggal ini")
			}
			if ts.Before(checkIn.Timestamp) {
				return userErr(ErrValidation, "Waktu check-out harus setelah check-in")
			}
		}
		notes := in.Notes
		if notes == "" {
			notes = "Absen piket manual"
		}
		created = models.Attendance{UserID: user.ID, Type: in.Type, Timestamp: ts, Date: date, Notes: notes}
		return errors.Wrap(tx.Create(&created).Error, "create attendance")
	})
	if err != nil {
		return nil, err
	}
	created.User = user
	s.dispatch(created, user)
	return &created, nil
}

// Delete removes an attendance row.
func (s *AttendanceService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Attendance{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete attendance")
	}
	if res.RowsAffected == 0 {
		return userErr(ErrNotFound, "Data absensi tidak ditemukan")
	}
	return nil
}

// DayRow pairs the check-in and check-out of one user on one date.
type DayRow struct {
	UserID   uint
	Name     string
	Date     string
	CheckIn  *time.Time
	CheckOut *time.Time
}

// PairByDay folds History rows into one line per user per date, newest date
// first.
func PairByDay(rows []models.Attendance) []DayRow {
	type key struct {
		user uint
		date string
	}
	idx := map[key]*DayRow{}
	var keys []key
	for _, r := range rows {
		k := key{r.UserID, r.Date}
		d, ok := idx[k]
		if !ok {
			d = &DayRow{UserID: r.UserID, Name: r.User.Name, Date: r.Date}
			idx[k] = d
			keys = append(keys, k)
		}
		ts := r.Timestamp
		if r.Type == models.AttendanceCheckIn {
			d.CheckIn = &ts
		} else {
			d.CheckOut = &ts
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date > keys[j].date
		}
		return idx[keys[i]].Name < idx[keys[j]].Name
	})
	out := make([]DayRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, *idx[k])
	}
	return out
}
