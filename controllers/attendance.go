package controllers

import (
	"fmt"
	"strconv"
	"time"

	"aslab_go/middleware"
	"aslab_go/models"
	"aslab_go/services"
	"aslab_go/utils"

	"github.com/gofiber/fiber/v2"
)

// AttendanceController is the web side of attendance: history, piket
// entries made by an admin, and exports.
type AttendanceController struct {
	attendance *services.AttendanceService
	export     *services.ExportService
	loc        *time.Location
}

func NewAttendanceController(attendance *services.AttendanceService, export *services.ExportService, loc *time.Location) *AttendanceController {
	return &AttendanceController{attendance: attendance, export: export, loc: loc}
}

type ManualAttendanceRequest struct {
	UserID    uint   `json:"user_id" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=check_in check_out"`
	Timestamp string `json:"timestamp"`
	Notes     string `json:"notes" validate:"max=255"`
}

// parseTimestamp accepts RFC3339 or "Y-m-d H:i[:s]" in the lab timezone.
// Empty input means now.
func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

// historyFilter reads the query string. Only admins may look at other users.
func (ac *AttendanceController) historyFilter(c *fiber.Ctx, viewer *models.User) (services.HistoryFilter, error) {
	f := services.HistoryFilter{
		From: c.Query("start_date"),
		To:   c.Query("end_date"),
		Type: c.Query("type"),
	}
	for _, d := range []string{f.From, f.To} {
		if d == "" {
			continue
		}
		if _, err := utils.ParseDate(d, ac.loc); err != nil {
			return f, fiber.NewError(fiber.StatusUnprocessableEntity, "Format tanggal harus Y-m-d")
		}
	}
	if viewer.Role != models.RoleAdmin {
		id := viewer.ID
		f.UserID = &id
		return f, nil
	}
	if raw := c.Query("user_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return f, fiber.NewError(fiber.StatusBadRequest, "Invalid user_id")
		}
		id := uint(v)
		f.UserID = &id
	}
	return f, nil
}

func (ac *AttendanceController) clock(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.In(ac.loc).Format("15:04:05")
	return &s
}

// History lists attendance paired per user per day.
func (ac *AttendanceController) History(c *fiber.Ctx) error {
	viewer, ok, err := currentUser(c)
	if !ok {
		return err
	}
	f, err := ac.historyFilter(c, viewer)
	if err != nil {
		return respondServiceError(c, err, "Invalid filter")
	}
	rows, err := ac.attendance.History(c.UserContext(), f)
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch attendance history")
	}
	days := services.PairByDay(rows)
	out := make([]fiber.Map, 0, len(days))
	for _, d := range days {
		out = append(out, fiber.Map{
			"user_id":   d.UserID,
			"name":      d.Name,
			"date":      d.Date,
			"check_in":  ac.clock(d.CheckIn),
			"check_out": ac.clock(d.CheckOut),
		})
	}
	return c.JSON(fiber.Map{"history": out, "total": len(out)})
}

// Manual records a piket attendance on behalf of a user.
func (ac *AttendanceController) Manual(c *fiber.Ctx) error {
	var req ManualAttendanceRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	ts, err := parseTimestamp(req.Timestamp, ac.loc)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Format waktu tidak valid"})
	}
	notes := req.Notes
	if notes == "" {
		notes = "Absen piket manual"
	}
	row, err := ac.attendance.Manual(c.UserContext(), services.ManualInput{
		UserID: req.UserID, Type: req.Type, Timestamp: ts, Notes: notes,
	})
	if err != nil {
		return respondServiceError(c, err, "Gagal menyimpan absensi")
	}
	middleware.LogActivity(c, "CREATE", "attendance", row.ID, fiber.Map{"user_id": row.UserID, "type": row.Type})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Absensi berhasil disimpan", "attendance": row})
}

func (ac *AttendanceController) Delete(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if err := ac.attendance.Delete(c.UserContext(), id); err != nil {
		return respondServiceError(c, err, "Gagal menghapus absensi")
	}
	return c.JSON(fiber.Map{"message": "Absensi berhasil dihapus"})
}

// Export streams the filtered history as xlsx.
func (ac *AttendanceController) Export(c *fiber.Ctx) error {
	viewer, ok, err := currentUser(c)
	if !ok {
		return err
	}
	f, err := ac.historyFilter(c, viewer)
	if err != nil {
		return respondServiceError(c, err, "Invalid filter")
	}
	buf, err := ac.export.AttendanceHistory(c.UserContext(), f)
	if err != nil {
		return respondServiceError(c, err, "Gagal export absensi")
	}
	name := fmt.Sprintf("absensi_%s.xlsx", time.Now().In(ac.loc).Format("20060102_150405"))
	return sendXLSX(c, name, buf.Bytes())
}

func sendXLSX(c *fiber.Ctx, filename string, data []byte) error {
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(data)
}
