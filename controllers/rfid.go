package controllers

import (
	"errors"

	"aslab_go/models"
	"aslab_go/services"
	"aslab_go/utils"

	"github.com/gofiber/fiber/v2"
)

// RFIDController serves the reader devices. Every response uses the
// {success, message, data} envelope.
type RFIDController struct {
	attendance *services.AttendanceService
	rfid       *services.RFIDService
}

func NewRFIDController(attendance *services.AttendanceService, rfid *services.RFIDService) *RFIDController {
	return &RFIDController{attendance: attendance, rfid: rfid}
}

type rfidRequest struct {
	RFIDCode string `json:"rfid_code" query:"rfid_code" validate:"required,notblank"`
}

type registerCardRequest struct {
	UserID   uint   `json:"user_id" validate:"required"`
	RFIDCode string `json:"rfid_code" validate:"required,notblank"`
}

type modeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=registration check_in check_out"`
}

func bindDevice(c *fiber.Ctx, dst interface{}) bool {
	var err error
	if c.Method() == fiber.MethodGet {
		err = c.QueryParser(dst)
	} else {
		err = c.BodyParser(dst)
	}
	if err != nil {
		_ = deviceResponse(c, fiber.StatusBadRequest, false, "Invalid request body", nil)
		return false
	}
	if errs := utils.ValidateStruct(dst); errs != nil {
		_ = deviceResponse(c, fiber.StatusUnprocessableEntity, false, "Validation failed", fiber.Map{"errors": errs})
		return false
	}
	return true
}

func deviceUser(u models.User) fiber.Map {
	return fiber.Map{"name": u.Name, "prodi": u.Prodi, "semester": u.Semester}
}

func deviceAttendance(a models.Attendance) fiber.Map {
	return fiber.Map{
		"type":      a.Type,
		"timestamp": a.Timestamp.Format("15:04:05"),
		"date":      utils.FormatDate(a.Date),
	}
}

// Scan toggles check-in and check-out for the card holder.
func (rc *RFIDController) Scan(c *fiber.Ctx) error {
	var req rfidRequest
	if !bindDevice(c, &req) {
		return nil
	}
	res, err := rc.attendance.Scan(c.UserContext(), req.RFIDCode)
	if err != nil {
		var done *services.AttendanceCompleteError
		if errors.As(err, &done) {
			return deviceResponse(c, fiber.StatusBadRequest, false, done.Error(), fiber.Map{
				"user":              fiber.Map{"name": done.User},
				"today_attendances": fiber.Map{"check_in": done.CheckIn, "check_out": done.CheckOut},
			})
		}
		return deviceError(c, err, "Terjadi kesalahan sistem")
	}
	return deviceResponse(c, fiber.StatusOK, true, res.Message, fiber.Map{
		"user":       deviceUser(res.User),
		"attendance": deviceAttendance(res.Attendance),
	})
}

// Status returns today's rows for a card.
func (rc *RFIDController) Status(c *fiber.Ctx) error {
	var req rfidRequest
	if !bindDevice(c, &req) {
		return nil
	}
	st, err := rc.attendance.Status(c.UserContext(), req.RFIDCode)
	if err != nil {
		return deviceError(c, err, "Terjadi kesalahan sistem")
	}
	rows := make([]fiber.Map, 0, len(st.Today))
	for _, a := range st.Today {
		rows = append(rows, deviceAttendance(a))
	}
	user := deviceUser(st.User)
	user["is_active"] = st.User.IsActive
	return deviceResponse(c, fiber.StatusOK, true, "Status absensi berhasil diambil", fiber.Map{
		"user":              user,
		"today_attendances": rows,
	})
}

func (rc *RFIDController) Logs(c *fiber.Ctx) error {
	page, perPage, _ := utils.Pagination(c, 15)
	rows, total, err := rc.attendance.Logs(c.UserContext(), c.Query("date"), page, perPage)
	if err != nil {
		return deviceError(c, err, "Terjadi kesalahan sistem")
	}
	return deviceResponse(c, fiber.StatusOK, true, "Data absensi berhasil diambil", fiber.Map{
		"attendances": rows,
		"pagination":  utils.PageMeta(page, perPage, total),
	})
}

func (rc *RFIDController) Today(c *fiber.Ctx) error {
	sum, err := rc.attendance.TodaySummary(c.UserContext())
	if err != nil {
		return deviceError(c, err, "Terjadi kesalahan sistem")
	}
	return deviceResponse(c, fiber.StatusOK, true, "Data absensi hari ini berhasil diambil", sum)
}

// GetMode is polled by the reader to learn what a scan should do.
func (rc *RFIDController) GetMode(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"mode": rc.rfid.Mode(c.UserContext())})
}

func (rc *RFIDController) SetMode(c *fiber.Ctx) error {
	var req modeRequest
	if !bindDevice(c, &req) {
		return nil
	}
	if err := rc.rfid.SetMode(c.UserContext(), req.Mode); err != nil {
		return deviceError(c, err, "Gagal mengubah mode")
	}
	return c.JSON(fiber.Map{"success": true, "mode": req.Mode, "message": "Mode set to " + req.Mode})
}

// ScanForRegistration caches the card so the admin UI can pick it up.
func (rc *RFIDController) ScanForRegistration(c *fiber.Ctx) error {
	var req rfidRequest
	if !bindDevice(c, &req) {
		return nil
	}
	scan, err := rc.rfid.ScanForRegistration(c.UserContext(), req.RFIDCode)
	if errors.Is(err, services.ErrRFIDTaken) {
		return deviceResponse(c, fiber.StatusConflict, false, services.PublicMessage(err, "RFID sudah terdaftar"), scan)
	}
	if err != nil {
		return deviceError(c, err, "Terjadi kesalahan sistem")
	}
	return deviceResponse(c, fiber.StatusOK, true, "RFID siap didaftarkan", scan)
}

func (rc *RFIDController) LastScan(c *fiber.Ctx) error {
	scan, err := rc.rfid.PullLastScan(c.UserContext())
	if err != nil {
		return deviceError(c, err, "Terjadi kesalahan sistem")
	}
	return deviceResponse(c, fiber.StatusOK, true, "Scan terakhir", scan)
}

func (rc *RFIDController) Register(c *fiber.Ctx) error {
	var req registerCardRequest
	if !bindDevice(c, &req) {
		return nil
	}
	u, err := rc.rfid.Register(c.UserContext(), req.UserID, req.RFIDCode)
	if err != nil {
		return deviceError(c, err, "Gagal mendaftarkan RFID")
	}
	return deviceResponse(c, fiber.StatusOK, true, "RFID berhasil didaftarkan untuk "+u.Name, utils.ToUserShort(*u))
}

func (rc *RFIDController) Unregister(c *fiber.Ctx) error {
	id, err := utils.ParseUintParam(c, "id")
	if err != nil {
		return deviceResponse(c, fiber.StatusBadRequest, false, "Invalid ID", nil)
	}
	if err := rc.rfid.Unregister(c.UserContext(), id); err != nil {
		return deviceError(c, err, "Gagal menghapus RFID")
	}
	return deviceResponse(c, fiber.StatusOK, true, "RFID berhasil dihapus", nil)
}

func (rc *RFIDController) Users(c *fiber.Ctx) error {
	users, err := rc.rfid.Aslabs(c.UserContext())
	if err != nil {
		return deviceError(c, err, "Terjadi kesalahan sistem")
	}
	out := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		out = append(out, fiber.Map{
			"id": u.ID, "name": u.Name, "email": u.Email,
			"rfid_code": u.RFIDCode, "has_rfid": u.RFIDCode != nil && *u.RFIDCode != "",
		})
	}
	return deviceResponse(c, fiber.StatusOK, true, "Data user berhasil diambil", out)
}
