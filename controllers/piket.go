package controllers

import (
	"aslab_go/middleware"
	"aslab_go/services"
	"aslab_go/utils"

	"github.com/gofiber/fiber/v2"
)

type PiketController struct {
	piket *services.PiketService
}

func NewPiketController(piket *services.PiketService) *PiketController {
	return &PiketController{piket: piket}
}

type piketDayRequest struct {
	PiketDay *string `json:"piket_day" validate:"omitempty,oneof=senin selasa rabu kamis jumat"`
}

type swapRequest struct {
	UserID      uint    `json:"user_id" validate:"required"`
	NewPiketDay *string `json:"new_piket_day" validate:"omitempty,oneof=senin selasa rabu kamis jumat"`
}

type batchPiketRequest struct {
	Updates []services.PiketUpdate `json:"updates" validate:"required,min=1,dive"`
}

func (pc *PiketController) Index(c *fiber.Ctx) error {
	schedule, err := pc.piket.Index(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Failed to load piket schedule")
	}
	return c.JSON(schedule)
}

// Generate reshuffles every active aslab across the weekdays.
func (pc *PiketController) Generate(c *fiber.Ctx) error {
	n, err := pc.piket.GenerateAuto(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Gagal generate jadwal piket")
	}
	middleware.LogActivity(c, "GENERATE", "piket", 0, fiber.Map{"assigned": n})
	return c.JSON(fiber.Map{"message": "Jadwal piket berhasil di-generate", "assigned": n})
}

func (pc *PiketController) UpdateUser(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	var req piketDayRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	if err := pc.piket.UpdateManual(c.UserContext(), id, req.PiketDay); err != nil {
		return respondServiceError(c, err, "Gagal memperbarui jadwal piket")
	}
	return c.JSON(fiber.Map{"message": "Jadwal piket berhasil diperbarui"})
}

func (pc *PiketController) Swap(c *fiber.Ctx) error {
	var req swapRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	from, to, err := pc.piket.Swap(c.UserContext(), req.UserID, req.NewPiketDay)
	if err != nil {
		return respondServiceError(c, err, "Gagal memindahkan jadwal piket")
	}
	return c.JSON(fiber.Map{
		"message": "Jadwal piket berhasil dipindahkan",
		"from":    utils.Deref(from),
		"to":      utils.Deref(to),
	})
}

func (pc *PiketController) Batch(c *fiber.Ctx) error {
	var req batchPiketRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	n, err := pc.piket.BatchUpdate(c.UserContext(), req.Updates)
	if err != nil {
		return respondServiceError(c, err, "Gagal memperbarui jadwal piket")
	}
	return c.JSON(fiber.Map{"message": "Jadwal piket berhasil diperbarui", "updated": n})
}

func (pc *PiketController) Reset(c *fiber.Ctx) error {
	n, err := pc.piket.Reset(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Gagal reset jadwal piket")
	}
	middleware.LogActivity(c, "RESET", "piket", 0, fiber.Map{"cleared": n})
	return c.JSON(fiber.Map{"message": "Jadwal piket berhasil direset", "cleared": n})
}

// Standalone is the public kiosk view looked up by card.
func (pc *PiketController) Standalone(c *fiber.Ctx) error {
	view, err := pc.piket.Standalone(c.UserContext(), c.Params("rfid"))
	if err != nil {
		return deviceError(c, err, "Terjadi kesalahan sistem")
	}
	colleagues := make([]utils.UserShort, 0, len(view.Colleagues))
	for _, u := range view.Colleagues {
		colleagues = append(colleagues, utils.ToUserShort(u))
	}
	return deviceResponse(c, fiber.StatusOK, true, "Jadwal piket", fiber.Map{
		"user":       utils.ToUserShort(view.User),
		"colleagues": colleagues,
	})
}
