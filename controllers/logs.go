package controllers

import (
	"fmt"
	"strconv"

	"aslab_go/services"
	"aslab_go/utils"

	"github.com/gofiber/fiber/v2"
)

type LogController struct {
	logs *services.LogArchiveService
}

func NewLogController(logs *services.LogArchiveService) *LogController {
	return &LogController{logs: logs}
}

// GetLogs lists activity logs, newest first.
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	page, limit, offset := utils.Pagination(c, 20)
	userID, _ := strconv.ParseUint(c.Query("user_id"), 10, 64)
	list, total, err := lc.logs.List(c.UserContext(), services.LogFilter{
		UserID:   uint(userID),
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
		From:     c.Query("from"),
		To:       c.Query("to"),
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		return respondServiceError(c, err, "Gagal mengambil log")
	}
	return c.JSON(fiber.Map{"logs": list, "pagination": utils.PageMeta(page, limit, total)})
}

type archiveRequest struct {
	Days int `json:"days" validate:"omitempty,min=1"`
}

// Archive moves logs older than the requested age to S3.
func (lc *LogController) Archive(c *fiber.Ctx) error {
	req := archiveRequest{}
	if len(c.Body()) > 0 {
		if ok, err := utils.BindAndValidate(c, &req); !ok {
			return err
		}
	}
	if req.Days == 0 {
		req.Days = 30
	}
	a, err := lc.logs.Archive(c.UserContext(), req.Days)
	if err != nil {
		return respondServiceError(c, err, "Gagal mengarsipkan log")
	}
	if a == nil {
		return c.JSON(fiber.Map{"message": "Tidak ada log yang perlu diarsipkan"})
	}
	return c.JSON(fiber.Map{"message": fmt.Sprintf("%d log diarsipkan", a.RecordCount), "archive": a})
}

func (lc *LogController) Archives(c *fiber.Ctx) error {
	list, err := lc.logs.Archives(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Gagal mengambil arsip")
	}
	return c.JSON(fiber.Map{"archives": list})
}

func (lc *LogController) Download(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	rc, name, err := lc.logs.Download(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err, "Gagal mengunduh arsip")
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Attachment(name)
	// fasthttp closes the stream once the body is written.
	return c.SendStream(rc)
}
