package controllers

import (
	"errors"
	"time"

	"aslab_go/models"
	"aslab_go/services"
	"aslab_go/services/notifications"
	"aslab_go/utils"

	"github.com/gofiber/fiber/v2"
)

const notificationListLimit = 50

type NotificationController struct {
	notifs *notifications.Service
	loans  *services.LoanService
	loc    *time.Location
}

func NewNotificationController(notifs *notifications.Service, loans *services.LoanService, loc *time.Location) *NotificationController {
	return &NotificationController{notifs: notifs, loans: loans, loc: loc}
}

// GetNotifications returns the latest notifications. Staff also get the
// loans waiting for approval.
func (nc *NotificationController) GetNotifications(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	list, err := nc.notifs.List(c.UserContext(), user.ID, notificationListLimit)
	if err != nil {
		return respondServiceError(c, err, "Gagal mengambil notifikasi")
	}
	unread, err := nc.notifs.UnreadCount(c.UserContext(), user.ID)
	if err != nil {
		return respondServiceError(c, err, "Gagal mengambil notifikasi")
	}

	body := fiber.Map{
		"notifications": utils.ToNotificationDTOs(list),
		"unread_count":  unread,
	}
	if user.Role == models.RoleAdmin || user.Role == models.RoleAslab {
		pending, err := nc.loans.List(c.UserContext(), *user, services.LoanFilter{Status: models.LoanPending})
		if err != nil {
			return respondServiceError(c, err, "Gagal mengambil notifikasi")
		}
		now := time.Now().In(nc.loc)
		out := make([]utils.LoanDTO, 0, len(pending))
		for _, l := range pending {
			out = append(out, utils.ToLoanDTO(l, now))
		}
		body["pending_loans"] = out
	}
	return c.JSON(body)
}

func (nc *NotificationController) UnreadCount(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	n, err := nc.notifs.UnreadCount(c.UserContext(), user.ID)
	if err != nil {
		return respondServiceError(c, err, "Gagal menghitung notifikasi")
	}
	return c.JSON(fiber.Map{"unread_count": n})
}

func (nc *NotificationController) MarkAsRead(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if err := nc.notifs.MarkRead(c.UserContext(), user.ID, id); err != nil {
		if errors.Is(err, notifications.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Notifikasi tidak ditemukan"})
		}
		return respondServiceError(c, err, "Gagal menandai notifikasi")
	}
	return c.JSON(fiber.Map{"message": "Notifikasi ditandai sudah dibaca"})
}

func (nc *NotificationController) MarkAllAsRead(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	n, err := nc.notifs.MarkAllRead(c.UserContext(), user.ID)
	if err != nil {
		return respondServiceError(c, err, "Gagal menandai notifikasi")
	}
	return c.JSON(fiber.Map{"message": "Semua notifikasi ditandai sudah dibaca", "updated": n})
}
