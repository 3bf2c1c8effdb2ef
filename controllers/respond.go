package controllers

import (
	"errors"

	"aslab_go/middleware"
	"aslab_go/models"
	"aslab_go/services"
	"aslab_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// statusFor maps service sentinels to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrRFIDTaken):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrAttendanceComplete):
		return fiber.StatusBadRequest
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// respondServiceError writes {"error": msg}. Internal errors are logged and
// replaced with fallback.
func respondServiceError(c *fiber.Ctx, err error, fallback string) error {
	status := statusFor(err)
	msg := services.PublicMessage(err, fallback)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		msg = fe.Message
	}
	if status >= 500 {
		logrus.WithFields(logrus.Fields{
			"path":  c.Path(),
			"error": err.Error(),
		}).Error(fallback)
		msg = fallback
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// deviceResponse is the envelope spoken by the RFID readers.
func deviceResponse(c *fiber.Ctx, status int, success bool, message string, data interface{}) error {
	body := fiber.Map{"success": success, "message": message}
	if data != nil {
		body["data"] = data
	}
	return c.Status(status).JSON(body)
}

func deviceError(c *fiber.Ctx, err error, fallback string) error {
	status := statusFor(err)
	msg := services.PublicMessage(err, fallback)
	if status >= 500 {
		logrus.WithFields(logrus.Fields{"path": c.Path(), "error": err.Error()}).Error(fallback)
		msg = fallback
	}
	return deviceResponse(c, status, false, msg, nil)
}

// currentUser returns the authenticated user or writes 401.
func currentUser(c *fiber.Ctx) (*models.User, bool, error) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return nil, false, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}
	return user, true, nil
}

func idParam(c *fiber.Ctx) (uint, bool, error) {
	id, err := utils.ParseUintParam(c, "id")
	if err != nil {
		return 0, false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid ID"})
	}
	return id, true, nil
}
