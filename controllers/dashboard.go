package controllers

import (
	"aslab_go/services"

	"github.com/gofiber/fiber/v2"
)

type DashboardController struct {
	dashboard *services.DashboardService
}

func NewDashboardController(dashboard *services.DashboardService) *DashboardController {
	return &DashboardController{dashboard: dashboard}
}

func dateRange(c *fiber.Ctx) services.DateRange {
	return services.DateRange{Start: c.Query("start_date"), End: c.Query("end_date")}
}

// Index returns every dashboard block at once, the same payload the
// websocket broadcast carries.
func (dc *DashboardController) Index(c *fiber.Ctx) error {
	data, err := dc.dashboard.AllDashboardData(c.UserContext(), dateRange(c))
	if err != nil {
		return respondServiceError(c, err, "Failed to load dashboard")
	}
	return c.JSON(data)
}

func (dc *DashboardController) Stats(c *fiber.Ctx) error {
	stats, err := dc.dashboard.Stats(c.UserContext(), dateRange(c))
	if err != nil {
		return respondServiceError(c, err, "Failed to load stats")
	}
	return c.JSON(fiber.Map{"stats": stats})
}

func (dc *DashboardController) Attendances(c *fiber.Ctx) error {
	rows, err := dc.dashboard.TodayAttendances(c.UserContext(), dateRange(c))
	if err != nil {
		return respondServiceError(c, err, "Failed to load attendances")
	}
	return c.JSON(fiber.Map{"attendances": rows})
}

func (dc *DashboardController) MostActive(c *fiber.Ctx) error {
	rows, err := dc.dashboard.MostActive(c.UserContext(), dateRange(c))
	if err != nil {
		return respondServiceError(c, err, "Failed to load ranking")
	}
	return c.JSON(fiber.Map{"most_active": rows})
}

func (dc *DashboardController) Chart(c *fiber.Ctx) error {
	points, err := dc.dashboard.Chart(c.UserContext(), dateRange(c))
	if err != nil {
		return respondServiceError(c, err, "Failed to load chart")
	}
	return c.JSON(fiber.Map{"chart": points})
}

// DayDetail accepts d/m or Y-m-d in the :date parameter.
func (dc *DashboardController) DayDetail(c *fiber.Ctx) error {
	raw := c.Params("date")
	if raw == "" {
		raw = c.Query("date")
	}
	rows, err := dc.dashboard.DayDetail(c.UserContext(), raw)
	if err != nil {
		return respondServiceError(c, err, "Failed to load day detail")
	}
	return c.JSON(fiber.Map{"date": raw, "aslabs": rows})
}
