package controllers

import (
	"strings"

	"aslab_go/middleware"
	"aslab_go/services"

	"github.com/gofiber/fiber/v2"
)

// ImportController handles xlsx/csv uploads of aset, bahan and users.
type ImportController struct {
	imports *services.ImportService
}

func NewImportController(imports *services.ImportService) *ImportController {
	return &ImportController{imports: imports}
}

const maxImportSize = 5 << 20

// Import parses the uploaded "file". With preview=true nothing is written
// and the per-row result is returned for review.
func (ic *ImportController) Import(c *fiber.Ctx) error {
	kind := services.ImportKind(c.Params("kind"))
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}
	if fileHeader.Size > maxImportSize {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Ukuran file maksimal 5MB"})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot open file"})
	}
	defer file.Close()

	preview := c.QueryBool("preview", false) || strings.EqualFold(c.FormValue("preview"), "true")
	res, err := ic.imports.Import(c.UserContext(), kind, fileHeader.Filename, file, preview)
	if err != nil {
		return respondServiceError(c, err, "Gagal import data")
	}
	if !preview {
		middleware.LogActivity(c, "IMPORT", string(kind), 0, fiber.Map{
			"file": fileHeader.Filename, "imported": res.Imported, "failed": res.Failed,
		})
	}
	return c.JSON(res)
}
