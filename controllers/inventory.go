package controllers

import (
	"mime/multipart"
	"strconv"

	"aslab_go/middleware"
	"aslab_go/services"
	"aslab_go/utils"

	"github.com/gofiber/fiber/v2"
)

type InventoryController struct {
	inventory *services.InventoryService
}

func NewInventoryController(inventory *services.InventoryService) *InventoryController {
	return &InventoryController{inventory: inventory}
}

type nameRequest struct {
	Name string `json:"name" validate:"required,notblank,max=255"`
}

var imageExtensions = []string{"jpg", "jpeg", "png", "webp", "gif"}

// optionalImage returns the uploaded "gambar" file, or nil when none was
// sent.
func optionalImage(c *fiber.Ctx) (*multipart.FileHeader, error) {
	fh, err := c.FormFile("gambar")
	if err != nil {
		return nil, nil
	}
	if !utils.IsValidFileExtension(fh.Filename, imageExtensions) {
		return nil, fiber.NewError(fiber.StatusUnprocessableEntity, "Gambar harus berupa jpg, png, webp, atau gif")
	}
	if fh.Size > 2<<20 {
		return nil, fiber.NewError(fiber.StatusUnprocessableEntity, "Ukuran gambar maksimal 2MB")
	}
	return fh, nil
}

// ---- jenis & lokasi ----

func (ic *InventoryController) ListJenis(c *fiber.Ctx) error {
	list, err := ic.inventory.ListJenis(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch jenis aset")
	}
	return c.JSON(fiber.Map{"jenis_aset": list})
}

func (ic *InventoryController) saveJenis(c *fiber.Ctx, id uint) error {
	var req nameRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	j, err := ic.inventory.SaveJenis(c.UserContext(), id, req.Name)
	if err != nil {
		return respondServiceError(c, err, "Gagal menyimpan jenis aset")
	}
	status := fiber.StatusOK
	if id == 0 {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"message": "Jenis aset berhasil disimpan", "jenis_aset": j})
}

func (ic *InventoryController) CreateJenis(c *fiber.Ctx) error { return ic.saveJenis(c, 0) }

func (ic *InventoryController) UpdateJenis(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	return ic.saveJenis(c, id)
}

func (ic *InventoryController) DeleteJenis(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if err := ic.inventory.DeleteJenis(c.UserContext(), id); err != nil {
		return respondServiceError(c, err, "Gagal menghapus jenis aset")
	}
	return c.JSON(fiber.Map{"message": "Jenis aset berhasil dihapus"})
}

func (ic *InventoryController) ListLokasi(c *fiber.Ctx) error {
	list, err := ic.inventory.ListLokasi(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch lokasi")
	}
	return c.JSON(fiber.Map{"lokasi": list})
}

func (ic *InventoryController) saveLokasi(c *fiber.Ctx, id uint) error {
	var req nameRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	l, err := ic.inventory.SaveLokasi(c.UserContext(), id, req.Name)
	if err != nil {
		return respondServiceError(c, err, "Gagal menyimpan lokasi")
	}
	status := fiber.StatusOK
	if id == 0 {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"message": "Lokasi berhasil disimpan", "lokasi": l})
}

func (ic *InventoryController) CreateLokasi(c *fiber.Ctx) error { return ic.saveLokasi(c, 0) }

func (ic *InventoryController) UpdateLokasi(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	return ic.saveLokasi(c, id)
}

func (ic *InventoryController) DeleteLokasi(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if err := ic.inventory.DeleteLokasi(c.UserContext(), id); err != nil {
		return respondServiceError(c, err, "Gagal menghapus lokasi")
	}
	return c.JSON(fiber.Map{"message": "Lokasi berhasil dihapus"})
}

// ---- aset ----

func (ic *InventoryController) ListAset(c *fiber.Ctx) error {
	f := services.AsetFilter{Search: c.Query("search"), Status: c.Query("status")}
	if v, err := strconv.ParseUint(c.Query("jenis_id"), 10, 32); err == nil {
		f.JenisID = uint(v)
	}
	if v, err := strconv.ParseUint(c.Query("lokasi_id"), 10, 32); err == nil {
		f.LokasiID = uint(v)
	}
	list, err := ic.inventory.ListAset(c.UserContext(), f)
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch aset")
	}
	return c.JSON(fiber.Map{"aset": list, "total": len(list)})
}

func (ic *InventoryController) GetAset(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	a, err := ic.inventory.GetAset(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch aset")
	}
	return c.JSON(fiber.Map{"aset": a})
}

func (ic *InventoryController) GenerateKode(c *fiber.Ctx) error {
	kode, err := ic.inventory.GenerateKodeAset(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Gagal membuat kode aset")
	}
	return c.JSON(fiber.Map{"kode_aset": kode})
}

func (ic *InventoryController) CreateAset(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	var req services.AsetInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	image, err := optionalImage(c)
	if err != nil {
		return respondServiceError(c, err, "Invalid image")
	}
	a, err := ic.inventory.CreateAset(c.UserContext(), user.ID, req, image)
	if err != nil {
		return respondServiceError(c, err, "Gagal menambahkan aset")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Aset berhasil ditambahkan", "aset": a})
}

func (ic *InventoryController) UpdateAset(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	var req services.AsetInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	image, err := optionalImage(c)
	if err != nil {
		return respondServiceError(c, err, "Invalid image")
	}
	a, err := ic.inventory.UpdateAset(c.UserContext(), user.ID, id, req, image)
	if err != nil {
		return respondServiceError(c, err, "Gagal memperbarui aset")
	}
	return c.JSON(fiber.Map{"message": "Aset berhasil diperbarui", "aset": a})
}

func (ic *InventoryController) DeleteAset(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if err := ic.inventory.DeleteAset(c.UserContext(), id); err != nil {
		return respondServiceError(c, err, "Gagal menghapus aset")
	}
	return c.JSON(fiber.Map{"message": "Aset berhasil dihapus"})
}

// ---- bahan ----

func (ic *InventoryController) ListBahan(c *fiber.Ctx) error {
	list, err := ic.inventory.ListBahan(c.UserContext(), c.Query("search"))
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch bahan")
	}
	return c.JSON(fiber.Map{"bahan": list, "total": len(list)})
}

func (ic *InventoryController) GetBahan(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	b, err := ic.inventory.GetBahan(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch bahan")
	}
	return c.JSON(fiber.Map{"bahan": b})
}

func (ic *InventoryController) saveBahan(c *fiber.Ctx, id uint) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	var req services.BahanInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	image, err := optionalImage(c)
	if err != nil {
		return respondServiceError(c, err, "Invalid image")
	}
	b, err := ic.inventory.SaveBahan(c.UserContext(), user.ID, id, req, image)
	if err != nil {
		return respondServiceError(c, err, "Gagal menyimpan bahan")
	}
	status := fiber.StatusOK
	if id == 0 {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"message": "Bahan berhasil disimpan", "bahan": b})
}

func (ic *InventoryController) CreateBahan(c *fiber.Ctx) error { return ic.saveBahan(c, 0) }

func (ic *InventoryController) UpdateBahan(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	return ic.saveBahan(c, id)
}

func (ic *InventoryController) DeleteBahan(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if err := ic.inventory.DeleteBahan(c.UserContext(), id); err != nil {
		return respondServiceError(c, err, "Gagal menghapus bahan")
	}
	return c.JSON(fiber.Map{"message": "Bahan berhasil dihapus"})
}

// ---- penggunaan bahan ----

func (ic *InventoryController) ListUsage(c *fiber.Ctx) error {
	var bahanID uint
	if v, err := strconv.ParseUint(c.Query("bahan_id"), 10, 32); err == nil {
		bahanID = uint(v)
	}
	list, err := ic.inventory.ListUsage(c.UserContext(), bahanID)
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch penggunaan bahan")
	}
	return c.JSON(fiber.Map{"penggunaan_bahan": list})
}

func (ic *InventoryController) RecordUsage(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	var req services.UsageInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	u, err := ic.inventory.RecordUsage(c.UserContext(), user.ID, req)
	if err != nil {
		return respondServiceError(c, err, "Gagal mencatat penggunaan bahan")
	}
	middleware.LogActivity(c, "USE", "bahan", req.BahanID, fiber.Map{"jumlah": req.JumlahDigunakan})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Penggunaan bahan berhasil dicatat", "penggunaan": u})
}
