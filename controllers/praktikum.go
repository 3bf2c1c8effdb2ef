package controllers

import (
	"strconv"

	"aslab_go/services"
	"aslab_go/utils"

	"github.com/gofiber/fiber/v2"
)

type PraktikumController struct {
	praktikum *services.PraktikumService
}

func NewPraktikumController(praktikum *services.PraktikumService) *PraktikumController {
	return &PraktikumController{praktikum: praktikum}
}

type idsRequest struct {
	IDs []uint `json:"ids" validate:"required,min=1"`
}

// saved answers a create (201) or update (200).
func saved(c *fiber.Ctx, id uint, msg, key string, v interface{}) error {
	status := fiber.StatusOK
	if id == 0 {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"message": msg, key: v})
}

// optionalID returns 0 on create routes that have no :id.
func optionalID(c *fiber.Ctx) (uint, bool, error) {
	if c.Params("id") == "" {
		return 0, true, nil
	}
	return idParam(c)
}

// ---- kelas ----

func (pc *PraktikumController) ListKelas(c *fiber.Ctx) error {
	list, err := pc.praktikum.ListKelas(c.UserContext(), c.Query("search"))
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch kelas")
	}
	return c.JSON(fiber.Map{"kelas": list})
}

func (pc *PraktikumController) SaveKelas(c *fiber.Ctx) error {
	id, ok, err := optionalID(c)
	if !ok {
		return err
	}
	var req services.KelasInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	k, err := pc.praktikum.SaveKelas(c.UserContext(), id, req)
	if err != nil {
		return respondServiceError(c, err, "Gagal menyimpan kelas")
	}
	return saved(c, id, "Kelas berhasil disimpan", "kelas", k)
}

func (pc *PraktikumController) DeleteKelas(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if err := pc.praktikum.DeleteKelas(c.UserContext(), id); err != nil {
		return respondServiceError(c, err, "Gagal menghapus kelas")
	}
	return c.JSON(fiber.Map{"message": "Kelas berhasil dihapus"})
}

// ---- mata kuliah ----

func (pc *PraktikumController) ListMataKuliah(c *fiber.Ctx) error {
	list, err := pc.praktikum.ListMataKuliah(c.UserContext(), c.Query("search"))
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch mata kuliah")
	}
	return c.JSON(fiber.Map{"mata_kuliah": list})
}

func (pc *PraktikumController) SaveMataKuliah(c *fiber.Ctx) error {
	id, ok, err := optionalID(c)
	if !ok {
		return err
	}
	var req services.MataKuliahInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	mk, err := pc.praktikum.SaveMataKuliah(c.UserContext(), id, req)
	if err != nil {
		return respondServiceError(c, err, "Gagal menyimpan mata kuliah")
	}
	return saved(c, id, "Mata kuliah berhasil disimpan", "mata_kuliah", mk)
}

func (pc *PraktikumController) DeleteMataKuliah(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if _, err := pc.praktikum.DeleteMataKuliah(c.UserContext(), id); err != nil {
		return respondServiceError(c, err, "Gagal menghapus mata kuliah")
	}
	return c.JSON(fiber.Map{"message": "Mata kuliah berhasil dihapus"})
}

func (pc *PraktikumController) BulkDeleteMataKuliah(c *fiber.Ctx) error {
	var req idsRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	n, err := pc.praktikum.DeleteMataKuliah(c.UserContext(), req.IDs...)
	if err != nil {
		return respondServiceError(c, err, "Gagal menghapus mata kuliah")
	}
	return c.JSON(fiber.Map{"message": strconv.Itoa(n) + " mata kuliah berhasil dihapus", "deleted": n})
}

// ---- dosen ----

func (pc *PraktikumController) ListDosen(c *fiber.Ctx) error {
	list, err := pc.praktikum.ListDosen(c.UserContext(), c.Query("search"))
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch dosen")
	}
	return c.JSON(fiber.Map{"dosen": list})
}

func (pc *PraktikumController) DosenOptions(c *fiber.Ctx) error {
	list, err := pc.praktikum.DosenOptions(c.UserContext(), c.Query("search"))
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch dosen")
	}
	return c.JSON(fiber.Map{"options": list})
}

func (pc *PraktikumController) SaveDosen(c *fiber.Ctx) error {
	id, ok, err := optionalID(c)
	if !ok {
		return err
	}
	var req services.DosenInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	d, err := pc.praktikum.SaveDosen(c.UserContext(), id, req)
	if err != nil {
		return respondServiceError(c, err, "Gagal menyimpan dosen")
	}
	return saved(c, id, "Dosen berhasil disimpan", "dosen", d)
}

func (pc *PraktikumController) DeleteDosen(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if err := pc.praktikum.DeleteDosen(c.UserContext(), id); err != nil {
		return respondServiceError(c, err, "Gagal menghapus dosen")
	}
	return c.JSON(fiber.Map{"message": "Dosen berhasil dihapus"})
}

// ---- kelas praktikum ----

func (pc *PraktikumController) ListKelasPraktikum(c *fiber.Ctx) error {
	list, err := pc.praktikum.ListKelasPraktikum(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch kelas praktikum")
	}
	return c.JSON(fiber.Map{"kelas_praktikum": list})
}

func (pc *PraktikumController) SaveKelasPraktikum(c *fiber.Ctx) error {
	id, ok, err := optionalID(c)
	if !ok {
		return err
	}
	var req nameRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	k, err := pc.praktikum.SaveKelasPraktikum(c.UserContext(), id, req.Name)
	if err != nil {
		return respondServiceError(c, err, "Gagal menyimpan kelas praktikum")
	}
	return saved(c, id, "Kelas praktikum berhasil disimpan", "kelas_praktikum", k)
}

func (pc *PraktikumController) DeleteKelasPraktikum(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if err := pc.praktikum.DeleteKelasPraktikum(c.UserContext(), id); err != nil {
		return respondServiceError(c, err, "Gagal menghapus kelas praktikum")
	}
	return c.JSON(fiber.Map{"message": "Kelas praktikum berhasil dihapus"})
}

// ---- absensi praktikum ----

func absensiFilter(c *fiber.Ctx) services.AbsensiFilter {
	f := services.AbsensiFilter{
		Search: c.Query("search"),
		From:   c.Query("start_date"),
		To:     c.Query("end_date"),
	}
	if v, err := strconv.ParseUint(c.Query("aslab_id"), 10, 32); err == nil {
		f.AslabID = uint(v)
	}
	if v, err := strconv.ParseUint(c.Query("kelas_id"), 10, 32); err == nil {
		f.KelasID = uint(v)
	}
	return f
}

// ListAbsensi scopes aslabs to their own rows.
func (pc *PraktikumController) ListAbsensi(c *fiber.Ctx) error {
	viewer, ok, err := currentUser(c)
	if !ok {
		return err
	}
	list, err := pc.praktikum.ListAbsensi(c.UserContext(), *viewer, absensiFilter(c))
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch absensi praktikum")
	}
	return c.JSON(fiber.Map{"absensi": list, "total": len(list)})
}

func (pc *PraktikumController) GetAbsensi(c *fiber.Ctx) error {
	viewer, ok, err := currentUser(c)
	if !ok {
		return err
	}
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	a, err := pc.praktikum.GetAbsensi(c.UserContext(), *viewer, id)
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch absensi praktikum")
	}
	return c.JSON(fiber.Map{"absensi": a})
}

func (pc *PraktikumController) SaveAbsensi(c *fiber.Ctx) error {
	viewer, ok, err := currentUser(c)
	if !ok {
		return err
	}
	id, ok, err := optionalID(c)
	if !ok {
		return err
	}
	var req services.AbsensiInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	a, err := pc.praktikum.SaveAbsensi(c.UserContext(), *viewer, id, req)
	if err != nil {
		return respondServiceError(c, err, "Gagal menyimpan absensi praktikum")
	}
	return saved(c, id, "Absensi praktikum berhasil disimpan", "absensi", a)
}

func (pc *PraktikumController) DeleteAbsensi(c *fiber.Ctx) error {
	viewer, ok, err := currentUser(c)
	if !ok {
		return err
	}
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if err := pc.praktikum.DeleteAbsensi(c.UserContext(), *viewer, id); err != nil {
		return respondServiceError(c, err, "Gagal menghapus absensi praktikum")
	}
	return c.JSON(fiber.Map{"message": "Absensi praktikum berhasil dihapus"})
}

func (pc *PraktikumController) Recap(c *fiber.Ctx) error {
	viewer, ok, err := currentUser(c)
	if !ok {
		return err
	}
	rows, err := pc.praktikum.Recap(c.UserContext(), *viewer, absensiFilter(c))
	if err != nil {
		return respondServiceError(c, err, "Failed to build recap")
	}
	return c.JSON(fiber.Map{"recap": rows})
}
