package controllers

import (
	"fmt"
	"time"

	"aslab_go/middleware"
	"aslab_go/models"
	"aslab_go/services"
	"aslab_go/utils"

	"github.com/gofiber/fiber/v2"
)

type LoanController struct {
	loans  *services.LoanService
	export *services.ExportService
	loc    *time.Location
}

func NewLoanController(loans *services.LoanService, export *services.ExportService, loc *time.Location) *LoanController {
	return &LoanController{loans: loans, export: export, loc: loc}
}

type approveRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Note   string `json:"approval_note" validate:"max=1000"`
}

type bulkRequest struct {
	IDs    []uint `json:"ids" validate:"required,min=1"`
	Action string `json:"action" validate:"required,oneof=approve reject return delete"`
	Note   string `json:"approval_note" validate:"max=1000"`
}

func loanFilter(c *fiber.Ctx) services.LoanFilter {
	return services.LoanFilter{
		Status: c.Query("status"),
		Search: c.Query("search"),
		Type:   c.Query("type"),
	}
}

func (lc *LoanController) dtos(list []models.PeminjamanAset) []utils.LoanDTO {
	now := time.Now().In(lc.loc)
	out := make([]utils.LoanDTO, 0, len(list))
	for _, l := range list {
		out = append(out, utils.ToLoanDTO(l, now))
	}
	return out
}

// Index lists loans visible to the current user.
func (lc *LoanController) Index(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	list, err := lc.loans.List(c.UserContext(), *user, loanFilter(c))
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch loans")
	}
	return c.JSON(fiber.Map{"peminjaman": lc.dtos(list), "total": len(list)})
}

func (lc *LoanController) Show(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	loan, err := lc.loans.Get(c.UserContext(), *user, id)
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch loan")
	}
	return c.JSON(fiber.Map{"peminjaman": utils.ToLoanDTO(*loan, time.Now().In(lc.loc))})
}

// Store creates pending loans for the current user.
func (lc *LoanController) Store(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	var req services.LoanRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	created, err := lc.loans.Store(c.UserContext(), user.ID, req)
	if err != nil {
		return respondServiceError(c, err, "Gagal mengajukan peminjaman")
	}
	for _, l := range created {
		middleware.LogActivity(c, "CREATE", "peminjaman", l.ID, fiber.Map{"item": l.ItemName(), "stok": l.Stok})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Pengajuan peminjaman berhasil dikirim",
		"peminjaman": lc.dtos(created),
	})
}

// StoreManual records an approved loan for a walk-in borrower.
func (lc *LoanController) StoreManual(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	var req services.ManualLoanInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	loan, err := lc.loans.StoreManual(c.UserContext(), user.ID, req)
	if err != nil {
		return respondServiceError(c, err, "Gagal mencatat peminjaman")
	}
	middleware.LogActivity(c, "CREATE", "peminjaman", loan.ID, fiber.Map{"manual": true, "borrower": req.BorrowerName})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Peminjaman manual berhasil dicatat",
		"peminjaman": utils.ToLoanDTO(*loan, time.Now().In(lc.loc)),
	})
}

func (lc *LoanController) Approve(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	var req approveRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	loan, err := lc.loans.Approve(c.UserContext(), id, user.ID, req.Action, req.Note)
	if err != nil {
		return respondServiceError(c, err, "Gagal memproses peminjaman")
	}
	msg := "Peminjaman disetujui"
	if req.Action == services.ActionReject {
		msg = "Peminjaman ditolak"
	}
	middleware.LogActivity(c, "UPDATE", "peminjaman", id, fiber.Map{"action": req.Action})
	return c.JSON(fiber.Map{"message": msg, "peminjaman": utils.ToLoanDTO(*loan, time.Now().In(lc.loc))})
}

func (lc *LoanController) Return(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	loan, err := lc.loans.Return(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err, "Gagal memproses pengembalian")
	}
	return c.JSON(fiber.Map{"message": "Barang berhasil dikembalikan", "peminjaman": utils.ToLoanDTO(*loan, time.Now().In(lc.loc))})
}

func (lc *LoanController) Delete(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if err := lc.loans.Delete(c.UserContext(), id); err != nil {
		return respondServiceError(c, err, "Gagal menghapus peminjaman")
	}
	return c.JSON(fiber.Map{"message": "Peminjaman berhasil dihapus"})
}

// Bulk applies one action to many loans and reports per-id failures.
func (lc *LoanController) Bulk(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	var req bulkRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	ctx := c.UserContext()
	var res *services.BulkResult
	switch req.Action {
	case "approve":
		res = lc.loans.BulkApprove(ctx, req.IDs, user.ID, req.Note)
	case "reject":
		res = lc.loans.BulkReject(ctx, req.IDs, user.ID, req.Note)
	case "return":
		res = lc.loans.BulkReturn(ctx, req.IDs)
	default:
		res = lc.loans.BulkDelete(ctx, req.IDs)
	}
	middleware.LogActivity(c, "BULK_"+req.Action, "peminjaman", 0, fiber.Map{"ids": req.IDs, "failed": len(res.Failed)})
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("%d peminjaman diproses, %d gagal", len(res.Succeeded), len(res.Failed)),
		"result":  res,
	})
}

func (lc *LoanController) Stats(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	stats, err := lc.loans.Stats(c.UserContext(), *user)
	if err != nil {
		return respondServiceError(c, err, "Failed to load loan stats")
	}
	return c.JSON(fiber.Map{"stats": stats})
}

// SearchItems powers the item picker. Short queries return nothing.
func (lc *LoanController) SearchItems(c *fiber.Ctx) error {
	items, err := lc.loans.SearchItems(c.UserContext(), c.Query("q"))
	if err != nil {
		return respondServiceError(c, err, "Failed to search items")
	}
	return c.JSON(fiber.Map{"items": items})
}

func (lc *LoanController) Export(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	buf, err := lc.export.Loans(c.UserContext(), *user, loanFilter(c))
	if err != nil {
		return respondServiceError(c, err, "Gagal export peminjaman")
	}
	name := fmt.Sprintf("peminjaman_%s.xlsx", time.Now().In(lc.loc).Format("20060102_150405"))
	return sendXLSX(c, name, buf.Bytes())
}
