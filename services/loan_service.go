package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aslab_go/models"
	"aslab_go/services/notifications"
	"aslab_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ItemTypeAset  = "aset"
	ItemTypeBahan = "bahan"

	loanModelType = "peminjaman_aset"
)

// Notifier is the part of the notification service the workflows use.
type Notifier interface {
	EnqueueOrCreate(ctx context.Context, userIDs []uint, p notifications.Payload) error
	MarkRelatedRead(ctx context.Context, typ, modelType string, id uint) error
}

// LoanService runs the aset/bahan loan workflow. Stock is reserved when a
// request is made and given back on reject or return.
type LoanService struct {
	db       *gorm.DB
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

func NewLoanService(db *gorm.DB, notifier Notifier, loc *time.Location) *LoanService {
	return &LoanService{db: db, notifier: notifier, loc: loc, now: time.Now}
}

// LoanItemInput is one line of a loan request.
type LoanItemInput struct {
	ItemID           uint   `json:"item_id" validate:"required"`
	ItemType         string `json:"item_type" validate:"required,oneof=aset bahan"`
	Quantity         int    `json:"quantity" validate:"required,gt=0"`
	TargetReturnDate string `json:"target_return_date" validate:"required"`
	Note             string `json:"note" validate:"max=1000"`
}

type LoanRequest struct {
	Items             []LoanItemInput `json:"items" validate:"required,min=1,dive"`
	AgreementAccepted bool            `json:"agreement_accepted"`
}

// ManualLoanInput records a walk-in borrower without an account.
type ManualLoanInput struct {
	LoanItemInput
	BorrowerName  string `json:"borrower_name" validate:"required,notblank,max=255"`
	BorrowerPhone string `json:"borrower_phone" validate:"max=50"`
	BorrowerClass string `json:"borrower_class" validate:"max=100"`
}

// parseTarget accepts Y-m-d or RFC 3339 and requires a time after now.
func (s *LoanService) parseTarget(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	t, err := utils.ParseDate(raw, s.loc)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, raw); err != nil {
			return time.Time{}, userErr(ErrValidation, "Format tanggal pengembalian tidak valid")
		}
	}
	if !t.After(s.now()) {
		return time.Time{}, userErr(ErrValidation, "Target return date must be in the future")
	}
	return t, nil
}

func (s *LoanService) checkItem(in LoanItemInput) (time.Time, error) {
	if in.ItemType != ItemTypeAset && in.ItemType != ItemTypeBahan {
		return time.Time{}, userErr(ErrValidation, "Invalid item type")
	}
	if in.Quantity <= 0 {
		return time.Time{}, userErr(ErrValidation, "Quantity must be greater than 0")
	}
	return s.parseTarget(in.TargetReturnDate)
}

// reserve locks the item row, checks stock and takes qty from it.
func reserve(tx *gorm.DB, typ string, id uint, qty int) (string, error) {
	lock := tx.Clauses(clause.Locking{Strength: "UPDATE"})
	switch typ {
	case ItemTypeAset:
		var a models.AsetAslab
		if err := lock.First(&a, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", userErr(ErrNotFound, fmt.Sprintf("Aset dengan ID %d tidak ditemukan", id))
			}
			return "", errors.Wrap(err, "lock aset")
		}
		if a.Stok < qty {
			return "", userErr(ErrInsufficientStock, fmt.Sprintf("Stock tidak mencukupi untuk %s. Stock tersedia: %d, diminta: %d", a.NamaAset, a.Stok, qty))
		}
		return a.NamaAset, errors.Wrap(tx.Model(&a).UpdateColumn("stok", gorm.Expr("stok - ?", qty)).Error, "reserve aset stock")
	default:
		var b models.Bahan
		if err := lock.First(&b, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", userErr(ErrNotFound, fmt.Sprintf("Bahan dengan ID %d tidak ditemukan", id))
			}
			return "", errors.Wrap(err, "lock bahan")
		}
		if b.Stok < qty {
			return "", userErr(ErrInsufficientStock, fmt.Sprintf("Stock tidak mencukupi untuk %s. Stock tersedia: %d, diminta: %d", b.Nama, b.Stok, qty))
		}
		return b.Nama, errors.Wrap(tx.Model(&b).UpdateColumn("stok", gorm.Expr("stok - ?", qty)).Error, "reserve bahan stock")
	}
}

// restock gives a loan's quantity back to its item. A deleted item is skipped.
func restock(tx *gorm.DB, p *models.PeminjamanAset) error {
	lock := tx.Clauses(clause.Locking{Strength: "UPDATE"})
	switch {
	case p.AsetID != nil:
		var a models.AsetAslab
		if err := lock.First(&a, *p.AsetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return errors.Wrap(err, "lock aset")
		}
		return errors.Wrap(tx.Model(&a).UpdateColumn("stok", gorm.Expr("stok + ?", p.Stok)).Error, "restore aset stock")
	case p.BahanID != nil:
		var b models.Bahan
		if err := lock.First(&b, *p.BahanID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return errors.Wrap(err, "lock bahan")
		}
		return errors.Wrap(tx.Model(&b).UpdateColumn("stok", gorm.Expr("stok + ?", p.Stok)).Error, "restore bahan stock")
	}
	return nil
}

func newLoan(in LoanItemInput, target time.Time, now time.Time) models.PeminjamanAset {
	p := models.PeminjamanAset{
		Stok:             in.Quantity,
		TanggalPinjam:    now,
		TargetReturnDate: &target,
		Keterangan:       in.Note,
	}
	id := in.ItemID
	if in.ItemType == ItemTypeAset {
		p.AsetID = &id
	} else {
		p.BahanID = &id
	}
	return p
}

// Store reserves stock for every item and creates pending loans, all or none.
func (s *LoanService) Store(ctx context.Context, userID uint, req LoanRequest) ([]models.PeminjamanAset, error) {
	if len(req.Items) == 0 {
		return nil, userErr(ErrValidation, "No items selected")
	}
	targets := make([]time.Time, len(req.Items))
	for i, it := range req.Items {
		t, err := s.checkItem(it)
		if err != nil {
			return nil, err
		}
		targets[i] = t
	}

	now := s.now()
	var created []models.PeminjamanAset
	var names []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, it := range req.Items {
			name, err := reserve(tx, it.ItemType, it.ItemID, it.Quantity)
			if err != nil {
				return err
			}
			loan := newLoan(it, targets[i], now)
			uid := userID
			loan.UserID = &uid
			loan.Status = models.LoanPending
			loan.AgreementAccepted = req.AgreementAccepted
			if err := tx.Create(&loan).Error; err != nil {
				return errors.Wrap(err, "create loan")
			}
			created = append(created, loan)
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("loan request failed")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "items": len(created)}).Info("loan request stored, stock reserved")
	s.notifyStaff(ctx, userID, created, names)
	return created, nil
}

// StoreManual records an approved loan for a walk-in borrower.
func (s *LoanService) StoreManual(ctx context.Context, actorID uint, in ManualLoanInput) (*models.PeminjamanAset, error) {
	if strings.TrimSpace(in.BorrowerName) == "" {
		return nil, userErr(ErrValidation, "Nama peminjam wajib diisi")
	}
	target, err := s.checkItem(in.LoanItemInput)
	if err != nil {
		return nil, err
	}
	now := s.now()
	loan := newLoan(in.LoanItemInput, target, now)
	loan.Status = models.LoanApproved
	loan.ApprovedBy = &actorID
	loan.ApprovedAt = &now
	loan.ApprovalNote = "Peminjaman manual"
	loan.AgreementAccepted = true
	loan.ManualBorrowerName = strings.TrimSpace(in.BorrowerName)
	loan.ManualBorrowerPhone = in.BorrowerPhone
	loan.ManualBorrowerClass = in.BorrowerClass

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := reserve(tx, in.ItemType, in.ItemID, in.Quantity); err != nil {
			return err
		}
		return errors.Wrap(tx.Create(&loan).Error, "create manual loan")
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"loan_id": loan.ID, "actor_id": actorID, "borrower": loan.ManualBorrowerName}).Info("manual loan recorded")
	return &loan, nil
}

func (s *LoanService) staffIDs(ctx context.Context, exclude uint) []uint {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role IN ? AND is_active = ? AND id <> ?", []string{models.RoleAdmin, models.RoleAslab}, true, exclude).
		Pluck("id", &ids).Error; err != nil {
		logrus.WithField("error", err.Error()).Error("load loan approvers")
	}
	return ids
}

func (s *LoanService) notifyStaff(ctx context.Context, borrowerID uint, loans []models.PeminjamanAset, names []string) {
	if s.notifier == nil {
		return
	}
	staff := s.staffIDs(ctx, borrowerID)
	if len(staff) == 0 {
		return
	}
	var borrower models.User
	_ = s.db.WithContext(ctx).Select("id", "name").First(&borrower, borrowerID).Error
	for i, l := range loans {
		p := notifications.New(notifications.TypeLoanCreated, "Permintaan Peminjaman",
			borrower.Name+" mengajukan peminjaman "+names[i],
			notifications.ChannelNormal, notifications.ChannelPopup, notifications.ChannelTelegram).
			WithData(map[string]interface{}{"peminjaman_id": l.ID, "item_name": names[i], "user_name": borrower.Name, "status": l.Status}).
			RelatedTo(loanModelType, l.ID)
		if err := s.notifier.EnqueueOrCreate(ctx, staff, p); err != nil {
			logrus.WithFields(logrus.Fields{"loan_id": l.ID, "error": err.Error()}).Warn("loan notification failed")
		}
	}
}

func (s *LoanService) notifyBorrower(ctx context.Context, l *models.PeminjamanAset, typ, title, msg string) {
	if s.notifier == nil || l.UserID == nil {
		return
	}
	p := notifications.New(typ, title, msg, notifications.ChannelNormal, notifications.ChannelPopup, notifications.ChannelTelegram).
		WithData(map[string]interface{}{"peminjaman_id": l.ID, "item_name": l.ItemName(), "status": l.Status}).
		RelatedTo(loanModelType, l.ID)
	if err := s.notifier.EnqueueOrCreate(ctx, []uint{*l.UserID}, p); err != nil {
		logrus.WithFields(logrus.Fields{"loan_id": l.ID, "error": err.Error()}).Warn("loan notification failed")
	}
}

func (s *LoanService) find(ctx context.Context, db *gorm.DB, id uint, lock bool) (*models.PeminjamanAset, error) {
	q := db.WithContext(ctx).Preload("Aset").Preload("Bahan").Preload("User").Preload("Approver")
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var l models.PeminjamanAset
	if err := q.First(&l, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, userErr(ErrNotFound, "Data peminjaman tidak ditemukan")
		}
		return nil, errors.Wrap(err, "find loan")
	}
	return &l, nil
}

// Get returns a loan when the viewer may see it.
func (s *LoanService) Get(ctx context.Context, viewer models.User, id uint) (*models.PeminjamanAset, error) {
	l, err := s.find(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	if !isStaff(viewer) && (l.UserID == nil || *l.UserID != viewer.ID) {
		return nil, userErr(ErrForbidden, "Anda tidak memiliki akses ke data ini")
	}
	return l, nil
}

func isStaff(u models.User) bool {
	return u.Role == models.RoleAdmin || u.Role == models.RoleAslab
}

// Loan approval actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Approve decides a pending loan. Rejecting gives the reserved stock back.
func (s *LoanService) Approve(ctx context.Context, id, approverID uint, action, note string) (*models.PeminjamanAset, error) {
	if action != ActionApprove && action != ActionReject {
		return nil, userErr(ErrValidation, "Action harus approve atau reject")
	}
	var loan *models.PeminjamanAset
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := s.find(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if l.Status != models.LoanPending {
			return userErr(ErrInvalidTransition, "Permintaan ini sudah diproses")
		}
		if action == ActionReject {
			if err := restock(tx, l); err != nil {
				return err
			}
		}
		now := s.now()
		status := models.LoanApproved
		if action == ActionReject {
			status = models.LoanRejected
		}
		if err := tx.Model(l).Updates(map[string]interface{}{
			"status":        status,
			"approved_by":   approverID,
			"approved_at":   now,
			"approval_note": note,
		}).Error; err != nil {
			return errors.Wrap(err, "update loan")
		}
		l.Status, l.ApprovedBy, l.ApprovedAt, l.ApprovalNote = status, &approverID, &now, note
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"loan_id": id, "approver_id": approverID, "action": action, "quantity": loan.Stok}).Info("loan decided")
	if s.notifier != nil {
		if err := s.notifier.MarkRelatedRead(ctx, notifications.TypeLoanCreated, loanModelType, id); err != nil {
			logrus.WithField("error", err.Error()).Warn("close loan request notifications")
		}
	}
	if action == ActionApprove {
		s.notifyBorrower(ctx, loan, notifications.TypeLoanApproved, "Peminjaman Disetujui",
			"Peminjaman Anda untuk "+loan.ItemName()+" telah disetujui")
	} else {
		s.notifyBorrower(ctx, loan, notifications.TypeLoanRejected, "Peminjaman Ditolak",
			"Peminjaman Anda untuk "+loan.ItemName()+" telah ditolak")
	}
	return loan, nil
}

// Return closes an approved or borrowed loan and gives the stock back.
func (s *LoanService) Return(ctx context.Context, id uint) (*models.PeminjamanAset, error) {
	var loan *models.PeminjamanAset
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := s.find(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if l.Status != models.LoanApproved && l.Status != models.LoanBorrowed {
			return userErr(ErrInvalidTransition, "Barang ini belum dalam status dipinjam")
		}
		if err := restock(tx, l); err != nil {
			return err
		}
		now := s.now()
		if err := tx.Model(l).Updates(map[string]interface{}{
			"status":          models.LoanReturned,
			"tanggal_kembali": now,
		}).Error; err != nil {
			return errors.Wrap(err, "update loan")
		}
		l.Status, l.TanggalKembali = models.LoanReturned, &now
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"loan_id": id, "quantity": loan.Stok}).Info("loan returned, stock restored")
	s.notifyBorrower(ctx, loan, notifications.TypeLoanReturned, "Peminjaman Dikembalikan",
		loan.ItemName()+" telah dikembalikan")
	return loan, nil
}

// Delete removes a loan. Stock still held by a pending or active loan is
// given back first.
func (s *LoanService) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := s.find(ctx, tx, id, true)
		if err != nil {
			return err
		}
		switch l.Status {
		case models.LoanPending, models.LoanApproved, models.LoanBorrowed:
			if err := restock(tx, l); err != nil {
				return err
			}
		}
		return errors.Wrap(tx.Delete(l).Error, "delete loan")
	})
}

// BulkResult reports a bulk action per loan id.
type BulkResult struct {
	Succeeded []uint          `json:"succeeded"`
	Failed    map[uint]string `json:"failed"`
}

func (s *LoanService) bulk(ids []uint, fn func(id uint) error) *BulkResult {
	res := &BulkResult{Succeeded: []uint{}, Failed: map[uint]string{}}
	for _, id := range ids {
		if err := fn(id); err != nil {
			res.Failed[id] = PublicMessage(err, "Terjadi kesalahan sistem")
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	return res
}

func (s *LoanService) BulkApprove(ctx context.Context, ids []uint, approverID uint, note string) *BulkResult {
	return s.bulk(ids, func(id uint) error {
		_, err := s.Approve(ctx, id, approverID, ActionApprove, note)
		return err
	})
}

func (s *LoanService) BulkReject(ctx context.Context, ids []uint, approverID uint, note string) *BulkResult {
	return s.bulk(ids, func(id uint) error {
		_, err := s.Approve(ctx, id, approverID, ActionReject, note)
		return err
	})
}

func (s *LoanService) BulkReturn(ctx context.Context, ids []uint) *BulkResult {
	return s.bulk(ids, func(id uint) error {
		_, err := s.Return(ctx, id)
		return err
	})
}

func (s *LoanService) BulkDelete(ctx context.Context, ids []uint) *BulkResult {
	return s.bulk(ids, func(id uint) error { return s.Delete(ctx, id) })
}

// LoanFilter narrows List.
type LoanFilter struct {
	Status string
	Search string
	Type   string
}

// List returns loans newest first. Staff see every loan, others their own.
func (s *LoanService) List(ctx context.Context, viewer models.User, f LoanFilter) ([]models.PeminjamanAset, error) {
	q := s.db.WithContext(ctx).Model(&models.PeminjamanAset{}).
		Preload("Aset").Preload("Bahan").Preload("User").Preload("Approver")
	if !isStaff(viewer) {
		q = q.Where("peminjaman_asets.user_id = ?", viewer.ID)
	}
	if f.Status != "" {
		q = q.Where("peminjaman_asets.status = ?", f.Status)
	}
	switch f.Type {
	case ItemTypeAset:
		q = q.Where("peminjaman_asets.aset_id IS NOT NULL")
	case ItemTypeBahan:
		q = q.Where("peminjaman_asets.bahan_id IS NOT NULL")
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + term + "%"
		q = q.Joins("LEFT JOIN aset_aslabs ON aset_aslabs.id = peminjaman_asets.aset_id").
			Joins("LEFT JOIN bahans ON bahans.id = peminjaman_asets.bahan_id").
			Joins("LEFT JOIN users ON users.id = peminjaman_asets.user_id").
			Where("aset_aslabs.nama_aset LIKE ? OR aset_aslabs.kode_aset LIKE ? OR bahans.nama LIKE ? OR users.name LIKE ? OR peminjaman_asets.manual_borrower_name LIKE ?",
				like, like, like, like, like)
	}
	var out []models.PeminjamanAset
	err := q.Order("peminjaman_asets.created_at desc").Order("peminjaman_asets.id desc").Find(&out).Error
	return out, errors.Wrap(err, "list loans")
}

type LoanStats struct {
	Total          int64 `json:"total_peminjaman"`
	Pending        int64 `json:"menunggu_persetujuan"`
	SedangDipinjam int64 `json:"sedang_dipinjam"`
	SudahKembali   int64 `json:"sudah_kembali"`
	Terlambat      int64 `json:"terlambat_kembali"`
}

// Stats counts loans visible to the viewer.
func (s *LoanService) Stats(ctx context.Context, viewer models.User) (*LoanStats, error) {
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.PeminjamanAset{})
		if !isStaff(viewer) {
			q = q.Where("user_id = ?", viewer.ID)
		}
		return q
	}
	active := []string{models.LoanApproved, models.LoanBorrowed}
	st := &LoanStats{}
	steps := []struct {
		dst *int64
		q   *gorm.DB
	}{
		{&st.Total, base()},
		{&st.Pending, base().Where("status = ?", models.LoanPending)},
		{&st.SedangDipinjam, base().Where("status IN ?", active)},
		{&st.SudahKembali, base().Where("status = ?", models.LoanReturned)},
		{&st.Terlambat, base().Where("status IN ? AND target_return_date < ?", active, s.now())},
	}
	for _, step := range steps {
		if err := step.q.Count(step.dst).Error; err != nil {
			return nil, errors.Wrap(err, "loan stats")
		}
	}
	return st, nil
}

// SearchItem is one in-stock item offered by the loan form.
type SearchItem struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Stock       int    `json:"stock"`
	Unit        string `json:"unit"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	StockInfo   string `json:"stock_info"`
}

// SearchItems finds in-stock aset (by name or code) and bahan (by name).
// Queries shorter than two characters return nothing.
func (s *LoanService) SearchItems(ctx context.Context, q string) ([]SearchItem, error) {
	q = strings.TrimSpace(q)
	items := []SearchItem{}
	if len([]rune(q)) < 2 {
		return items, nil
	}
	like := "%" + q + "%"

	var asets []models.AsetAslab
	if err := s.db.WithContext(ctx).Where("(nama_aset LIKE ? OR kode_aset LIKE ?) AND stok > 0", like, like).
		Order("nama_aset").Limit(10).Find(&asets).Error; err != nil {
		return nil, errors.Wrap(err, "search aset")
	}
	for _, a := range asets {
		items = append(items, SearchItem{
			ID: a.ID, Name: a.NamaAset, Code: a.KodeAset, Stock: a.Stok, Unit: "pcs", Type: ItemTypeAset,
			DisplayName: fmt.Sprintf("%s (%s)", a.NamaAset, a.KodeAset),
			StockInfo:   fmt.Sprintf("%d pcs tersedia", a.Stok),
		})
	}

	var bahans []models.Bahan
	if err := s.db.WithContext(ctx).Where("nama LIKE ? AND stok > 0", like).
		Order("nama").Limit(10).Find(&bahans).Error; err != nil {
		return nil, errors.Wrap(err, "search bahan")
	}
	for _, b := range bahans {
		items = append(items, SearchItem{
			ID: b.ID, Name: b.Nama, Code: fmt.Sprintf("BAHAN-%d", b.ID), Stock: b.Stok, Unit: "pcs", Type: ItemTypeBahan,
			DisplayName: b.Nama,
			StockInfo:   fmt.Sprintf("%d pcs tersedia", b.Stok),
		})
	}
	if len(items) > 20 {
		items = items[:20]
	}
	return items, nil
}
