package services

import (
	"context"
	"testing"
	"time"

	"aslab_go/models"
	"aslab_go/services/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type loanFixture struct {
	db       *gorm.DB
	svc      *LoanService
	notifs   *notifications.Service
	admin    models.User
	aslab    models.User
	borrower models.User
	obeng    models.AsetAslab
	kabel    models.Bahan
}

func newLoanFixture(t *testing.T) *loanFixture {
	t.Helper()
	db := newDB(t)
	f := &loanFixture{db: db, notifs: notifications.NewService(db, nil)}
	f.svc = NewLoanService(db, f.notifs, wib)
	f.svc.now = fixedClock(time.Date(2025, 3, 10, 10, 0, 0, 0, wib))

	f.admin = createUser(t, db, "admin", withRole(models.RoleAdmin))
	f.aslab = createUser(t, db, "aslab")
	f.borrower = createUser(t, db, "budi", withRole(models.RoleMahasiswa))

	jenis := models.JenisAset{NamaJenisAset: "Perkakas"}
	require.NoError(t, db.Create(&jenis).Error)
	f.obeng = models.AsetAslab{NamaAset: "Obeng Set", JenisID: jenis.ID, KodeAset: "AST-001", Stok: 5, Status: "baik"}
	require.NoError(t, db.Create(&f.obeng).Error)
	f.kabel = models.Bahan{Nama: "Kabel Jumper", Stok: 10}
	require.NoError(t, db.Create(&f.kabel).Error)
	return f
}

func (f *loanFixture) stock(t *testing.T) (aset, bahan int) {
	t.Helper()
	var a models.AsetAslab
	var b models.Bahan
	require.NoError(t, f.db.First(&a, f.obeng.ID).Error)
	require.NoError(t, f.db.First(&b, f.kabel.ID).Error)
	return a.Stok, b.Stok
}

func (f *loanFixture) request(t *testing.T, asetQty, bahanQty int) []models.PeminjamanAset {
	t.Helper()
	var items []LoanItemInput
	if asetQty > 0 {
		items = append(items, LoanItemInput{ItemID: f.obeng.ID, ItemType: ItemTypeAset, Quantity: asetQty, TargetReturnDate: "2025-03-12"})
	}
	if bahanQty > 0 {
		items = append(items, LoanItemInput{ItemID: f.kabel.ID, ItemType: ItemTypeBahan, Quantity: bahanQty, TargetReturnDate: "2025-03-12"})
	}
	loans, err := f.svc.Store(context.Background(), f.borrower.ID, LoanRequest{Items: items, AgreementAccepted: true})
	require.NoError(t, err)
	return loans
}

func TestLoanStoreReservesStock(t *testing.T) {
	ctx := context.Background()
	f := newLoanFixture(t)

	loans := f.request(t, 2, 3)
	require.Len(t, loans, 2)
	assert.Equal(t, models.LoanPending, loans[0].Status)
	assert.True(t, loans[0].AgreementAccepted)
	assert.Equal(t, time.Date(2025, 3, 10, 10, 0, 0, 0, wib), loans[0].TanggalPinjam)

	a, b := f.stock(t)
	assert.Equal(t, 3, a)
	assert.Equal(t, 7, b)

	for _, staff := range []models.User{f.admin, f.aslab} {
		n, err := f.notifs.UnreadCount(ctx, staff.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n, staff.Name)
	}
	n, _ := f.notifs.UnreadCount(ctx, f.borrower.ID)
	assert.Zero(t, n)
}

func TestLoanStoreAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newLoanFixture(t)

	_, err := f.svc.Store(ctx, f.borrower.ID, LoanRequest{Items: []LoanItemInput{
		{ItemID: f.kabel.ID, ItemType: ItemTypeBahan, Quantity: 4, TargetReturnDate: "2025-03-12"},
		{ItemID: f.obeng.ID, ItemType: ItemTypeAset, Quantity: 6, TargetReturnDate: "2025-03-12"},
	}})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, "Stock tidak mencukupi untuk Obeng Set. Stock tersedia: 5, diminta: 6", PublicMessage(err, ""))

	a, b := f.stock(t)
	assert.Equal(t, 5, a)
	assert.Equal(t, 10, b, "earlier items roll back")
	var count int64
	f.db.Model(&models.PeminjamanAset{}).Count(&count)
	assert.Zero(t, count)

	_, err = f.svc.Store(ctx, f.borrower.ID, LoanRequest{Items: []LoanItemInput{
		{ItemID: 404, ItemType: ItemTypeBahan, Quantity: 1, TargetReturnDate: "2025-03-12"},
	}})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Bahan dengan ID 404 tidak ditemukan", PublicMessage(err, ""))
}

func TestLoanStoreValidation(t *testing.T) {
	ctx := context.Background()
	f := newLoanFixture(t)

	cases := map[string]LoanItemInput{
		"today is not future": {ItemID: f.obeng.ID, ItemType: ItemTypeAset, Quantity: 1, TargetReturnDate: "2025-03-10"},
		"bad date":            {ItemID: f.obeng.ID, ItemType: ItemTypeAset, Quantity: 1, TargetReturnDate: "besok"},
		"bad type":            {ItemID: f.obeng.ID, ItemType: "alat", Quantity: 1, TargetReturnDate: "2025-03-12"},
		"zero quantity":       {ItemID: f.obeng.ID, ItemType: ItemTypeAset, Quantity: 0, TargetReturnDate: "2025-03-12"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Store(ctx, f.borrower.ID, LoanRequest{Items: []LoanItemInput{in}})
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	_, err := f.svc.Store(ctx, f.borrower.ID, LoanRequest{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Store(ctx, f.borrower.ID, LoanRequest{Items: []LoanItemInput{
		{ItemID: f.obeng.ID, ItemType: ItemTypeAset, Quantity: 1, TargetReturnDate: "2025-03-10T18:00:00+07:00"},
	}})
	assert.NoError(t, err, "RFC 3339 later today is accepted")
}

func TestLoanApproveAndReject(t *testing.T) {
	ctx := context.Background()
	f := newLoanFixture(t)
	loans := f.request(t, 2, 3)

	got, err := f.svc.Approve(ctx, loans[0].ID, f.admin.ID, ActionApprove, "ok")
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, got.Status)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, f.admin.ID, *got.ApprovedBy)
	assert.Equal(t, "ok", got.ApprovalNote)

	_, err = f.svc.Approve(ctx, loans[0].ID, f.admin.ID, ActionReject, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "Permintaan ini sudah diproses", PublicMessage(err, ""))

	_, err = f.svc.Approve(ctx, loans[1].ID, f.aslab.ID, ActionReject, "stok habis")
	require.NoError(t, err)
	a, b := f.stock(t)
	assert.Equal(t, 3, a, "approved loan keeps its reservation")
	assert.Equal(t, 10, b, "reject restores stock")

	_, err = f.svc.Approve(ctx, loans[1].ID, f.aslab.ID, "maybe", "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.Approve(ctx, 999, f.aslab.ID, ActionApprove, "")
	assert.ErrorIs(t, err, ErrNotFound)

	n, _ := f.notifs.UnreadCount(ctx, f.admin.ID)
	assert.Zero(t, n, "processed requests close the staff notifications")
	list, err := f.notifs.List(ctx, f.borrower.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	types := []string{list[0].Type, list[1].Type}
	assert.ElementsMatch(t, []string{notifications.TypeLoanApproved, notifications.TypeLoanRejected}, types)
}

func TestLoanReturn(t *testing.T) {
	ctx := context.Background()
	f := newLoanFixture(t)
	loans := f.request(t, 2, 3)

	_, err := f.svc.Return(ctx, loans[0].ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "Barang ini belum dalam status dipinjam", PublicMessage(err, ""))

	for _, l := range loans {
		_, err := f.svc.Approve(ctx, l.ID, f.admin.ID, ActionApprove, "")
		require.NoError(t, err)
	}
	require.NoError(t, f.db.Model(&models.PeminjamanAset{}).Where("id = ?", loans[1].ID).
		Update("status", models.LoanBorrowed).Error)

	for _, l := range loans {
		got, err := f.svc.Return(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LoanReturned, got.Status)
		require.NotNil(t, got.TanggalKembali)
	}
	a, b := f.stock(t)
	assert.Equal(t, 5, a)
	assert.Equal(t, 10, b, "bahan goes back too")

	_, err = f.svc.Return(ctx, loans[0].ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLoanManual(t *testing.T) {
	ctx := context.Background()
	f := newLoanFixture(t)

	_, err := f.svc.StoreManual(ctx, f.aslab.ID, ManualLoanInput{
		LoanItemInput: LoanItemInput{ItemID: f.obeng.ID, ItemType: ItemTypeAset, Quantity: 1, TargetReturnDate: "2025-03-11"},
		BorrowerName:  "  ",
	})
	assert.ErrorIs(t, err, ErrValidation)

	l, err := f.svc.StoreManual(ctx, f.aslab.ID, ManualLoanInput{
		LoanItemInput: LoanItemInput{ItemID: f.obeng.ID, ItemType: ItemTypeAset, Quantity: 1, TargetReturnDate: "2025-03-11"},
		BorrowerName:  "Tamu Lab",
		BorrowerClass: "TI-2A",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, l.Status)
	assert.Nil(t, l.UserID)
	assert.Equal(t, "Tamu Lab", l.ManualBorrowerName)
	a, _ := f.stock(t)
	assert.Equal(t, 4, a)
}

func TestLoanListAndStats(t *testing.T) {
	ctx := context.Background()
	f := newLoanFixture(t)
	loans := f.request(t, 1, 1)
	other := createUser(t, f.db, "sari", withRole(models.RoleMahasiswa))
	_, err := f.svc.Store(ctx, other.ID, LoanRequest{Items: []LoanItemInput{
		{ItemID: f.kabel.ID, ItemType: ItemTypeBahan, Quantity: 1, TargetReturnDate: "2025-03-11"},
	}})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, loans[0].ID, f.admin.ID, ActionApprove, "")
	require.NoError(t, err)

	all, err := f.svc.List(ctx, f.admin, LoanFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := f.svc.List(ctx, f.borrower, LoanFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	asets, err := f.svc.List(ctx, f.admin, LoanFilter{Type: ItemTypeAset})
	require.NoError(t, err)
	require.Len(t, asets, 1)
	assert.Equal(t, "Obeng Set", asets[0].ItemName())

	found, err := f.svc.List(ctx, f.admin, LoanFilter{Search: "sari"})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	pending, err := f.svc.List(ctx, f.admin, LoanFilter{Status: models.LoanPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = f.svc.Get(ctx, other, loans[0].ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Get(ctx, f.borrower, loans[0].ID)
	assert.NoError(t, err)

	f.svc.now = fixedClock(time.Date(2025, 3, 13, 9, 0, 0, 0, wib))
	st, err := f.svc.Stats(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, &LoanStats{Total: 3, Pending: 2, SedangDipinjam: 1, Terlambat: 1}, st)

	st, err = f.svc.Stats(ctx, other)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Total)
	assert.Zero(t, st.Terlambat)
}

func TestLoanBulk(t *testing.T) {
	ctx := context.Background()
	f := newLoanFixture(t)
	loans := f.request(t, 2, 3)

	res := f.svc.BulkApprove(ctx, []uint{loans[0].ID, 999}, f.admin.ID, "")
	assert.Equal(t, []uint{loans[0].ID}, res.Succeeded)
	assert.Equal(t, "Data peminjaman tidak ditemukan", res.Failed[999])

	res = f.svc.BulkReturn(ctx, []uint{loans[0].ID, loans[1].ID})
	assert.Equal(t, []uint{loans[0].ID}, res.Succeeded)
	assert.Contains(t, res.Failed, loans[1].ID)

	res = f.svc.BulkDelete(ctx, []uint{loans[1].ID})
	assert.Equal(t, []uint{loans[1].ID}, res.Succeeded)
	a, b := f.stock(t)
	assert.Equal(t, 5, a)
	assert.Equal(t, 10, b, "deleting a pending loan frees its stock")

	res = f.svc.BulkReject(ctx, []uint{loans[1].ID}, f.admin.ID, "")
	assert.Empty(t, res.Succeeded)
}

func TestSearchItems(t *testing.T) {
	ctx := context.Background()
	f := newLoanFixture(t)
	require.NoError(t, f.db.Create(&models.Bahan{Nama: "Kabel Habis", Stok: 0}).Error)

	items, err := f.svc.SearchItems(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = f.svc.SearchItems(ctx, "kabel")
	require.NoError(t, err)
	require.Len(t, items, 1, "out of stock items are hidden")
	assert.Equal(t, ItemTypeBahan, items[0].Type)
	assert.Equal(t, "10 pcs tersedia", items[0].StockInfo)

	items, err = f.svc.SearchItems(ctx, "AST-0")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Obeng Set (AST-001)", items[0].DisplayName)
}
