package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"testing"

	"aslab_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImages struct {
	n       int
	deleted []string
}

func (f *fakeImages) UploadImage(_ context.Context, file *multipart.FileHeader, folder string, userID uint) (string, error) {
	f.n++
	return fmt.Sprintf("https://img.test/%s/%d/%d-%s", folder, userID, f.n, file.Filename), nil
}

func (f *fakeImages) DeleteFile(_ context.Context, url string) error {
	f.deleted = append(f.deleted, url)
	return nil
}

func TestJenisAndLokasi(t *testing.T) {
	ctx := context.Background()
	svc := NewInventoryService(newDB(t), nil)

	j, err := svc.SaveJenis(ctx, 0, " Elektronik ")
	require.NoError(t, err)
	assert.Equal(t, "Elektronik", j.NamaJenisAset)
	_, err = svc.SaveJenis(ctx, 0, "Elektronik")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = svc.SaveJenis(ctx, 0, "  ")
	assert.ErrorIs(t, err, ErrValidation)
	j, err = svc.SaveJenis(ctx, j.ID, "Elektronika")
	require.NoError(t, err)
	assert.Equal(t, "Elektronika", j.NamaJenisAset)

	l, err := svc.SaveLokasi(ctx, 0, "Lab 1")
	require.NoError(t, err)
	_, err = svc.CreateAset(ctx, 1, AsetInput{NamaAset: "Multimeter", JenisID: j.ID, LokasiID: &l.ID, Stok: 2}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteJenis(ctx, j.ID), ErrConflict)
	assert.ErrorIs(t, svc.DeleteLokasi(ctx, l.ID), ErrConflict)
	assert.ErrorIs(t, svc.DeleteLokasi(ctx, 999), ErrNotFound)

	list, err := svc.ListJenis(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeleteLokasiReportsCountFailure(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	svc := NewInventoryService(db, nil)
	l, err := svc.SaveLokasi(ctx, 0, "Gudang")
	require.NoError(t, err)
	require.NoError(t, db.Migrator().DropTable(&models.Bahan{}))

	err = svc.DeleteLokasi(ctx, l.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "count bahan by lokasi")

	var left int64
	require.NoError(t, db.Model(&models.Lokasi{}).Count(&left).Error)
	assert.EqualValues(t, 1, left, "lokasi kept when the usage check fails")
}

func TestGenerateKodeAset(t *testing.T) {
	ctx := context.Background()
	svc := NewInventoryService(newDB(t), nil)
	j, err := svc.SaveJenis(ctx, 0, "Perkakas")
	require.NoError(t, err)

	kode, err := svc.GenerateKodeAset(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AST-001", kode)

	a, err := svc.CreateAset(ctx, 1, AsetInput{NamaAset: "Obeng", JenisID: j.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, "AST-001", a.KodeAset)
	assert.Equal(t, KondisiBaik, a.Status)

	_, err = svc.CreateAset(ctx, 1, AsetInput{NamaAset: "Solder", JenisID: j.ID, KodeAset: "AST-041"}, nil)
	require.NoError(t, err)
	_, err = svc.CreateAset(ctx, 1, AsetInput{NamaAset: "Tang", JenisID: j.ID, KodeAset: "AST-041"}, nil)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = svc.CreateAset(ctx, 1, AsetInput{NamaAset: "Label", JenisID: j.ID, KodeAset: "LAB-X"}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAset(ctx, a.ID))
	kode, err = svc.GenerateKodeAset(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AST-042", kode)

	_, err = svc.CreateAset(ctx, 1, AsetInput{NamaAset: "X", JenisID: 999}, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAsetImagesAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	images := &fakeImages{}
	svc := NewInventoryService(db, images)
	j, err := svc.SaveJenis(ctx, 0, "Perkakas")
	require.NoError(t, err)

	a, err := svc.CreateAset(ctx, 3, AsetInput{NamaAset: "Obeng", JenisID: j.ID, Stok: 4},
		&multipart.FileHeader{Filename: "obeng.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://img.test/aset/3/1-obeng.png", a.Gambar)

	a, err = svc.UpdateAset(ctx, 3, a.ID, AsetInput{NamaAset: "Obeng Plus", JenisID: j.ID, Stok: 4, Status: KondisiRusak},
		&multipart.FileHeader{Filename: "baru.png"})
	require.NoError(t, err)
	assert.Equal(t, "Obeng Plus", a.NamaAset)
	assert.Equal(t, KondisiRusak, a.Status)
	assert.Equal(t, "https://img.test/aset/3/2-baru.png", a.Gambar)
	assert.Equal(t, []string{"https://img.test/aset/3/1-obeng.png"}, images.deleted)

	u := createUser(t, db, "budi")
	uid, aid := u.ID, a.ID
	loan := models.PeminjamanAset{AsetID: &aid, UserID: &uid, Stok: 1, Status: models.LoanApproved}
	require.NoError(t, db.Create(&loan).Error)
	assert.ErrorIs(t, svc.DeleteAset(ctx, a.ID), ErrConflict)

	require.NoError(t, db.Model(&loan).Update("status", models.LoanReturned).Error)
	require.NoError(t, svc.DeleteAset(ctx, a.ID))
	assert.Contains(t, images.deleted, "https://img.test/aset/3/2-baru.png")
	_, err = svc.GetAset(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadWithoutStore(t *testing.T) {
	ctx := context.Background()
	svc := NewInventoryService(newDB(t), nil)
	_, err := svc.SaveBahan(ctx, 1, 0, BahanInput{Nama: "Timah"}, &multipart.FileHeader{Filename: "t.png"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRecordUsage(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	svc := NewInventoryService(db, nil)
	u := createUser(t, db, "aslab")

	b, err := svc.SaveBahan(ctx, u.ID, 0, BahanInput{Nama: "Timah", Stok: 5}, nil)
	require.NoError(t, err)

	_, err = svc.RecordUsage(ctx, u.ID, UsageInput{BahanID: b.ID, JumlahDigunakan: 6})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	usage, err := svc.RecordUsage(ctx, u.ID, UsageInput{BahanID: b.ID, JumlahDigunakan: 2, TanggalPenggunaan: "2025-03-01", Keperluan: "Praktikum"})
	require.NoError(t, err)
	assert.Equal(t, 1, usage.TanggalPenggunaan.Day())

	b, err = svc.GetBahan(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Stok)

	_, err = svc.RecordUsage(ctx, u.ID, UsageInput{BahanID: b.ID, JumlahDigunakan: 1, TanggalPenggunaan: "01/03"})
	assert.ErrorIs(t, err, ErrValidation)

	list, err := svc.ListUsage(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Timah", list[0].Bahan.Nama)

	require.NoError(t, svc.DeleteBahan(ctx, b.ID))
	assert.ErrorIs(t, svc.DeleteBahan(ctx, b.ID), ErrNotFound)
}
