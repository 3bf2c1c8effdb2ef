package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"aslab_go/models"
	"aslab_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Aset conditions.
const (
	KondisiBaik     = "baik"
	KondisiRusak    = "rusak"
	KondisiDipinjam = "dipinjam"
	KondisiHilang   = "hilang"
)

const kodeAsetPrefix = "AST-"

// ImageStore keeps inventory pictures.
type ImageStore interface {
	UploadImage(ctx context.Context, file *multipart.FileHeader, folder string, userID uint) (string, error)
	DeleteFile(ctx context.Context, url string) error
}

// InventoryService manages jenis, lokasi, aset, bahan and bahan usage.
type InventoryService struct {
	db     *gorm.DB
	images ImageStore
	now    func() time.Time
}

func NewInventoryService(db *gorm.DB, images ImageStore) *InventoryService {
	return &InventoryService{db: db, images: images, now: time.Now}
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return userErr(ErrNotFound, msg)
	}
	return errors.Wrap(err, msg)
}

// ---- jenis aset ----

func (s *InventoryService) ListJenis(ctx context.Context) ([]models.JenisAset, error) {
	var out []models.JenisAset
	err := s.db.WithContext(ctx).Order("nama_jenis_aset").Find(&out).Error
	return out, errors.Wrap(err, "list jenis")
}

func (s *InventoryService) SaveJenis(ctx context.Context, id uint, name string) (*models.JenisAset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, userErr(ErrValidation, "Nama jenis aset wajib diisi")
	}
	dup, err := countRows(s.db.WithContext(ctx).Model(&models.JenisAset{}).Where("nama_jenis_aset = ? AND id <> ?", name, id), "check jenis")
	if err != nil {
		return nil, err
	}
	if dup > 0 {
		return nil, userErr(ErrConflict, "Jenis aset sudah ada")
	}
	if id == 0 {
		j := models.JenisAset{NamaJenisAset: name}
		return &j, errors.Wrap(s.db.WithContext(ctx).Create(&j).Error, "create jenis")
	}
	var j models.JenisAset
	if err := s.db.WithContext(ctx).First(&j, id).Error; err != nil {
		return nil, notFound(err, "Jenis aset tidak ditemukan")
	}
	j.NamaJenisAset = name
	return &j, errors.Wrap(s.db.WithContext(ctx).Save(&j).Error, "update jenis")
}

func (s *InventoryService) DeleteJenis(ctx context.Context, id uint) error {
	var j models.JenisAset
	if err := s.db.WithContext(ctx).First(&j, id).Error; err != nil {
		return notFound(err, "Jenis aset tidak ditemukan")
	}
	used, err := countRows(s.db.WithContext(ctx).Model(&models.AsetAslab{}).Where("jenis_id = ?", id), "count aset by jenis")
	if err != nil {
		return err
	}
	if used > 0 {
		return userErr(ErrConflict, fmt.Sprintf("Jenis aset masih digunakan oleh %d aset", used))
	}
	return errors.Wrap(s.db.WithContext(ctx).Delete(&j).Error, "delete jenis")
}

// ---- lokasi ----

func (s *InventoryService) ListLokasi(ctx context.Context) ([]models.Lokasi, error) {
	var out []models.Lokasi
	err := s.db.WithContext(ctx).Order("nama_lokasi").Find(&out).Error
	return out, errors.Wrap(err, "list lokasi")
}

func (s *InventoryService) SaveLokasi(ctx context.Context, id uint, name string) (*models.Lokasi, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, userErr(ErrValidation, "Nama lokasi wajib diisi")
	}
	dup, err := countRows(s.db.WithContext(ctx).Model(&models.Lokasi{}).Where("nama_lokasi = ? AND id <> ?", name, id), "check lokasi")
	if err != nil {
		return nil, err
	}
	if dup > 0 {
		return nil, userErr(ErrConflict, "Lokasi sudah ada")
	}
	if id == 0 {
		l := models.Lokasi{NamaLokasi: name}
		return &l, errors.Wrap(s.db.WithContext(ctx).Create(&l).Error, "create lokasi")
	}
	var l models.Lokasi
	if err := s.db.WithContext(ctx).First(&l, id).Error; err != nil {
		return nil, notFound(err, "Lokasi tidak ditemukan")
	}
	l.NamaLokasi = name
	return &l, errors.Wrap(s.db.WithContext(ctx).Save(&l).Error, "update lokasi")
}

func (s *InventoryService) DeleteLokasi(ctx context.Context, id uint) error {
	var l models.Lokasi
	if err := s.db.WithContext(ctx).First(&l, id).Error; err != nil {
		return notFound(err, "Lokasi tidak ditemukan")
	}
	aset, err := countRows(s.db.WithContext(ctx).Model(&models.AsetAslab{}).Where("lokasi_id = ?", id), "count aset by lokasi")
	if err != nil {
		return err
	}
	bahan, err := countRows(s.db.WithContext(ctx).Model(&models.Bahan{}).Where("lokasi_id = ?", id), "count bahan by lokasi")
	if err != nil {
		return err
	}
	if aset+bahan > 0 {
		return userErr(ErrConflict, "Lokasi masih digunakan")
	}
	return errors.Wrap(s.db.WithContext(ctx).Delete(&l).Error, "delete lokasi")
}

// ---- aset ----

type AsetInput struct {
	NamaAset  string `json:"nama_aset" form:"nama_aset" validate:"required,notblank,max=255"`
	JenisID   uint   `json:"jenis_id" form:"jenis_id" validate:"required"`
	LokasiID  *uint  `json:"lokasi_id" form:"lokasi_id"`
	KodeAset  string `json:"kode_aset" form:"kode_aset" validate:"max=50"`
	NomorSeri string `json:"nomor_seri" form:"nomor_seri" validate:"max=100"`
	Stok      int    `json:"stok" form:"stok" validate:"min=0"`
	Status    string `json:"status" form:"status" validate:"omitempty,oneof=baik rusak dipinjam hilang"`
	Catatan   string `json:"catatan" form:"catatan"`
}

type AsetFilter struct {
	Search   string
	JenisID  uint
	LokasiID uint
	Status   string
}

func (s *InventoryService) ListAset(ctx context.Context, f AsetFilter) ([]models.AsetAslab, error) {
	q := s.db.WithContext(ctx).Preload("Jenis").Preload("Lokasi")
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + term + "%"
		q = q.Where("nama_aset LIKE ? OR kode_aset LIKE ? OR nomor_seri LIKE ?", like, like, like)
	}
	if f.JenisID != 0 {
		q = q.Where("jenis_id = ?", f.JenisID)
	}
	if f.LokasiID != 0 {
		q = q.Where("lokasi_id = ?", f.LokasiID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []models.AsetAslab
	return out, errors.Wrap(q.Order("nama_aset").Find(&out).Error, "list aset")
}

func (s *InventoryService) GetAset(ctx context.Context, id uint) (*models.AsetAslab, error) {
	var a models.AsetAslab
	if err := s.db.WithContext(ctx).Preload("Jenis").Preload("Lokasi").First(&a, id).Error; err != nil {
		return nil, notFound(err, "Aset tidak ditemukan")
	}
	return &a, nil
}

// GenerateKodeAset returns the next AST-NNN code. Soft-deleted rows count
// because the unique index still holds their codes.
func (s *InventoryService) GenerateKodeAset(ctx context.Context) (string, error) {
	n, err := lastKodeAset(s.db.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return kodeAset(n + 1), nil
}

func kodeAset(n int) string {
	return fmt.Sprintf("%s%03d", kodeAsetPrefix, n)
}

func lastKodeAset(db *gorm.DB) (int, error) {
	var codes []string
	if err := db.Unscoped().Model(&models.AsetAslab{}).
		Where("kode_aset LIKE ?", kodeAsetPrefix+"%").Pluck("kode_aset", &codes).Error; err != nil {
		return 0, errors.Wrap(err, "load kode aset")
	}
	highest := 0
	for _, c := range codes {
		if n, err := strconv.Atoi(strings.TrimPrefix(c, kodeAsetPrefix)); err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (s *InventoryService) checkRefs(ctx context.Context, jenisID uint, lokasiID *uint) error {
	n, err := countRows(s.db.WithContext(ctx).Model(&models.JenisAset{}).Where("id = ?", jenisID), "check jenis")
	if err != nil {
		return err
	}
	if n == 0 {
		return userErr(ErrValidation, "Jenis aset tidak valid")
	}
	if lokasiID != nil {
		if n, err = countRows(s.db.WithContext(ctx).Model(&models.Lokasi{}).Where("id = ?", *lokasiID), "check lokasi"); err != nil {
			return err
		}
		if n == 0 {
			return userErr(ErrValidation, "Lokasi tidak valid")
		}
	}
	return nil
}

func (s *InventoryService) upload(ctx context.Context, file *multipart.FileHeader, folder string, actorID uint) (string, error) {
	if file == nil {
		return "", nil
	}
	if s.images == nil {
		return "", userErr(ErrValidation, "Penyimpanan gambar tidak tersedia")
	}
	url, err := s.images.UploadImage(ctx, file, folder, actorID)
	if err != nil {
		return "", userErr(ErrValidation, "Gagal mengunggah gambar: "+err.Error())
	}
	return url, nil
}

func (s *InventoryService) dropImage(ctx context.Context, url string) {
	if url == "" || s.images == nil {
		return
	}
	if err := s.images.DeleteFile(ctx, url); err != nil {
		logrus.WithFields(logrus.Fields{"url": url, "error": err.Error()}).Warn("delete image failed")
	}
}

func (s *InventoryService) CreateAset(ctx context.Context, actorID uint, in AsetInput, image *multipart.FileHeader) (*models.AsetAslab, error) {
	if err := s.checkRefs(ctx, in.JenisID, in.LokasiID); err != nil {
		return nil, err
	}
	kode := strings.TrimSpace(in.KodeAset)
	if kode == "" {
		var err error
		if kode, err = s.GenerateKodeAset(ctx); err != nil {
			return nil, err
		}
	} else {
		n, err := countRows(s.db.WithContext(ctx).Unscoped().Model(&models.AsetAslab{}).Where("kode_aset = ?", kode), "check kode aset")
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, userErr(ErrConflict, "Kode aset sudah digunakan")
		}
	}
	url, err := s.upload(ctx, image, "aset", actorID)
	if err != nil {
		return nil, err
	}
	a := models.AsetAslab{
		NamaAset:  strings.TrimSpace(in.NamaAset),
		JenisID:   in.JenisID,
		LokasiID:  in.LokasiID,
		KodeAset:  kode,
		NomorSeri: in.NomorSeri,
		Stok:      in.Stok,
		Status:    in.Status,
		Catatan:   in.Catatan,
		Gambar:    url,
	}
	if a.Status == "" {
		a.Status = KondisiBaik
	}
	if err := s.db.WithContext(ctx).Create(&a).Error; err != nil {
		s.dropImage(ctx, url)
		return nil, errors.Wrap(err, "create aset")
	}
	logrus.WithFields(logrus.Fields{"aset_id": a.ID, "kode": a.KodeAset, "actor_id": actorID}).Info("aset created")
	return &a, nil
}

func (s *InventoryService) UpdateAset(ctx context.Context, actorID, id uint, in AsetInput, image *multipart.FileHeader) (*models.AsetAslab, error) {
	a, err := s.GetAset(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, in.JenisID, in.LokasiID); err != nil {
		return nil, err
	}
	if kode := strings.TrimSpace(in.KodeAset); kode != "" && kode != a.KodeAset {
		n, err := countRows(s.db.WithContext(ctx).Unscoped().Model(&models.AsetAslab{}).Where("kode_aset = ? AND id <> ?", kode, id), "check kode aset")
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, userErr(ErrConflict, "Kode aset sudah digunakan")
		}
		a.KodeAset = kode
	}
	url, err := s.upload(ctx, image, "aset", actorID)
	if err != nil {
		return nil, err
	}
	old := a.Gambar
	a.NamaAset = strings.TrimSpace(in.NamaAset)
	a.JenisID, a.LokasiID = in.JenisID, in.LokasiID
	a.NomorSeri, a.Stok, a.Catatan = in.NomorSeri, in.Stok, in.Catatan
	if in.Status != "" {
		a.Status = in.Status
	}
	if url != "" {
		a.Gambar = url
	}
	a.Jenis, a.Lokasi = models.JenisAset{}, nil
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(a).Error; err != nil {
		s.dropImage(ctx, url)
		return nil, errors.Wrap(err, "update aset")
	}
	if url != "" {
		s.dropImage(ctx, old)
	}
	return s.GetAset(ctx, id)
}

var activeLoanStatuses = []string{models.LoanPending, models.LoanApproved, models.LoanBorrowed}

// DeleteAset refuses while the aset has pending or running loans.
func (s *InventoryService) DeleteAset(ctx context.Context, id uint) error {
	a, err := s.GetAset(ctx, id)
	if err != nil {
		return err
	}
	var active int64
	if err := s.db.WithContext(ctx).Model(&models.PeminjamanAset{}).
		Where("aset_id = ? AND status IN ?", id, activeLoanStatuses).Count(&active).Error; err != nil {
		return errors.Wrap(err, "count active loans")
	}
	if active > 0 {
		return userErr(ErrConflict, "Aset tidak dapat dihapus karena masih ada peminjaman aktif")
	}
	if err := s.db.WithContext(ctx).Delete(&models.AsetAslab{}, id).Error; err != nil {
		return errors.Wrap(err, "delete aset")
	}
	s.dropImage(ctx, a.Gambar)
	return nil
}

// ---- bahan ----

type BahanInput struct {
	Nama       string `json:"nama" form:"nama" validate:"required,notblank,max=255"`
	JenisBahan string `json:"jenis_bahan" form:"jenis_bahan" validate:"max=100"`
	LokasiID   *uint  `json:"lokasi_id" form:"lokasi_id"`
	Stok       int    `json:"stok" form:"stok" validate:"min=0"`
	Catatan    string `json:"catatan" form:"catatan"`
}

func (s *InventoryService) ListBahan(ctx context.Context, search string) ([]models.Bahan, error) {
	q := s.db.WithContext(ctx).Preload("Lokasi")
	if term := strings.TrimSpace(search); term != "" {
		like := "%" + term + "%"
		q = q.Where("nama LIKE ? OR jenis_bahan LIKE ?", like, like)
	}
	var out []models.Bahan
	return out, errors.Wrap(q.Order("nama").Find(&out).Error, "list bahan")
}

func (s *InventoryService) GetBahan(ctx context.Context, id uint) (*models.Bahan, error) {
	var b models.Bahan
	if err := s.db.WithContext(ctx).Preload("Lokasi").First(&b, id).Error; err != nil {
		return nil, notFound(err, "Bahan tidak ditemukan")
	}
	return &b, nil
}

func (s *InventoryService) SaveBahan(ctx context.Context, actorID, id uint, in BahanInput, image *multipart.FileHeader) (*models.Bahan, error) {
	b := &models.Bahan{}
	if id != 0 {
		var err error
		if b, err = s.GetBahan(ctx, id); err != nil {
			return nil, err
		}
	}
	if in.LokasiID != nil {
		n, err := countRows(s.db.WithContext(ctx).Model(&models.Lokasi{}).Where("id = ?", *in.LokasiID), "check lokasi")
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, userErr(ErrValidation, "Lokasi tidak valid")
		}
	}
	url, err := s.upload(ctx, image, "bahan", actorID)
	if err != nil {
		return nil, err
	}
	old := b.Gambar
	b.Nama = strings.TrimSpace(in.Nama)
	b.JenisBahan, b.LokasiID, b.Stok, b.Catatan = in.JenisBahan, in.LokasiID, in.Stok, in.Catatan
	if url != "" {
		b.Gambar = url
	}
	b.Lokasi = nil
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(b).Error; err != nil {
		s.dropImage(ctx, url)
		return nil, errors.Wrap(err, "save bahan")
	}
	if url != "" && old != "" {
		s.dropImage(ctx, old)
	}
	return s.GetBahan(ctx, b.ID)
}

func (s *InventoryService) DeleteBahan(ctx context.Context, id uint) error {
	b, err := s.GetBahan(ctx, id)
	if err != nil {
		return err
	}
	active, err := countRows(s.db.WithContext(ctx).Model(&models.PeminjamanAset{}).
		Where("bahan_id = ? AND status IN ?", id, activeLoanStatuses), "count active loans")
	if err != nil {
		return err
	}
	if active > 0 {
		return userErr(ErrConflict, "Bahan tidak dapat dihapus karena masih ada peminjaman aktif")
	}
	if err := s.db.WithContext(ctx).Delete(&models.Bahan{}, id).Error; err != nil {
		return errors.Wrap(err, "delete bahan")
	}
	s.dropImage(ctx, b.Gambar)
	return nil
}

// ---- penggunaan bahan ----

type UsageInput struct {
	BahanID           uint   `json:"bahan_id" validate:"required"`
	JumlahDigunakan   int    `json:"jumlah_digunakan" validate:"required,gt=0"`
	TanggalPenggunaan string `json:"tanggal_penggunaan"`
	Keperluan         string `json:"keperluan" validate:"max=255"`
	Catatan           string `json:"catatan"`
}

// RecordUsage takes consumed material out of stock.
func (s *InventoryService) RecordUsage(ctx context.Context, userID uint, in UsageInput) (*models.PenggunaanBahan, error) {
	if in.JumlahDigunakan <= 0 {
		return nil, userErr(ErrValidation, "Jumlah digunakan harus lebih dari 0")
	}
	when := s.now()
	if in.TanggalPenggunaan != "" {
		t, err := utils.ParseDate(in.TanggalPenggunaan, when.Location())
		if err != nil {
			return nil, userErr(ErrValidation, "Format tanggal penggunaan tidak valid")
		}
		when = t
	}
	u := models.PenggunaanBahan{
		BahanID:           in.BahanID,
		UserID:            userID,
		TanggalPenggunaan: when,
		JumlahDigunakan:   in.JumlahDigunakan,
		Keperluan:         in.Keperluan,
		Catatan:           in.Catatan,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := reserve(tx, ItemTypeBahan, in.BahanID, in.JumlahDigunakan); err != nil {
			return err
		}
		return errors.Wrap(tx.Create(&u).Error, "record usage")
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"bahan_id": in.BahanID, "user_id": userID, "jumlah": in.JumlahDigunakan}).Info("bahan usage recorded")
	return &u, nil
}

func (s *InventoryService) ListUsage(ctx context.Context, bahanID uint) ([]models.PenggunaanBahan, error) {
	q := s.db.WithContext(ctx).Preload("Bahan").Preload("User")
	if bahanID != 0 {
		q = q.Where("bahan_id = ?", bahanID)
	}
	var out []models.PenggunaanBahan
	return out, errors.Wrap(q.Order("tanggal_penggunaan desc").Order("id desc").Find(&out).Error, "list usage")
}
