package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"aslab_go/models"
	"aslab_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PraktikumService holds the lecture master data and the aslabs' praktikum
// attendance.
type PraktikumService struct {
	db  *gorm.DB
	loc *time.Location
}

func NewPraktikumService(db *gorm.DB, loc *time.Location) *PraktikumService {
	return &PraktikumService{db: db, loc: loc}
}

func likeTerm(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return "%" + s + "%", s != ""
}

// ---- kelas ----

type KelasInput struct {
	Kelas   string `json:"kelas" validate:"required,notblank,max=50"`
	Jurusan string `json:"jurusan" validate:"required,oneof=IF SI"`
}

func (s *PraktikumService) ListKelas(ctx context.Context, search string) ([]models.Kelas, error) {
	q := s.db.WithContext(ctx)
	if like, ok := likeTerm(search); ok {
		q = q.Where("kelas LIKE ? OR jurusan LIKE ?", like, like)
	}
	var out []models.Kelas
	return out, errors.Wrap(q.Order("jurusan").Order("kelas").Find(&out).Error, "list kelas")
}

func (s *PraktikumService) SaveKelas(ctx context.Context, id uint, in KelasInput) (*models.Kelas, error) {
	if in.Jurusan != "IF" && in.Jurusan != "SI" {
		return nil, userErr(ErrValidation, "Jurusan harus IF atau SI")
	}
	var k models.Kelas
	if id != 0 {
		if err := s.db.WithContext(ctx).First(&k, id).Error; err != nil {
			return nil, notFound(err, "Kelas tidak ditemukan")
		}
	}
	k.Kelas, k.Jurusan = strings.TrimSpace(in.Kelas), in.Jurusan
	return &k, errors.Wrap(s.db.WithContext(ctx).Save(&k).Error, "save kelas")
}

func (s *PraktikumService) DeleteKelas(ctx context.Context, id uint) error {
	var k models.Kelas
	if err := s.db.WithContext(ctx).First(&k, id).Error; err != nil {
		return notFound(err, "Kelas tidak ditemukan")
	}
	mk, err := countRows(s.db.WithContext(ctx).Model(&models.MataKuliahPraktikum{}).Where("kelas_id = ?", id), "count mata kuliah")
	if err != nil {
		return err
	}
	abs, err := countRows(s.db.WithContext(ctx).Model(&models.AbsensiPraktikum{}).Where("kelas_id = ?", id), "count absensi")
	if err != nil {
		return err
	}
	if mk+abs > 0 {
		return userErr(ErrConflict, "Kelas masih digunakan oleh mata kuliah atau absensi")
	}
	return errors.Wrap(s.db.WithContext(ctx).Delete(&k).Error, "delete kelas")
}

// ---- mata kuliah ----

type MataKuliahInput struct {
	Nama    string `json:"nama" validate:"required,notblank,max=255"`
	KelasID uint   `json:"kelas_id" validate:"required"`
}

func (s *PraktikumService) ListMataKuliah(ctx context.Context, search string) ([]models.MataKuliahPraktikum, error) {
	q := s.db.WithContext(ctx).Preload("Kelas").Preload("Dosens")
	if like, ok := likeTerm(search); ok {
		q = q.Where("nama LIKE ?", like)
	}
	var out []models.MataKuliahPraktikum
	return out, errors.Wrap(q.Order("nama").Find(&out).Error, "list mata kuliah")
}

func (s *PraktikumService) checkKelas(ctx context.Context, id uint) error {
	n, err := countRows(s.db.WithContext(ctx).Model(&models.Kelas{}).Where("id = ?", id), "check kelas")
	if err != nil {
		return err
	}
	if n == 0 {
		return userErr(ErrValidation, "Kelas tidak valid")
	}
	return nil
}

func (s *PraktikumService) SaveMataKuliah(ctx context.Context, id uint, in MataKuliahInput) (*models.MataKuliahPraktikum, error) {
	if err := s.checkKelas(ctx, in.KelasID); err != nil {
		return nil, err
	}
	var mk models.MataKuliahPraktikum
	if id != 0 {
		if err := s.db.WithContext(ctx).First(&mk, id).Error; err != nil {
			return nil, notFound(err, "Mata kuliah tidak ditemukan")
		}
	}
	mk.Nama, mk.KelasID = strings.TrimSpace(in.Nama), in.KelasID
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(&mk).Error; err != nil {
		return nil, errors.Wrap(err, "save mata kuliah")
	}
	return &mk, nil
}

// DeleteMataKuliah removes courses and their dosen links.
func (s *PraktikumService) DeleteMataKuliah(ctx context.Context, ids ...uint) (int, error) {
	if len(ids) == 0 {
		return 0, userErr(ErrValidation, "Tidak ada data yang dipilih")
	}
	n := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			var mk models.MataKuliahPraktikum
			if err := tx.First(&mk, id).Error; err != nil {
				return notFound(err, "Mata kuliah tidak ditemukan")
			}
			if err := tx.Model(&mk).Association("Dosens").Clear(); err != nil {
				return errors.Wrap(err, "unlink dosen")
			}
			if err := tx.Delete(&mk).Error; err != nil {
				return errors.Wrap(err, "delete mata kuliah")
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ---- dosen ----

type DosenInput struct {
	Nama          string `json:"nama" validate:"required,notblank,max=255"`
	NIP           string `json:"nip" validate:"required,notblank,max=50"`
	MataKuliahIDs []uint `json:"mata_kuliah_ids" validate:"required,min=1"`
}

// DosenOption is the dosen picker entry.
type DosenOption struct {
	ID          uint     `json:"id"`
	Nama        string   `json:"nama"`
	NIP         string   `json:"nip"`
	MataKuliahs []string `json:"mata_kuliahs"`
	DisplayName string   `json:"display_name"`
}

func (s *PraktikumService) ListDosen(ctx context.Context, search string) ([]models.DosenPraktikum, error) {
	q := s.db.WithContext(ctx).Preload("MataKuliahs")
	if like, ok := likeTerm(search); ok {
		q = q.Where("nama LIKE ? OR nip LIKE ?", like, like)
	}
	var out []models.DosenPraktikum
	return out, errors.Wrap(q.Order("nama").Find(&out).Error, "list dosen")
}

// DosenOptions labels each dosen with their courses.
func (s *PraktikumService) DosenOptions(ctx context.Context, search string) ([]DosenOption, error) {
	list, err := s.ListDosen(ctx, search)
	if err != nil {
		return nil, err
	}
	out := make([]DosenOption, 0, len(list))
	for _, d := range list {
		names := make([]string, 0, len(d.MataKuliahs))
		for _, mk := range d.MataKuliahs {
			names = append(names, mk.Nama)
		}
		label := d.Nama
		if len(names) > 0 {
			label += " - " + strings.Join(names, ", ")
		}
		out = append(out, DosenOption{ID: d.ID, Nama: d.Nama, NIP: d.NIP, MataKuliahs: names, DisplayName: label})
	}
	return out, nil
}

func (s *PraktikumService) SaveDosen(ctx context.Context, id uint, in DosenInput) (*models.DosenPraktikum, error) {
	if len(in.MataKuliahIDs) == 0 {
		return nil, userErr(ErrValidation, "Pilih minimal satu mata kuliah")
	}
	nip := strings.TrimSpace(in.NIP)
	dup, err := countRows(s.db.WithContext(ctx).Model(&models.DosenPraktikum{}).Where("nip = ? AND id <> ?", nip, id), "check nip")
	if err != nil {
		return nil, err
	}
	if dup > 0 {
		return nil, userErr(ErrConflict, "NIP sudah digunakan")
	}
	var mks []models.MataKuliahPraktikum
	if err := s.db.WithContext(ctx).Where("id IN ?", in.MataKuliahIDs).Find(&mks).Error; err != nil {
		return nil, errors.Wrap(err, "load mata kuliah")
	}
	if len(mks) != len(uniqueIDs(in.MataKuliahIDs)) {
		return nil, userErr(ErrValidation, "Mata kuliah tidak valid")
	}

	var d models.DosenPraktikum
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if id != 0 {
			if err := tx.First(&d, id).Error; err != nil {
				return notFound(err, "Dosen tidak ditemukan")
			}
		}
		d.Nama, d.NIP = strings.TrimSpace(in.Nama), nip
		if err := tx.Omit(clause.Associations).Save(&d).Error; err != nil {
			return errors.Wrap(err, "save dosen")
		}
		return errors.Wrap(tx.Model(&d).Association("MataKuliahs").Replace(mks), "sync mata kuliah")
	})
	if err != nil {
		return nil, err
	}
	d.MataKuliahs = mks
	return &d, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := map[uint]bool{}
	var out []uint
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (s *PraktikumService) DeleteDosen(ctx context.Context, id uint) error {
	var d models.DosenPraktikum
	if err := s.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return notFound(err, "Dosen tidak ditemukan")
	}
	used, err := countRows(s.db.WithContext(ctx).Model(&models.AbsensiPraktikum{}).Where("dosen_praktikum_id = ?", id), "count absensi")
	if err != nil {
		return err
	}
	if used > 0 {
		return userErr(ErrConflict, "Dosen masih memiliki data absensi")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&d).Association("MataKuliahs").Clear(); err != nil {
			return errors.Wrap(err, "unlink mata kuliah")
		}
		return errors.Wrap(tx.Delete(&d).Error, "delete dosen")
	})
}

// ---- kelas praktikum ----

func (s *PraktikumService) ListKelasPraktikum(ctx context.Context) ([]models.KelasPraktikum, error) {
	var out []models.KelasPraktikum
	return out, errors.Wrap(s.db.WithContext(ctx).Order("nama_kelas").Find(&out).Error, "list kelas praktikum")
}

func (s *PraktikumService) SaveKelasPraktikum(ctx context.Context, id uint, name string) (*models.KelasPraktikum, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, userErr(ErrValidation, "Nama kelas wajib diisi")
	}
	var k models.KelasPraktikum
	if id != 0 {
		if err := s.db.WithContext(ctx).First(&k, id).Error; err != nil {
			return nil, notFound(err, "Kelas praktikum tidak ditemukan")
		}
	}
	k.NamaKelas = name
	return &k, errors.Wrap(s.db.WithContext(ctx).Save(&k).Error, "save kelas praktikum")
}

func (s *PraktikumService) DeleteKelasPraktikum(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.KelasPraktikum{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete kelas praktikum")
	}
	if res.RowsAffected == 0 {
		return userErr(ErrNotFound, "Kelas praktikum tidak ditemukan")
	}
	return nil
}

// ---- absensi praktikum ----

type AbsensiInput struct {
	AslabID          uint   `json:"aslab_id"`
	Tanggal          string `json:"tanggal" validate:"required"`
	DosenPraktikumID uint   `json:"dosen_praktikum_id" validate:"required"`
	Pertemuan        string `json:"pertemuan" validate:"required,notblank,max=50"`
	Sebagai          string `json:"sebagai" validate:"required,oneof=instruktur asisten"`
	KehadiranDosen   string `json:"kehadiran_dosen" validate:"required,oneof=hadir tidak_hadir"`
	KelasID          uint   `json:"kelas_id" validate:"required"`
}

type AbsensiFilter struct {
	Search  string
	AslabID uint
	KelasID uint
	From    string
	To      string
}

// scoped limits aslabs to their own rows.
func scoped(q *gorm.DB, viewer models.User) *gorm.DB {
	if viewer.Role == models.RoleAslab {
		return q.Where("absensi_praktikums.aslab_id = ?", viewer.ID)
	}
	return q
}

func (s *PraktikumService) filtered(ctx context.Context, viewer models.User, f AbsensiFilter) (*gorm.DB, error) {
	q := scoped(s.db.WithContext(ctx).Model(&models.AbsensiPraktikum{}), viewer)
	if f.AslabID != 0 {
		q = q.Where("absensi_praktikums.aslab_id = ?", f.AslabID)
	}
	if f.KelasID != 0 {
		q = q.Where("absensi_praktikums.kelas_id = ?", f.KelasID)
	}
	if f.From != "" {
		from, err := utils.ParseDate(f.From, s.loc)
		if err != nil {
			return nil, userErr(ErrValidation, "Format tanggal tidak valid")
		}
		q = q.Where("absensi_praktikums.tanggal >= ?", from)
	}
	if f.To != "" {
		to, err := utils.ParseDate(f.To, s.loc)
		if err != nil {
			return nil, userErr(ErrValidation, "Format tanggal tidak valid")
		}
		q = q.Where("absensi_praktikums.tanggal < ?", to.AddDate(0, 0, 1))
	}
	if like, ok := likeTerm(f.Search); ok {
		q = q.Joins("LEFT JOIN users ON users.id = absensi_praktikums.aslab_id").
			Joins("LEFT JOIN dosen_praktikums ON dosen_praktikums.id = absensi_praktikums.dosen_praktikum_id").
			Joins("LEFT JOIN kelas ON kelas.id = absensi_praktikums.kelas_id").
			Where("users.name LIKE ? OR dosen_praktikums.nama LIKE ? OR kelas.kelas LIKE ? OR kelas.jurusan LIKE ?", like, like, like, like)
	}
	return q, nil
}

func (s *PraktikumService) ListAbsensi(ctx context.Context, viewer models.User, f AbsensiFilter) ([]models.AbsensiPraktikum, error) {
	q, err := s.filtered(ctx, viewer, f)
	if err != nil {
		return nil, err
	}
	var out []models.AbsensiPraktikum
	err = q.Preload("Aslab").Preload("DosenPraktikum").Preload("Kelas").
		Order("absensi_praktikums.tanggal desc").Order("absensi_praktikums.id desc").Find(&out).Error
	return out, errors.Wrap(err, "list absensi praktikum")
}

func (s *PraktikumService) GetAbsensi(ctx context.Context, viewer models.User, id uint) (*models.AbsensiPraktikum, error) {
	var a models.AbsensiPraktikum
	err := scoped(s.db.WithContext(ctx), viewer).Preload("Aslab").Preload("DosenPraktikum").Preload("Kelas").First(&a, id).Error
	if err != nil {
		return nil, notFound(err, "Data absensi tidak ditemukan")
	}
	return &a, nil
}

// SaveAbsensi creates (id 0) or updates a record. Aslabs always record for
// themselves.
func (s *PraktikumService) SaveAbsensi(ctx context.Context, viewer models.User, id uint, in AbsensiInput) (*models.AbsensiPraktikum, error) {
	if viewer.Role == models.RoleAslab {
		in.AslabID = viewer.ID
	}
	if in.AslabID == 0 {
		return nil, userErr(ErrValidation, "Aslab wajib dipilih")
	}
	if in.Sebagai != models.SebagaiInstruktur && in.Sebagai != models.SebagaiAsisten {
		return nil, userErr(ErrValidation, "Sebagai harus instruktur atau asisten")
	}
	if in.KehadiranDosen != models.KehadiranHadir && in.KehadiranDosen != models.KehadiranTidak {
		return nil, userErr(ErrValidation, "Kehadiran dosen harus hadir atau tidak_hadir")
	}
	tanggal, err := utils.ParseDate(in.Tanggal, s.loc)
	if err != nil {
		return nil, userErr(ErrValidation, "Format tanggal tidak valid")
	}
	n, err := countRows(s.db.WithContext(ctx).Model(&models.User{}).Where("id = ? AND role = ?", in.AslabID, models.RoleAslab), "check aslab")
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, userErr(ErrValidation, "Aslab tidak valid")
	}
	if n, err = countRows(s.db.WithContext(ctx).Model(&models.DosenPraktikum{}).Where("id = ?", in.DosenPraktikumID), "check dosen"); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, userErr(ErrValidation, "Dosen tidak valid")
	}
	if err := s.checkKelas(ctx, in.KelasID); err != nil {
		return nil, err
	}

	a := &models.AbsensiPraktikum{}
	if id != 0 {
		if a, err = s.GetAbsensi(ctx, viewer, id); err != nil {
			return nil, err
		}
	}
	a.AslabID, a.Tanggal, a.DosenPraktikumID = in.AslabID, tanggal, in.DosenPraktikumID
	a.Pertemuan, a.Sebagai, a.KehadiranDosen, a.KelasID = strings.TrimSpace(in.Pertemuan), in.Sebagai, in.KehadiranDosen, in.KelasID
	a.Aslab, a.DosenPraktikum, a.Kelas = models.User{}, models.DosenPraktikum{}, models.Kelas{}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(a).Error; err != nil {
		return nil, errors.Wrap(err, "save absensi praktikum")
	}
	logrus.WithFields(logrus.Fields{"absensi_id": a.ID, "aslab_id": a.AslabID}).Info("absensi praktikum saved")
	return s.GetAbsensi(ctx, viewer, a.ID)
}

func (s *PraktikumService) DeleteAbsensi(ctx context.Context, viewer models.User, id uint) error {
	a, err := s.GetAbsensi(ctx, viewer, id)
	if err != nil {
		return err
	}
	return errors.Wrap(s.db.WithContext(ctx).Delete(&models.AbsensiPraktikum{}, a.ID).Error, "delete absensi praktikum")
}

// AbsensiRecap counts one aslab's praktikum records.
type AbsensiRecap struct {
	AslabID         uint   `json:"aslab_id"`
	Name            string `json:"name"`
	Total           int    `json:"total"`
	Instruktur      int    `json:"instruktur"`
	Asisten         int    `json:"asisten"`
	DosenHadir      int    `json:"dosen_hadir"`
	DosenTidakHadir int    `json:"dosen_tidak_hadir"`
}

// Recap groups the filtered records per aslab, ordered by name.
func (s *PraktikumService) Recap(ctx context.Context, viewer models.User, f AbsensiFilter) ([]AbsensiRecap, error) {
	rows, err := s.ListAbsensi(ctx, viewer, f)
	if err != nil {
		return nil, err
	}
	byAslab := map[uint]*AbsensiRecap{}
	var order []uint
	for _, r := range rows {
		rec, ok := byAslab[r.AslabID]
		if !ok {
			rec = &AbsensiRecap{AslabID: r.AslabID, Name: r.Aslab.Name}
			byAslab[r.AslabID] = rec
			order = append(order, r.AslabID)
		}
		rec.Total++
		if r.Sebagai == models.SebagaiInstruktur {
			rec.Instruktur++
		} else {
			rec.Asisten++
		}
		if r.KehadiranDosen == models.KehadiranHadir {
			rec.DosenHadir++
		} else {
			rec.DosenTidakHadir++
		}
	}
	out := make([]AbsensiRecap, 0, len(order))
	for _, id := range order {
		out = append(out, *byAslab[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
