package services

import (
	"context"
	"encoding/csv"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"aslab_go/models"
	"aslab_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type ImportKind string

const (
	ImportAset  ImportKind = "aset"
	ImportBahan ImportKind = "bahan"
	ImportUsers ImportKind = "users"
)

const (
	DefaultImportPassword = "password"
	defaultImportJenis    = "Umum"
	defaultImportLokasi   = "Gudang"
	defaultImportBahan    = "Bahan"
)

// importColumns maps a field to the header names accepted for it.
var importColumns = map[string][]string{
	"nama":        {"nama barang", "nama", "nama_aset", "name"},
	"jenis":       {"jenis", "jenis aset", "jenis_aset"},
	"jenis_bahan": {"jenis_bahan", "jenis bahan", "alat/bahan"},
	"lokasi":      {"lokasi barang", "lokasi"},
	"stok":        {"quantity", "stok", "jumlah"},
	"kondisi":     {"kondisi", "status"},
	"catatan":     {"catatan", "keterangan"},
	"gambar":      {"foto barang", "gambar"},
	"nomor_seri":  {"nomor seri", "nomor_seri", "serial number"},
	"email":       {"email", "e-mail"},
	"password":    {"password"},
	"role":        {"role"},
	"rfid_code":   {"rfid_code", "rfid", "kode rfid"},
	"piket_day":   {"piket_day", "hari piket", "piket"},
	"prodi":       {"prodi", "program studi"},
	"semester":    {"semester"},
}

var requiredColumns = map[ImportKind][]string{
	ImportAset:  {"nama"},
	ImportBahan: {"nama"},
	ImportUsers: {"nama", "email"},
}

var kondisiAliases = map[string]string{
	"baik":     KondisiBaik,
	"bagus":    KondisiBaik,
	"good":     KondisiBaik,
	"rusak":    KondisiRusak,
	"broken":   KondisiRusak,
	"hilang":   KondisiHilang,
	"lost":     KondisiHilang,
	"dipinjam": KondisiDipinjam,
}

// ImportRow is one spreadsheet line. Line counts from 1 with the header.
type ImportRow struct {
	Line  int               `json:"line"`
	Data  map[string]string `json:"data"`
	Error string            `json:"error,omitempty"`
}

func (r ImportRow) get(key, def string) string {
	if v := strings.TrimSpace(r.Data[key]); v != "" {
		return v
	}
	return def
}

type ImportResult struct {
	Kind     ImportKind  `json:"kind"`
	Preview  bool        `json:"preview"`
	Total    int         `json:"total"`
	Imported int         `json:"imported"`
	Failed   int         `json:"failed"`
	Rows     []ImportRow `json:"rows"`
}

// ImportService loads aset, bahan and users from xlsx or csv sheets.
type ImportService struct {
	db    *gorm.DB
	perms *PermissionService
}

func NewImportService(db *gorm.DB, perms *PermissionService) *ImportService {
	return &ImportService{db: db, perms: perms}
}

// ReadSheet returns the rows of a csv file or the first sheet of an xlsx.
func ReadSheet(filename string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		cr := csv.NewReader(r)
		cr.TrimLeadingSpace = true
		cr.FieldsPerRecord = -1
		rows, err := cr.ReadAll()
		if err != nil {
			return nil, userErr(ErrValidation, "File CSV tidak valid: "+err.Error())
		}
		return rows, nil
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, userErr(ErrValidation, "File Excel tidak valid")
		}
		defer f.Close()
		sheet := f.GetSheetName(0)
		if sheet == "" {
			sheet = "Sheet1"
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, errors.Wrap(err, "read sheet")
		}
		return rows, nil
	}
	return nil, userErr(ErrValidation, "Format file harus xlsx atau csv")
}

// mapHeader resolves header cells to field names, ignoring case.
func mapHeader(header []string) map[string]int {
	byName := map[string]int{}
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}
	out := map[string]int{}
	for field, aliases := range importColumns {
		for _, a := range aliases {
			if i, ok := byName[a]; ok {
				out[field] = i
				break
			}
		}
	}
	return out
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Import parses the file and, unless preview is set, writes every row that
// passed validation. Rows with errors are reported and skipped.
func (s *ImportService) Import(ctx context.Context, kind ImportKind, filename string, r io.Reader, preview bool) (*ImportResult, error) {
	required, ok := requiredColumns[kind]
	if !ok {
		return nil, userErr(ErrValidation, "Jenis import tidak dikenal")
	}
	sheet, err := ReadSheet(filename, r)
	if err != nil {
		return nil, err
	}
	if len(sheet) == 0 {
		return nil, userErr(ErrValidation, "File kosong")
	}
	cols := mapHeader(sheet[0])
	for _, field := range required {
		if _, ok := cols[field]; !ok {
			return nil, userErr(ErrValidation, "Kolom wajib tidak ditemukan: "+importColumns[field][0])
		}
	}

	res := &ImportResult{Kind: kind, Preview: preview}
	for i, cells := range sheet[1:] {
		if blankRow(cells) {
			continue
		}
		row := ImportRow{Line: i + 2, Data: map[string]string{}}
		for field, idx := range cols {
			if idx < len(cells) {
				row.Data[field] = strings.TrimSpace(cells[idx])
			}
		}
		res.Rows = append(res.Rows, row)
	}
	res.Total = len(res.Rows)

	switch kind {
	case ImportAset:
		err = s.importAset(ctx, res)
	case ImportBahan:
		err = s.importBahan(ctx, res)
	case ImportUsers:
		err = s.importUsers(ctx, res)
	}
	if err != nil {
		return nil, err
	}
	for _, row := range res.Rows {
		if row.Error != "" {
			res.Failed++
		}
	}
	if !preview {
		res.Imported = res.Total - res.Failed
		logrus.WithFields(logrus.Fields{"kind": kind, "imported": res.Imported, "failed": res.Failed}).Info("import finished")
	}
	return res, nil
}

func parseStok(raw string) (int, string) {
	if raw == "" {
		return 0, ""
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, "Quantity harus berupa angka"
	}
	if n < 0 {
		return 0, "Quantity tidak boleh negatif"
	}
	return n, ""
}

// refCache creates jenis and lokasi rows on first use within one import.
type refCache struct {
	tx     *gorm.DB
	jenis  map[string]uint
	lokasi map[string]uint
}

func newRefCache(tx *gorm.DB) *refCache {
	return &refCache{tx: tx, jenis: map[string]uint{}, lokasi: map[string]uint{}}
}

func (c *refCache) jenisID(name string) (uint, error) {
	key := strings.ToLower(name)
	if id, ok := c.jenis[key]; ok {
		return id, nil
	}
	var j models.JenisAset
	if err := c.tx.Where("LOWER(nama_jenis_aset) = ?", key).Attrs(models.JenisAset{NamaJenisAset: name}).FirstOrCreate(&j).Error; err != nil {
		return 0, errors.Wrap(err, "jenis aset")
	}
	c.jenis[key] = j.ID
	return j.ID, nil
}

func (c *refCache) lokasiID(name string) (uint, error) {
	key := strings.ToLower(name)
	if id, ok := c.lokasi[key]; ok {
		return id, nil
	}
	var l models.Lokasi
	if err := c.tx.Where("LOWER(nama_lokasi) = ?", key).Attrs(models.Lokasi{NamaLokasi: name}).FirstOrCreate(&l).Error; err != nil {
		return 0, errors.Wrap(err, "lokasi")
	}
	c.lokasi[key] = l.ID
	return l.ID, nil
}

func (s *ImportService) importAset(ctx context.Context, res *ImportResult) error {
	asets := make([]*models.AsetAslab, len(res.Rows))
	for i := range res.Rows {
		row := &res.Rows[i]
		nama := row.get("nama", "")
		if nama == "" {
			row.Error = "Nama barang wajib diisi"
			continue
		}
		stok, msg := parseStok(row.get("stok", ""))
		if msg != "" {
			row.Error = msg
			continue
		}
		kondisi, ok := kondisiAliases[strings.ToLower(row.get("kondisi", KondisiBaik))]
		if !ok {
			row.Error = "Kondisi tidak dikenal: " + row.get("kondisi", "")
			continue
		}
		asets[i] = &models.AsetAslab{
			NamaAset:  nama,
			NomorSeri: row.get("nomor_seri", ""),
			Stok:      stok,
			Status:    kondisi,
			Catatan:   row.get("catatan", ""),
			Gambar:    row.get("gambar", ""),
		}
	}
	if res.Preview {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refs := newRefCache(tx)
		last, err := lastKodeAset(tx)
		if err != nil {
			return err
		}
		for i, a := range asets {
			if a == nil {
				continue
			}
			row := res.Rows[i]
			if a.JenisID, err = refs.jenisID(row.get("jenis", defaultImportJenis)); err != nil {
				return err
			}
			lokasi, err := refs.lokasiID(row.get("lokasi", defaultImportLokasi))
			if err != nil {
				return err
			}
			a.LokasiID = &lokasi
			last++
			a.KodeAset = kodeAset(last)
			if err := tx.Create(a).Error; err != nil {
				return errors.Wrapf(err, "import aset line %d", row.Line)
			}
		}
		return nil
	})
}

func (s *ImportService) importBahan(ctx context.Context, res *ImportResult) error {
	list := make([]*models.Bahan, len(res.Rows))
	for i := range res.Rows {
		row := &res.Rows[i]
		nama := row.get("nama", "")
		if nama == "" {
			row.Error = "Nama barang wajib diisi"
			continue
		}
		stok, msg := parseStok(row.get("stok", ""))
		if msg != "" {
			row.Error = msg
			continue
		}
		list[i] = &models.Bahan{
			Nama:       nama,
			JenisBahan: row.get("jenis_bahan", defaultImportBahan),
			Stok:       stok,
			Catatan:    row.get("catatan", ""),
			Gambar:     row.get("gambar", ""),
		}
	}
	if res.Preview {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refs := newRefCache(tx)
		for i, b := range list {
			if b == nil {
				continue
			}
			lokasi, err := refs.lokasiID(res.Rows[i].get("lokasi", defaultImportLokasi))
			if err != nil {
				return err
			}
			b.LokasiID = &lokasi
			if err := tx.Create(b).Error; err != nil {
				return errors.Wrapf(err, "import bahan line %d", res.Rows[i].Line)
			}
		}
		return nil
	})
}

func firstError(errs map[string]string) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return errs[keys[0]]
}

func (s *ImportService) importUsers(ctx context.Context, res *ImportResult) error {
	inputs := make([]*UserInput, len(res.Rows))
	seenEmail := map[string]int{}
	seenRFID := map[string]int{}
	for i := range res.Rows {
		row := &res.Rows[i]
		in := UserInput{
			Name:     row.get("nama", ""),
			Email:    strings.ToLower(row.get("email", "")),
			Password: row.get("password", DefaultImportPassword),
			Role:     strings.ToLower(row.get("role", models.RoleAslab)),
			Prodi:    row.get("prodi", ""),
		}
		if v := row.get("semester", ""); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				row.Error = "Semester harus berupa angka"
				continue
			}
			in.Semester = &n
		}
		if v := utils.NormalizeRFID(row.get("rfid_code", "")); v != "" {
			in.RFIDCode = &v
		}
		if v := strings.ToLower(row.get("piket_day", "")); v != "" {
			in.PiketDay = &v
		}
		if errs := utils.ValidateStruct(in); errs != nil {
			row.Error = firstError(errs)
			continue
		}
		if line, ok := seenEmail[in.Email]; ok {
			row.Error = "Email duplikat dengan baris " + strconv.Itoa(line)
			continue
		}
		if err := emailFree(ctx, s.db, in.Email, 0); errors.Is(err, ErrConflict) {
			row.Error = PublicMessage(err, "Email sudah terdaftar")
			continue
		} else if err != nil {
			return err
		}
		if in.RFIDCode != nil {
			if line, ok := seenRFID[*in.RFIDCode]; ok {
				row.Error = "RFID duplikat dengan baris " + strconv.Itoa(line)
				continue
			}
			n, err := countRows(s.db.WithContext(ctx).Model(&models.User{}).Where("rfid_code = ?", *in.RFIDCode), "check rfid")
			if err != nil {
				return err
			}
			if n > 0 {
				row.Error = "RFID sudah terdaftar"
				continue
			}
			seenRFID[*in.RFIDCode] = row.Line
		}
		seenEmail[in.Email] = row.Line
		inputs[i] = &in
	}
	if res.Preview {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, in := range inputs {
			if in == nil {
				continue
			}
			hash, err := utils.HashPassword(in.Password)
			if err != nil {
				return errors.Wrap(err, "hash password")
			}
			u := models.User{
				Name:     in.Name,
				Email:    in.Email,
				Password: hash,
				Role:     in.Role,
				Prodi:    in.Prodi,
				Semester: in.Semester,
				RFIDCode: in.RFIDCode,
				PiketDay: in.PiketDay,
				IsActive: true,
			}
			if err := tx.Create(&u).Error; err != nil {
				return errors.Wrapf(err, "import user line %d", res.Rows[i].Line)
			}
			if err := s.perms.SyncUserPermissions(ctx, tx, &u, nil); err != nil {
				return err
			}
		}
		return nil
	})
}
