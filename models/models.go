package models

import (
	"database/sql/driver"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = append((*j)[0:0], v...)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j.IsNull() {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// Roles
const (
	RoleAdmin     = "admin"
	RoleAslab     = "aslab"
	RoleMahasiswa = "mahasiswa"
	RoleDosen     = "dosen"
)

// Attendance types
const (
	AttendanceCheckIn  = "check_in"
	AttendanceCheckOut = "check_out"
)

// Loan statuses
const (
	LoanPending  = "pending"
	LoanApproved = "approved"
	LoanRejected = "rejected"
	LoanBorrowed = "borrowed"
	LoanReturned = "returned"
)

// Piket days, Monday to Friday.
var PiketDays = []string{"senin", "selasa", "rabu", "kamis", "jumat"}

// User model
type User struct {
	BaseModel
	Name                  string  `json:"name" gorm:"size:255;not null"`
	Email                 string  `json:"email" gorm:"size:255;not null;uniqueIndex"`
	Password              string  `json:"-" gorm:"size:255;not null"`
	RFIDCode              *string `json:"rfid_code" gorm:"column:rfid_code;size:100;uniqueIndex"`
	Prodi                 string  `json:"prodi" gorm:"size:100"`
	Semester              *int    `json:"semester"`
	Role                  string  `json:"role" gorm:"size:20;not null;default:'mahasiswa';index"` // admin, aslab, mahasiswa, dosen
	IsActive              bool    `json:"is_active" gorm:"not null"`
	PiketDay              *string `json:"piket_day" gorm:"size:10;index"` // senin..jumat
	TelegramChatID        *string `json:"telegram_chat_id" gorm:"size:50;index"`
	TelegramNotifications bool    `json:"telegram_notifications" gorm:"not null"`
	LineUserID            *string `json:"line_user_id" gorm:"size:100;index"`

	// Relationships
	Permissions []Permission `json:"permissions,omitempty" gorm:"many2many:user_permissions;"`
}

// HasTelegram reports whether the user can receive Telegram messages.
func (u *User) HasTelegram() bool {
	return u.TelegramChatID != nil && *u.TelegramChatID != "" && u.TelegramNotifications
}

// Role model
type Role struct {
	BaseModel
	Name        string       `json:"name" gorm:"size:255;not null;uniqueIndex"`
	GuardName   string       `json:"guard_name" gorm:"size:50;default:'web'"`
	IsSystem    bool         `json:"is_system" gorm:"default:false"`
	Permissions []Permission `json:"permissions,omitempty" gorm:"many2many:role_permissions;"`
}

// Permission model
type Permission struct {
	BaseModel
	Name      string `json:"name" gorm:"size:100;not null;uniqueIndex"`
	GuardName string `json:"guard_name" gorm:"size:50;default:'web'"`
}

// Attendance is one RFID scan: a check-in or a check-out.
type Attendance struct {
	BaseModel
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_attendance_user_date_type"`
	Type      string    `json:"type" gorm:"size:20;not null;uniqueIndex:idx_attendance_user_date_type"` // check_in, check_out
	Timestamp time.Time `json:"timestamp" gorm:"not null"`
	Date      string    `json:"date" gorm:"size:10;not null;index;uniqueIndex:idx_attendance_user_date_type"` // Y-m-d
	Notes     string    `json:"notes" gorm:"size:255"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// JenisAset model
type JenisAset struct {
	BaseModel
	NamaJenisAset string `json:"nama_jenis_aset" gorm:"size:255;not null;uniqueIndex"`
}

// Lokasi model
type Lokasi struct {
	BaseModel
	NamaLokasi string `json:"nama_lokasi" gorm:"size:255;not null;uniqueIndex"`
}

// AsetAslab model
type AsetAslab struct {
	BaseModel
	NamaAset  string `json:"nama_aset" gorm:"size:255;not null;index"`
	JenisID   uint   `json:"jenis_id" gorm:"not null"`
	LokasiID  *uint  `json:"lokasi_id"`
	KodeAset  string `json:"kode_aset" gorm:"size:50;not null;uniqueIndex"`
	NomorSeri string `json:"nomor_seri" gorm:"size:100"`
	Stok      int    `json:"stok" gorm:"not null;default:0"`
	Status    string `json:"status" gorm:"size:20;not null;default:'baik'"` // baik, rusak, dipinjam, hilang
	Catatan   string `json:"catatan" gorm:"type:text"`
	Gambar    string `json:"gambar" gorm:"size:500"`

	// Relationships
	Jenis  JenisAset `json:"jenis,omitempty" gorm:"foreignKey:JenisID"`
	Lokasi *Lokasi   `json:"lokasi,omitempty" gorm:"foreignKey:LokasiID"`
}

// Bahan (consumable material) model
type Bahan struct {
	BaseModel
	Nama       string `json:"nama" gorm:"size:255;not null;index"`
	JenisBahan string `json:"jenis_bahan" gorm:"size:100"`
	LokasiID   *uint  `json:"lokasi_id"`
	Stok       int    `json:"stok" gorm:"not null;default:0"`
	Catatan    string `json:"catatan" gorm:"type:text"`
	Gambar     string `json:"gambar" gorm:"size:500"`

	// Relationships
	Lokasi *Lokasi `json:"lokasi,omitempty" gorm:"foreignKey:LokasiID"`
}

// PeminjamanAset is a loan of either an aset or a bahan.
type PeminjamanAset struct {
	BaseModel
	AsetID              *uint      `json:"aset_id" gorm:"index"`
	BahanID             *uint      `json:"bahan_id" gorm:"index"`
	UserID              *uint      `json:"user_id" gorm:"index"`
	Stok                int        `json:"stok" gorm:"not null"`
	TanggalPinjam       time.Time  `json:"tanggal_pinjam"`
	TargetReturnDate    *time.Time `json:"target_return_date"`
	TanggalKembali      *time.Time `json:"tanggal_kembali"`
	Status              string     `json:"status" gorm:"size:20;not null;default:'pending';index"`
	ApprovedBy          *uint      `json:"approved_by"`
	ApprovedAt          *time.Time `json:"approved_at"`
	ApprovalNote        string     `json:"approval_note" gorm:"type:text"`
	Keterangan          string     `json:"keterangan" gorm:"type:text"`
	AgreementAccepted   bool       `json:"agreement_accepted" gorm:"default:false"`
	ManualBorrowerName  string     `json:"manual_borrower_name" gorm:"size:255"`
	ManualBorrowerPhone string     `json:"manual_borrower_phone" gorm:"size:50"`
	ManualBorrowerClass string     `json:"manual_borrower_class" gorm:"size:100"`

	// Relationships
	Aset     *AsetAslab `json:"aset,omitempty" gorm:"foreignKey:AsetID"`
	Bahan    *Bahan     `json:"bahan,omitempty" gorm:"foreignKey:BahanID"`
	User     *User      `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Approver *User      `json:"approver,omitempty" gorm:"foreignKey:ApprovedBy"`
}

var loanStatusText = map[string]string{
	LoanPending:  "Menunggu Persetujuan",
	LoanApproved: "Disetujui",
	LoanRejected: "Ditolak",
	LoanBorrowed: "Sedang Dipinjam",
	LoanReturned: "Dikembalikan",
}

// StatusText returns the Indonesian label for the loan status.
func (p *PeminjamanAset) StatusText() string {
	if t, ok := loanStatusText[p.Status]; ok {
		return t
	}
	return p.Status
}

// ItemType is "aset" or "bahan".
func (p *PeminjamanAset) ItemType() string {
	if p.AsetID != nil {
		return "aset"
	}
	if p.BahanID != nil {
		return "bahan"
	}
	return "unknown"
}

func (p *PeminjamanAset) ItemName() string {
	if p.Aset != nil {
		return p.Aset.NamaAset
	}
	if p.Bahan != nil {
		return p.Bahan.Nama
	}
	return "Item tidak ditemukan"
}

func (p *PeminjamanAset) ItemCode() string {
	if p.Aset != nil {
		return p.Aset.KodeAset
	}
	if p.Bahan != nil {
		return "BAHAN-" + strconv.FormatUint(uint64(p.Bahan.ID), 10)
	}
	return "-"
}

// BorrowerName prefers the registered user over the manual borrower.
func (p *PeminjamanAset) BorrowerName() string {
	if p.User != nil {
		return p.User.Name
	}
	return p.ManualBorrowerName
}

// PenggunaanBahan records material consumption.
type PenggunaanBahan struct {
	BaseModel
	BahanID           uint      `json:"bahan_id" gorm:"not null;index"`
	UserID            uint      `json:"user_id" gorm:"not null;index"`
	TanggalPenggunaan time.Time `json:"tanggal_penggunaan"`
	JumlahDigunakan   int       `json:"jumlah_digunakan" gorm:"not null"`
	Keperluan         string    `json:"keperluan" gorm:"size:255"`
	Catatan           string    `json:"catatan" gorm:"type:text"`

	// Relationships
	Bahan Bahan `json:"bahan,omitempty" gorm:"foreignKey:BahanID"`
	User  User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Kelas model
type Kelas struct {
	BaseModel
	Kelas   string `json:"kelas" gorm:"size:50;not null"`
	Jurusan string `json:"jurusan" gorm:"size:100"`
}

// DisplayName joins kelas and jurusan.
func (k *Kelas) DisplayName() string {
	if k.Jurusan == "" {
		return k.Kelas
	}
	return k.Kelas + " - " + k.Jurusan
}

// MataKuliahPraktikum model
type MataKuliahPraktikum struct {
	BaseModel
	Nama    string `json:"nama" gorm:"size:255;not null"`
	KelasID uint   `json:"kelas_id" gorm:"not null;index"`

	// Relationships
	Kelas  Kelas            `json:"kelas,omitempty" gorm:"foreignKey:KelasID"`
	Dosens []DosenPraktikum `json:"dosens,omitempty" gorm:"many2many:dosen_mata_kuliah;"`
}

// DosenPraktikum model
type DosenPraktikum struct {
	BaseModel
	Nama string `json:"nama" gorm:"size:255;not null"`
	NIP  string `json:"nip" gorm:"column:nip;size:50"`

	MataKuliahs []MataKuliahPraktikum `json:"mata_kuliahs,omitempty" gorm:"many2many:dosen_mata_kuliah;"`
}

// KelasPraktikum model
type KelasPraktikum struct {
	BaseModel
	NamaKelas string `json:"nama_kelas" gorm:"size:100;not null"`
}

// Praktikum attendance values
const (
	SebagaiInstruktur = "instruktur"
	SebagaiAsisten    = "asisten"
	KehadiranHadir    = "hadir"
	KehadiranTidak    = "tidak_hadir"
)

// AbsensiPraktikum is an aslab's record of one praktikum meeting.
type AbsensiPraktikum struct {
	BaseModel
	AslabID          uint      `json:"aslab_id" gorm:"not null;index"`
	Tanggal          time.Time `json:"tanggal" gorm:"not null;index"`
	DosenPraktikumID uint      `json:"dosen_praktikum_id" gorm:"not null"`
	Pertemuan        string    `json:"pertemuan" gorm:"size:50;not null"`
	Sebagai          string    `json:"sebagai" gorm:"size:20;not null"`         // instruktur, asisten
	KehadiranDosen   string    `json:"kehadiran_dosen" gorm:"size:20;not null"` // hadir, tidak_hadir
	KelasID          uint      `json:"kelas_id" gorm:"not null;index"`

	// Relationships
	Aslab          User           `json:"aslab,omitempty" gorm:"foreignKey:AslabID"`
	DosenPraktikum DosenPraktikum `json:"dosen_praktikum,omitempty" gorm:"foreignKey:DosenPraktikumID"`
	Kelas          Kelas          `json:"kelas,omitempty" gorm:"foreignKey:KelasID"`
}

// ActivityLog model
type ActivityLog struct {
	BaseModel
	UserID     uint   `json:"user_id"`
	Action     string `json:"action" gorm:"size:100;not null"`
	Resource   string `json:"resource" gorm:"size:100;not null"`
	ResourceID uint   `json:"resource_id"`
	Details    JSON   `json:"details" gorm:"type:json"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Notification model
type Notification struct {
	BaseModel
	UserID           uint       `json:"user_id" gorm:"not null;index"`
	Type             string     `json:"type" gorm:"size:100;not null"`
	Title            string     `json:"title" gorm:"size:255;not null"`
	Message          string     `json:"message" gorm:"type:text;not null"`
	Data             JSON       `json:"data" gorm:"type:json"`
	Channels         string     `json:"channels" gorm:"size:100"` // comma separated: normal,popup,telegram,line
	ReadAt           *time.Time `json:"read_at"`
	RelatedModelType string     `json:"related_model_type" gorm:"size:100"`
	RelatedModelID   *uint      `json:"related_model_id"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// IsRead reports whether the notification has been read.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// LogArchive model for tracking archived logs
type LogArchive struct {
	BaseModel
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	S3Key       string    `json:"s3_key" gorm:"size:500;not null"`
	StartDate   time.Time `json:"start_date" gorm:"not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	RecordCount int       `json:"record_count" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:50;not null;default:'pending'"` // pending, completed, failed
	Error       string    `json:"error" gorm:"type:text"`
}
