package utils

import (
	"time"

	"aslab_go/models"
)

// Compact representations used across APIs
type UserShort struct {
	ID       uint    `json:"id"`
	Name     string  `json:"name"`
	Email    string  `json:"email,omitempty"`
	Prodi    string  `json:"prodi,omitempty"`
	Semester *int    `json:"semester,omitempty"`
	Role     string  `json:"role,omitempty"`
	PiketDay *string `json:"piket_day,omitempty"`
}

func ToUserShort(u models.User) UserShort {
	return UserShort{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Prodi:    u.Prodi,
		Semester: u.Semester,
		Role:     u.Role,
		PiketDay: u.PiketDay,
	}
}

// UserDTO is the full user view; the chat id is masked.
type UserDTO struct {
	UserShort
	RFIDCode              *string   `json:"rfid_code"`
	IsActive              bool      `json:"is_active"`
	TelegramConnected     bool      `json:"telegram_connected"`
	TelegramChatID        string    `json:"telegram_chat_id,omitempty"`
	TelegramNotifications bool      `json:"telegram_notifications"`
	LineConnected         bool      `json:"line_connected"`
	Permissions           []string  `json:"permissions,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

func ToUserDTO(u models.User) UserDTO {
	dto := UserDTO{
		UserShort:             ToUserShort(u),
		RFIDCode:              u.RFIDCode,
		IsActive:              u.IsActive,
		TelegramConnected:     u.TelegramChatID != nil && *u.TelegramChatID != "",
		TelegramNotifications: u.TelegramNotifications,
		LineConnected:         u.LineUserID != nil && *u.LineUserID != "",
		CreatedAt:             u.CreatedAt,
	}
	if dto.TelegramConnected {
		dto.TelegramChatID = MaskChatID(*u.TelegramChatID)
	}
	for _, p := range u.Permissions {
		dto.Permissions = append(dto.Permissions, p.Name)
	}
	return dto
}

// MaskChatID keeps the last four characters of a chat id.
func MaskChatID(id string) string {
	if len(id) <= 4 {
		return "****"
	}
	masked := make([]byte, len(id))
	for i := range masked {
		if i < len(id)-4 {
			masked[i] = '*'
		} else {
			masked[i] = id[i]
		}
	}
	return string(masked)
}

type LoanDTO struct {
	ID               uint       `json:"id"`
	ItemName         string     `json:"item_name"`
	ItemCode         string     `json:"item_code"`
	ItemType         string     `json:"item_type"`
	Quantity         int        `json:"quantity"`
	Status           string     `json:"status"`
	StatusText       string     `json:"status_text"`
	Borrower         string     `json:"borrower"`
	UserID           *uint      `json:"user_id"`
	TanggalPinjam    time.Time  `json:"tanggal_pinjam"`
	TargetReturnDate *time.Time `json:"target_return_date"`
	TanggalKembali   *time.Time `json:"tanggal_kembali"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at"`
	ApprovalNote     string     `json:"approval_note,omitempty"`
	Keterangan       string     `json:"keterangan,omitempty"`
	IsOverdue        bool       `json:"is_overdue"`
}

// ToLoanDTO expects Aset, Bahan, User and Approver preloaded where present.
func ToLoanDTO(p models.PeminjamanAset, now time.Time) LoanDTO {
	dto := LoanDTO{
		ID:               p.ID,
		ItemName:         p.ItemName(),
		ItemCode:         p.ItemCode(),
		ItemType:         p.ItemType(),
		Quantity:         p.Stok,
		Status:           p.Status,
		StatusText:       p.StatusText(),
		Borrower:         p.BorrowerName(),
		UserID:           p.UserID,
		TanggalPinjam:    p.TanggalPinjam,
		TargetReturnDate: p.TargetReturnDate,
		TanggalKembali:   p.TanggalKembali,
		ApprovedAt:       p.ApprovedAt,
		ApprovalNote:     p.ApprovalNote,
		Keterangan:       p.Keterangan,
	}
	if p.Approver != nil {
		dto.ApprovedBy = p.Approver.Name
	}
	if (p.Status == models.LoanApproved || p.Status == models.LoanBorrowed) &&
		p.TargetReturnDate != nil && p.TargetReturnDate.Before(now) {
		dto.IsOverdue = true
	}
	return dto
}

type NotificationDTO struct {
	ID               uint        `json:"id"`
	CreatedAt        time.Time   `json:"created_at"`
	UserID           uint        `json:"user_id"`
	Type             string      `json:"type"`
	Title            string      `json:"title"`
	Message          string      `json:"message"`
	Data             models.JSON `json:"data,omitempty"`
	Read             bool        `json:"read"`
	ReadAt           *time.Time  `json:"read_at,omitempty"`
	RelatedModelType string      `json:"related_model_type,omitempty"`
	RelatedModelID   *uint       `json:"related_model_id,omitempty"`
}

// ToNotificationDTO maps a models.Notification to the compact DTO.
func ToNotificationDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:               n.ID,
		CreatedAt:        n.CreatedAt,
		UserID:           n.UserID,
		Type:             n.Type,
		Title:            n.Title,
		Message:          n.Message,
		Data:             n.Data,
		Read:             n.IsRead(),
		ReadAt:           n.ReadAt,
		RelatedModelType: n.RelatedModelType,
		RelatedModelID:   n.RelatedModelID,
	}
}

func ToNotificationDTOs(list []models.Notification) []NotificationDTO {
	out := make([]NotificationDTO, 0, len(list))
	for _, n := range list {
		out = append(out, ToNotificationDTO(n))
	}
	return out
}
