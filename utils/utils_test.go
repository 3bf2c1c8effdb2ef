package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMaskChatID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"123456789", "*****6789"},
		{"1234", "****"},
		{"", "****"},
		{"-1001234", "****1234"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskChatID(tt.in), tt.in)
	}
}

func TestDayName(t *testing.T) {
	assert.Equal(t, "senin", DayName(time.Monday))
	assert.Equal(t, "jumat", DayName(time.Friday))
	assert.Equal(t, "minggu", DayName(time.Sunday))
	assert.True(t, IsWeekend(DayName(time.Saturday)))
	assert.False(t, IsWeekend("rabu"))
	assert.Equal(t, "Kamis", DayLabel("kamis"))
}

func TestValidateStructUsesJSONNames(t *testing.T) {
	type req struct {
		RFIDCode string `json:"rfid_code" validate:"notblank"`
		Mode     string `json:"mode" validate:"required,oneof=registration check_in check_out"`
	}

	errs := ValidateStruct(req{RFIDCode: "   ", Mode: "x"})
	assert.Contains(t, errs, "rfid_code")
	assert.Contains(t, errs, "mode")
	assert.Equal(t, "rfid_code cannot be blank", errs["rfid_code"])

	assert.Nil(t, ValidateStruct(req{RFIDCode: "04AB", Mode: "check_in"}))
}

func TestIsValidFileExtension(t *testing.T) {
	allowed := []string{"jpg", "png", " webp"}
	assert.True(t, IsValidFileExtension("a.JPG", allowed))
	assert.True(t, IsValidFileExtension("a.b.webp", allowed))
	assert.False(t, IsValidFileExtension("a.exe", allowed))
	assert.False(t, IsValidFileExtension("noext", allowed))
}

func TestNormalizeRFID(t *testing.T) {
	assert.Equal(t, "04A1B2", NormalizeRFID(" 04a1b2 "))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "09/03/2025", FormatDate("2025-03-09"))
	assert.Equal(t, "kemarin", FormatDate("kemarin"))
}
