package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"aslab_go/models"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const exportTimeLayout = "2006-01-02 15:04"

// ExportService renders attendance and loan reports as xlsx.
type ExportService struct {
	attendance *AttendanceService
	loans      *LoanService
	loc        *time.Location
}

func NewExportService(attendance *AttendanceService, loans *LoanService, loc *time.Location) *ExportService {
	return &ExportService{attendance: attendance, loans: loans, loc: loc}
}

func writeSheet(name string, header []interface{}, rows [][]interface{}) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return nil, errors.Wrap(err, "rename sheet")
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return nil, errors.Wrap(err, "write header")
	}
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(name, 1, 1, bold)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := row
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return nil, errors.Wrapf(err, "write row %d", i+2)
		}
	}
	buf, err := f.WriteToBuffer()
	return buf, errors.Wrap(err, "write xlsx")
}

func (s *ExportService) clock(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.In(s.loc).Format("15:04:05")
}

func (s *ExportService) stamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.In(s.loc).Format(exportTimeLayout)
}

func workDuration(in, out *time.Time) string {
	if in == nil || out == nil || out.Before(*in) {
		return "-"
	}
	d := out.Sub(*in).Round(time.Minute)
	return fmt.Sprintf("%dj %dm", int(d.Hours()), int(d.Minutes())%60)
}

// AttendanceHistory writes one line per user per day.
func (s *ExportService) AttendanceHistory(ctx context.Context, f HistoryFilter) (*bytes.Buffer, error) {
	rows, err := s.attendance.History(ctx, f)
	if err != nil {
		return nil, err
	}
	days := PairByDay(rows)
	out := make([][]interface{}, 0, len(days))
	for i, d := range days {
		out = append(out, []interface{}{i + 1, d.Date, d.Name, s.clock(d.CheckIn), s.clock(d.CheckOut), workDuration(d.CheckIn, d.CheckOut)})
	}
	return writeSheet("Absensi", []interface{}{"No", "Tanggal", "Nama", "Check In", "Check Out", "Durasi"}, out)
}

// Loans writes the loans visible to viewer.
func (s *ExportService) Loans(ctx context.Context, viewer models.User, f LoanFilter) (*bytes.Buffer, error) {
	loans, err := s.loans.List(ctx, viewer, f)
	if err != nil {
		return nil, err
	}
	out := make([][]interface{}, 0, len(loans))
	for i := range loans {
		l := &loans[i]
		approver := "-"
		if l.Approver != nil {
			approver = l.Approver.Name
		}
		pinjam := l.TanggalPinjam
		out = append(out, []interface{}{
			i + 1, l.ItemCode(), l.ItemName(), l.ItemType(), l.BorrowerName(), l.Stok,
			s.stamp(&pinjam), s.stamp(l.TargetReturnDate), s.stamp(l.TanggalKembali),
			l.StatusText(), approver, l.Keterangan,
		})
	}
	header := []interface{}{
		"No", "Kode", "Barang", "Tipe", "Peminjam", "Jumlah",
		"Tanggal Pinjam", "Target Kembali", "Tanggal Kembali", "Status", "Disetujui Oleh", "Keterangan",
	}
	return writeSheet("Peminjaman", header, out)
}
