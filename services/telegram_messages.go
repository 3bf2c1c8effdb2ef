package services

import (
	"fmt"
	"html"
	"strings"
	"time"

	"aslab_go/models"
	"aslab_go/utils"
)

const (
	ReminderMorning = "morning"
	ReminderEvening = "evening"
)

// Chat messages are HTML formatted; every user-supplied value is escaped.

func esc(s string) string { return html.EscapeString(s) }

func semesterText(s *int) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *s)
}

func piketDayText(d *string) string {
	if d == nil || *d == "" {
		return "-"
	}
	return utils.DayLabel(*d)
}

// PiketReminderMessage is sent the day before a user's piket.
func PiketReminderMessage(u models.User, kind string) string {
	emoji := "🌅"
	if kind == ReminderEvening {
		emoji = "🌙"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>Reminder Piket Aslab</b>\n\n", emoji)
	fmt.Fprintf(&b, "Halo <b>%s</b>!\n\n", esc(u.Name))
	fmt.Fprintf(&b, "📅 <b>Besok (%s)</b> adalah jadwal piket Anda.\n", piketDayText(u.PiketDay))
	b.WriteString("⏰ Waktu: Sesuai jadwal yang ditentukan\n")
	b.WriteString("📍 Lokasi: Laboratorium Asisten\n\n")
	if kind == ReminderEvening {
		b.WriteString("🌙 Reminder malam ini:\n")
		b.WriteString("• Persiapkan diri untuk besok\n")
		b.WriteString("• Pastikan alarm sudah diset\n")
		b.WriteString("• Istirahat yang cukup\n\n")
	} else {
		b.WriteString("🔔 Jangan lupa untuk:\n")
		b.WriteString("• Datang tepat waktu\n")
		b.WriteString("• Membawa perlengkapan yang diperlukan\n")
		b.WriteString("• Melakukan absensi masuk dan keluar\n\n")
	}
	b.WriteString("💡 <i>Pesan otomatis dari Sistem Absensi Aslab</i>")
	return b.String()
}

// CustomMessage wraps an admin message addressed to one user.
func CustomMessage(u models.User, subject, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📢 <b>%s</b>\n\n", esc(subject))
	fmt.Fprintf(&b, "Halo <b>%s</b>!\n\n", esc(u.Name))
	b.WriteString(esc(content))
	b.WriteString("\n\n💡 <i>Pesan dari Admin Sistem Absensi Aslab</i>")
	return b.String()
}

// WelcomeMessage confirms a freshly linked chat.
func WelcomeMessage(name string) string {
	var b strings.Builder
	b.WriteString("🎉 <b>Selamat! Telegram Berhasil Terhubung!</b>\n\n")
	fmt.Fprintf(&b, "Halo <b>%s</b>!\n\n", esc(name))
	b.WriteString("✅ Akun Telegram Anda sudah berhasil terhubung dengan <b>Sistem Absensi Aslab</b>.\n\n")
	b.WriteString("🔔 <b>Notifikasi Otomatis Aktif:</b>\n")
	b.WriteString("• Reminder piket setiap pagi jam 07:00 (H-1)\n")
	b.WriteString("• Reminder piket setiap malam jam 19:00 (H-1)\n")
	b.WriteString("• Notifikasi attendance (check-in/check-out)\n")
	b.WriteString("• Pengumuman penting dari admin\n\n")
	b.WriteString("ℹ️ <b>Command yang tersedia:</b>\n")
	b.WriteString("• /status - Cek status notifikasi Anda\n")
	b.WriteString("• /chatid - Lihat Chat ID Anda\n")
	b.WriteString("• /jadwal - Lihat jadwal piket Anda\n\n")
	b.WriteString("⚙️ Anda dapat mengatur notifikasi melalui dashboard sistem kapan saja.\n\n")
	b.WriteString("🤖 <i>Selamat bergabung dengan Sistem Absensi Aslab!</i>")
	return b.String()
}

// AttendanceMessage confirms a check-in or check-out.
func AttendanceMessage(u models.User, typ string, ts time.Time, loc *time.Location) string {
	local := ts.In(loc)
	emoji, typeText := "🟢", "Check-In"
	status := "Anda telah berhasil check-in ke sistem."
	extra := "📍 Lokasi: Laboratorium Asisten\n⏰ Jangan lupa untuk check-out sebelum pulang."
	if typ == models.AttendanceCheckOut {
		emoji, typeText = "🔴", "Check-Out"
		status = "Anda telah berhasil check-out dari sistem."
		extra = "🏠 Terima kasih atas dedikasi Anda hari ini!\n💼 Semoga harimu menyenangkan."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s Berhasil!</b>\n\n", emoji, typeText)
	fmt.Fprintf(&b, "Halo <b>%s</b>!\n\n", esc(u.Name))
	fmt.Fprintf(&b, "✅ %s\n\n", status)
	fmt.Fprintf(&b, "📅 <b>Tanggal:</b> %s\n", local.Format("02/01/2006"))
	fmt.Fprintf(&b, "⏰ <b>Waktu:</b> %s\n\n", local.Format("15:04"))
	b.WriteString(extra)
	b.WriteString("\n\n🤖 <i>Notifikasi otomatis dari Sistem Absensi Aslab</i>")
	return b.String()
}

// DailyReport is the present/absent summary for the admin chat.
type DailyReport struct {
	Date    time.Time
	Present int
	Absent  int
	Absents []models.User
}

func DailyReportMessage(r DailyReport) string {
	var b strings.Builder
	b.WriteString("📊 <b>Laporan Harian Absensi</b>\n\n")
	fmt.Fprintf(&b, "👥 <b>Total Aslab Hadir:</b> %d\n", r.Present)
	fmt.Fprintf(&b, "❌ <b>Total Aslab Tidak Hadir:</b> %d\n\n", r.Absent)
	fmt.Fprintf(&b, "📅 <b>Tanggal:</b> %s\n\n", r.Date.Format("02/01/2006"))
	b.WriteString("💡 <i>Pesan otomatis dari Sistem Absensi Aslab</i>")
	return b.String()
}

// AbsenceMessage lists aslabs who did not show up on their piket day.
func AbsenceMessage(absent []models.User) string {
	var b strings.Builder
	b.WriteString("🚨 <b>Notifikasi Ketidakhadiran Aslab</b>\n\n")
	b.WriteString("Berikut adalah daftar aslab yang tidak hadir hari ini:\n\n")
	for _, u := range absent {
		fmt.Fprintf(&b, "• %s (%s, Semester %s)\n", esc(u.Name), esc(u.Prodi), semesterText(u.Semester))
	}
	b.WriteString("\n💡 <i>Pesan otomatis dari Sistem Absensi Aslab</i>")
	return b.String()
}

// TestMessage is used by the admin test endpoint.
func TestMessage(now time.Time) string {
	var b strings.Builder
	b.WriteString("🧪 <b>Test Message</b>\n\n")
	b.WriteString("Ini adalah pesan test dari bot.\n")
	fmt.Fprintf(&b, "Waktu: %s\n\n", now.Format("2006-01-02 15:04:05"))
	b.WriteString("✅ Jika Anda menerima pesan ini, bot berfungsi dengan baik!")
	return b.String()
}

// BroadcastMessage wraps free text sent to every linked chat.
func BroadcastMessage(content string) string {
	return "📢 <b>Pengumuman</b>\n\n" + esc(content) + "\n\n💡 <i>Pesan dari Admin Sistem Absensi Aslab</i>"
}

func notLinkedMessage(chatID string, howTo bool) string {
	var b strings.Builder
	b.WriteString("❌ <b>Belum Terdaftar</b>\n\n")
	b.WriteString("Chat ID Anda belum terhubung dengan sistem absensi.\n\n")
	b.WriteString("🔗 Silakan hubungkan akun Telegram Anda melalui dashboard sistem absensi.\n\n")
	fmt.Fprintf(&b, "🆔 <b>Chat ID Anda:</b> <code>%s</code>", esc(chatID))
	if howTo {
		b.WriteString("\n\n📝 <b>Cara menghubungkan:</b>\n")
		b.WriteString("1. Login ke dashboard sistem\n")
		b.WriteString("2. Buka pengaturan Telegram\n")
		b.WriteString("3. Masukkan Chat ID di atas\n")
		b.WriteString("4. Simpan pengaturan")
	}
	return b.String()
}

func notifStatusText(on bool) string {
	if on {
		return "Aktif ✅"
	}
	return "Nonaktif ❌"
}

func startLinkedMessage(u models.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👋 <b>Halo %s!</b>\n\n", esc(u.Name))
	b.WriteString("✅ Akun Telegram Anda sudah terhubung dengan sistem.\n\n")
	fmt.Fprintf(&b, "🔔 Status notifikasi: %s\n", notifStatusText(u.TelegramNotifications))
	fmt.Fprintf(&b, "📅 Hari piket: %s\n\n", piketDayText(u.PiketDay))
	b.WriteString("ℹ️ <b>Command yang tersedia:</b>\n")
	b.WriteString("• /status - Cek status lengkap notifikasi\n")
	b.WriteString("• /chatid - Lihat Chat ID Anda\n")
	b.WriteString("• /jadwal - Lihat jadwal piket Anda\n\n")
	b.WriteString("🛠️ Kelola pengaturan melalui dashboard sistem.")
	return b.String()
}

func startGuestMessage(chatID, firstName string) string {
	var b strings.Builder
	b.WriteString("👋 <b>Selamat datang di Bot Absensi Aslab!</b>\n\n")
	fmt.Fprintf(&b, "Halo <b>%s</b>!\n\n", esc(firstName))
	b.WriteString("🤖 Bot ini mengirim reminder piket otomatis untuk asisten laboratorium.\n\n")
	fmt.Fprintf(&b, "🔗 <b>Chat ID Anda:</b> <code>%s</code>\n\n", esc(chatID))
	b.WriteString("📝 <b>Cara menghubungkan akun:</b>\n")
	b.WriteString("1. Login ke dashboard sistem absensi\n")
	b.WriteString("2. Buka menu pengaturan Telegram\n")
	b.WriteString("3. Masukkan Chat ID di atas\n")
	b.WriteString("4. Akun akan terhubung otomatis!\n\n")
	b.WriteString("ℹ️ <b>Command yang tersedia:</b>\n")
	b.WriteString("• /chatid - Dapatkan Chat ID Anda\n")
	b.WriteString("• /status - Cek status notifikasi\n")
	b.WriteString("• /jadwal - Lihat jadwal piket")
	return b.String()
}

func chatIDMessage(chatID string) string {
	return "🆔 <b>Chat ID Anda:</b>\n\n<code>" + esc(chatID) + "</code>\n\n" +
		"📋 Salin Chat ID ini dan masukkan ke dalam sistem absensi untuk mengaktifkan notifikasi Telegram."
}

func statusMessage(u models.User) string {
	var b strings.Builder
	b.WriteString("📊 <b>Status Notifikasi</b>\n\n")
	fmt.Fprintf(&b, "👤 <b>Nama:</b> %s\n", esc(u.Name))
	fmt.Fprintf(&b, "📧 <b>Email:</b> %s\n", esc(u.Email))
	fmt.Fprintf(&b, "📅 <b>Hari Piket:</b> %s\n", piketDayText(u.PiketDay))
	fmt.Fprintf(&b, "🔔 <b>Notifikasi:</b> %s\n\n", notifStatusText(u.TelegramNotifications))
	if u.TelegramNotifications {
		b.WriteString("⏰ Anda akan menerima reminder piket:\n")
		b.WriteString("• Setiap pagi jam 07:00 (H-1 piket)\n")
		b.WriteString("• Setiap malam jam 19:00 (H-1 piket)")
	} else {
		b.WriteString("🔕 Notifikasi saat ini dinonaktifkan.\nSilakan aktifkan melalui dashboard sistem.")
	}
	return b.String()
}

func jadwalMessage(u models.User) string {
	var b strings.Builder
	if u.PiketDay == nil || *u.PiketDay == "" {
		b.WriteString("📅 <b>Jadwal Piket</b>\n\n")
		fmt.Fprintf(&b, "👤 <b>Nama:</b> %s\n\n", esc(u.Name))
		b.WriteString("❌ <b>Anda belum memiliki jadwal piket</b>\n\n")
		b.WriteString("📞 Silakan hubungi admin untuk mengatur jadwal piket Anda melalui dashboard sistem.\n\n")
		b.WriteString("🌟 Jadwal yang tersedia:\n")
		for _, d := range models.PiketDays {
			fmt.Fprintf(&b, "• %s %s\n", utils.DayIcon(d), utils.DayLabel(d))
		}
		b.WriteString("\n💼 <i>Setelah jadwal ditetapkan, Anda akan mendapat reminder otomatis!</i>")
		return b.String()
	}
	b.WriteString("📅 <b>Jadwal Piket Anda</b>\n\n")
	fmt.Fprintf(&b, "👤 <b>Nama:</b> %s\n", esc(u.Name))
	fmt.Fprintf(&b, "📚 <b>Prodi:</b> %s\n", esc(u.Prodi))
	fmt.Fprintf(&b, "🎓 <b>Semester:</b> %s\n\n", semesterText(u.Semester))
	fmt.Fprintf(&b, "%s <b>Hari Piket:</b> %s\n\n", utils.DayIcon(*u.PiketDay), utils.DayLabel(*u.PiketDay))
	b.WriteString("⏰ <b>Waktu:</b> Sesuai jadwal yang ditentukan\n")
	b.WriteString("📍 <b>Lokasi:</b> Laboratorium Asisten\n\n")
	b.WriteString("📋 <b>Tugas Piket:</b>\n")
	b.WriteString("• Menjaga kebersihan laboratorium\n")
	b.WriteString("• Membantu mahasiswa yang membutuhkan\n")
	b.WriteString("• Melakukan absensi masuk dan keluar\n")
	b.WriteString("• Mengatur peralatan laboratorium\n\n")
	b.WriteString("🔔 <b>Reminder:</b> Anda akan mendapat notifikasi H-1 piket pada jam 07:00 dan 19:00\n\n")
	b.WriteString("💡 <i>Jangan lupa datang tepat waktu!</i>")
	return b.String()
}

func scheduleMessage(u models.User, colleagues []models.User) string {
	var b strings.Builder
	b.WriteString("📅 <b>Jadwal Mingguan Anda</b>\n\n")
	fmt.Fprintf(&b, "👤 <b>Nama:</b> %s\n", esc(u.Name))
	fmt.Fprintf(&b, "📚 <b>Prodi:</b> %s\n", esc(u.Prodi))
	fmt.Fprintf(&b, "🎓 <b>Semester:</b> %s\n\n", semesterText(u.Semester))
	fmt.Fprintf(&b, "🔔 <b>Hari Piket:</b> %s\n", piketDayText(u.PiketDay))
	b.WriteString("⏰ <b>Waktu:</b> Sesuai jadwal yang ditentukan\n")
	b.WriteString("📍 <b>Lokasi:</b> Laboratorium Asisten\n")
	if len(colleagues) > 0 {
		b.WriteString("\n👥 <b>Rekan piket:</b>\n")
		for _, c := range colleagues {
			fmt.Fprintf(&b, "• %s\n", esc(c.Name))
		}
	}
	b.WriteString("\n💡 <i>Jangan lupa untuk selalu hadir tepat waktu!</i>")
	return b.String()
}

func helpMessage() string {
	var b strings.Builder
	b.WriteString("ℹ️ <b>Daftar Command</b>\n\n")
	b.WriteString("• /start - Informasi bot dan Chat ID\n")
	b.WriteString("• /chatid - Dapatkan Chat ID Anda\n")
	b.WriteString("• /status - Cek status notifikasi\n")
	b.WriteString("• /jadwal - Lihat jadwal piket Anda\n")
	b.WriteString("• /feedback - Kirim feedback ke admin\n")
	b.WriteString("• /schedule - Lihat jadwal mingguan\n\n")
	b.WriteString("💡 <i>Gunakan command sesuai kebutuhan Anda!</i>")
	return b.String()
}

func defaultMessage(chatID, firstName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👋 Halo <b>%s</b>!\n\n", esc(firstName))
	b.WriteString("🤖 Saya adalah bot untuk reminder piket aslab.\n\n")
	b.WriteString("ℹ️ <b>Command yang tersedia:</b>\n")
	b.WriteString("• /start - Informasi bot dan Chat ID\n")
	b.WriteString("• /chatid - Dapatkan Chat ID Anda\n")
	b.WriteString("• /status - Cek status notifikasi\n")
	b.WriteString("• /jadwal - Lihat jadwal piket Anda\n")
	b.WriteString("• /piket - Lihat jadwal piket Anda\n\n")
	fmt.Fprintf(&b, "🆔 <b>Chat ID Anda:</b> <code>%s</code>", esc(chatID))
	return b.String()
}

func statusAllMessage(users []models.User) string {
	var b strings.Builder
	b.WriteString("📊 <b>Status Semua Aslab</b>\n\n")
	for _, u := range users {
		linked := "belum terhubung"
		if u.TelegramChatID != nil && *u.TelegramChatID != "" {
			linked = notifStatusText(u.TelegramNotifications)
		}
		fmt.Fprintf(&b, "• %s (%s, Semester %s): %s\n", esc(u.Name), esc(u.Prodi), semesterText(u.Semester), linked)
	}
	return b.String()
}

const (
	msgForbiddenCommand = "🚫 Anda tidak memiliki izin untuk menggunakan perintah ini."
	msgFeedbackPrompt   = "📝 Silakan kirimkan feedback Anda setelah perintah ini.\nContoh: <code>/feedback Lampu lab mati</code>"
	msgFeedbackThanks   = "✅ <b>Feedback Anda telah diterima!</b>\n\nTerima kasih atas masukan Anda. Admin akan meninjau feedback ini segera."
	msgBroadcastUsage   = "📢 Format: <code>/broadcast pesan</code>"
)
