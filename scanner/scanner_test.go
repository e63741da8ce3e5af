package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"device_loan_tool/db"
	"device_loan_tool/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

// fakeSink 记录每次投递；failFor 里的收件人投递失败
type fakeSink struct {
	sent    []sentMail
	failFor map[string]bool
}

func (f *fakeSink) Send(to, subject, body string) error {
	if f.failFor[to] {
		return fmt.Errorf("smtp refused %s", to)
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func newTestRepo(t *testing.T) *db.Repo {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db.NewRepo(conn)
}

// loanAt 在固定时刻 T 把设备借给 username
func loanAt(t *testing.T, r *db.Repo, identifier, serial, username string, at time.Time) *models.Device {
	t.Helper()
	d := &models.Device{Identifier: identifier, SerialNumber: serial}
	if err := r.CreateDevice(context.Background(), d); err != nil {
		t.Fatalf("create device: %v", err)
	}
	saved := r.Now
	r.Now = func() time.Time { return at }
	defer func() { r.Now = saved }()
	loaned, err := r.LoanDevice(context.Background(), d.ID, username)
	if err != nil {
		t.Fatalf("loan: %v", err)
	}
	return loaned
}

func newTestScanner(r *db.Repo, sink *fakeSink, now time.Time) *Scanner {
	s := New(r, sink, "@example.org")
	s.Now = func() time.Time { return now }
	return s
}

var loanTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestScanBeforeThresholdDoesNothing(t *testing.T) {
	r := newTestRepo(t)
	sink := &fakeSink{}
	loanAt(t, r, "1", "SN-1", "alice", loanTime)

	s := newTestScanner(r, sink, loanTime.Add(23*time.Hour))
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sink.sent) != 0 {
		t.Fatalf("sent %d mails at T+23h, want 0", len(sink.sent))
	}
}

func TestScanAfterThresholdNotifiesOnce(t *testing.T) {
	r := newTestRepo(t)
	sink := &fakeSink{}
	d := loanAt(t, r, "1", "SN-1", "alice", loanTime)

	s := newTestScanner(r, sink, loanTime.Add(25*time.Hour))
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("sent %d mails at T+25h, want 1", len(sink.sent))
	}
	if sink.sent[0].To != "alice@example.org" {
		t.Errorf("recipient = %q, want alice@example.org", sink.sent[0].To)
	}
	if !strings.Contains(sink.sent[0].Body, "ID: 1") {
		t.Errorf("body %q does not mention device identifier", sink.sent[0].Body)
	}

	got, _ := r.FindDeviceByID(context.Background(), d.ID)
	if !got.EmailSent {
		t.Error("email_sent must be true after successful delivery")
	}

	// 第二轮不重发
	s.Now = func() time.Time { return loanTime.Add(26 * time.Hour) }
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("sent %d mails after second scan, want still 1", len(sink.sent))
	}
}

func TestScanGroupsDevicesPerUser(t *testing.T) {
	r := newTestRepo(t)
	sink := &fakeSink{}
	loanAt(t, r, "10", "SN-10", "alice", loanTime)
	loanAt(t, r, "2", "SN-2", "alice", loanTime)

	s := newTestScanner(r, sink, loanTime.Add(25*time.Hour))
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("sent %d mails, want 1 consolidated mail", len(sink.sent))
	}
	// 两个编号都在，且按数字序
	if !strings.Contains(sink.sent[0].Body, "ID: 2, 10") {
		t.Errorf("body %q should list both identifiers in numeric order", sink.sent[0].Body)
	}
}

func TestScanDeliveryFailureRetriedNextCycle(t *testing.T) {
	r := newTestRepo(t)
	sink := &fakeSink{failFor: map[string]bool{"alice@example.org": true}}
	da := loanAt(t, r, "1", "SN-1", "alice", loanTime)
	dbob := loanAt(t, r, "2", "SN-2", "bob", loanTime)

	s := newTestScanner(r, sink, loanTime.Add(25*time.Hour))
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}

	// alice 失败不挡 bob
	if len(sink.sent) != 1 || sink.sent[0].To != "bob@example.org" {
		t.Fatalf("sent = %+v, want exactly bob's mail", sink.sent)
	}
	gotA, _ := r.FindDeviceByID(context.Background(), da.ID)
	if gotA.EmailSent {
		t.Error("failed group must keep email_sent=false")
	}
	gotB, _ := r.FindDeviceByID(context.Background(), dbob.ID)
	if !gotB.EmailSent {
		t.Error("bob's device must be marked after successful delivery")
	}

	// 下一轮恢复后 alice 补发
	sink.failFor = nil
	s.Now = func() time.Time { return loanTime.Add(26 * time.Hour) }
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if len(sink.sent) != 2 || sink.sent[1].To != "alice@example.org" {
		t.Fatalf("sent = %+v, want alice retried", sink.sent)
	}
}

func TestScanSkipsGroupWithMissingUser(t *testing.T) {
	r := newTestRepo(t)
	sink := &fakeSink{}
	d := loanAt(t, r, "1", "SN-1", "alice", loanTime)

	// 直接删掉用户行，制造悬空引用（绕过会置空引用的正常删除路径）
	if err := r.DB.Exec("DELETE FROM dlt_users WHERE id = ?", *d.UserID).Error; err != nil {
		t.Fatalf("delete user row: %v", err)
	}

	s := newTestScanner(r, sink, loanTime.Add(25*time.Hour))
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("scan must not fail on a missing user: %v", err)
	}
	if len(sink.sent) != 0 {
		t.Fatalf("sent %d mails, want 0", len(sink.sent))
	}
}

func TestRecipientKeepsExistingDomain(t *testing.T) {
	r := newTestRepo(t)
	sink := &fakeSink{}
	loanAt(t, r, "1", "SN-1", "carol@example.org", loanTime)

	s := newTestScanner(r, sink, loanTime.Add(25*time.Hour))
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sink.sent) != 1 || sink.sent[0].To != "carol@example.org" {
		t.Fatalf("sent = %+v, want carol@example.org without doubled domain", sink.sent)
	}
}
