package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "reports@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "reports@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

type sent struct {
	addr string
	from string
	to   []string
	msg  string
}

func capture(svc *Service) *[]sent {
	var out []sent
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		out = append(out, sent{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return &out
}

func configured() *Service {
	return NewService(Config{Host: "smtp.example.com", Port: "2525", From: "reports@example.com", FromName: "Dossier"})
}

func TestSendExportReady(t *testing.T) {
	svc := configured()
	out := capture(svc)

	err := svc.SendExportReady([]string{"lead@example.com"}, ExportReadyData{
		CaseNumber:  "IR-20260314-ABCD",
		TargetName:  "Jane <Doe>",
		Format:      "pdf",
		Filename:    "Intelligence_Report_Jane__Doe__IR-20260314-ABCD.pdf",
		Pages:       3,
		DownloadURL: "https://files.example.com/r/1?sig=abc",
		ExpiresAt:   time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("SendExportReady: %v", err)
	}
	if len(*out) != 1 {
		t.Fatalf("sent %d messages, want 1", len(*out))
	}
	msg := (*out)[0]
	if msg.addr != "smtp.example.com:2525" || msg.from != "reports@example.com" {
		t.Errorf("unexpected envelope %q from %q", msg.addr, msg.from)
	}
	for _, want := range []string{
		"Subject: Report IR-20260314-ABCD is ready",
		"From: Dossier <reports@example.com>",
		"Jane &lt;Doe&gt;",
		"3 pages",
		"2026-03-15 09:00 UTC",
		"The PDF export of report IR-20260314-ABCD",
	} {
		if !strings.Contains(msg.msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendRejectsHeaderInjection(t *testing.T) {
	svc := configured()
	out := capture(svc)

	err := svc.SendHTMLEmail([]string{"a@example.com\r\nBcc: x@example.com"}, "hi", "t", "<p>h</p>")
	if err == nil {
		t.Fatal("expected error for CRLF in recipient")
	}

	if err := svc.SendHTMLEmail([]string{"a@example.com"}, "line\r\nBcc: x@example.com", "t", "<p>h</p>"); err != nil {
		t.Fatalf("SendHTMLEmail: %v", err)
	}
	if strings.Contains((*out)[0].msg, "\r\nBcc:") {
		t.Error("subject must not start a new header")
	}
}

func TestSendNotConfigured(t *testing.T) {
	svc := NewService(Config{})
	err := svc.SendExportReady([]string{"a@example.com"}, ExportReadyData{CaseNumber: "IR-1"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}

	var nilSvc *Service
	if nilSvc.IsConfigured() {
		t.Fatal("nil service must not be configured")
	}
}

func TestSendNoRecipients(t *testing.T) {
	svc := configured()
	capture(svc)
	if err := svc.SendHTMLEmail(nil, "s", "t", "h"); err == nil {
		t.Fatal("expected error without recipients")
	}
}
