package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s := NewSMTPSender("mailpit", "1025", "")
	s.now = func() time.Time { return time.Date(2030, 3, 11, 9, 0, 0, 0, time.UTC) }
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := s.Send(context.Background(), Message{To: "ana@example.com", Subject: "Réservation", Body: "line1\nline2"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "mailpit:1025" || gotFrom != "no-reply@salonbook.local" || len(gotTo) != 1 || gotTo[0] != "ana@example.com" {
		t.Fatalf("unexpected envelope %s %s %v", gotAddr, gotFrom, gotTo)
	}
	raw := string(gotMsg)
	for _, want := range []string{
		"To: ana@example.com\r\n",
		"Subject: =?utf-8?q?R=C3=A9servation?=\r\n",
		"Date: Mon, 11 Mar 2030 09:00:00 +0000\r\n",
		"@salonbook.local>\r\n",
		"line1\r\nline2\r\n",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestSMTPSenderRejectsHeaderInjection(t *testing.T) {
	s := NewSMTPSender("localhost", "25", "a@b.c")
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send should not be called")
		return nil
	}
	if err := s.Send(context.Background(), Message{To: "x@y.z\r\nBcc: evil@y.z"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSMTPSenderWrapsError(t *testing.T) {
	s := NewSMTPSender("localhost", "25", "a@b.c")
	boom := errors.New("connection refused")
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }
	if err := s.Send(context.Background(), Message{To: "x@y.z"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
