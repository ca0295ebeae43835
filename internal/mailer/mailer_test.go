package mailer

import (
	"context"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"
)

// fakeSMTP accepts one session and returns the DATA payload on the channel.
func fakeSMTP(t *testing.T) (host string, port int, got <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 fake ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch cmd {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 fake")
			case "MAIL", "RCPT":
				_ = tp.PrintfLine("250 OK")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				out <- string(data)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 unsupported")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, out
}

func TestNewSMTPSender_Validation(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com"}); err == nil {
		t.Error("NewSMTPSender() error = nil, want missing port/from error")
	}
	if _, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"}); err != nil {
		t.Errorf("NewSMTPSender() error = %v", err)
	}
}

func TestBuildCompletionMessage(t *testing.T) {
	s, _ := NewSMTPSender(SMTPConfig{
		Host:        "smtp.example.com",
		Port:        587,
		From:        "noreply@example.com",
		FrontendURL: "https://app.example.com/",
	})

	msg, err := s.buildCompletionMessage("jane@example.com", "Jane", "jan.pdf", "doc-1")
	if err != nil {
		t.Fatalf("buildCompletionMessage() error = %v", err)
	}
	text := string(msg)

	for _, want := range []string{
		"Subject: " + CompletionSubject,
		"To: jane@example.com",
		"From: FinTrack <noreply@example.com>",
		"multipart/alternative",
		"text/plain",
		"text/html",
		"https://app.example.com/documents/doc-1",
		"jan.pdf",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendCompletionEmail(t *testing.T) {
	host, port, got := fakeSMTP(t)
	s, err := NewSMTPSender(SMTPConfig{
		Host:            host,
		Port:            port,
		From:            "noreply@example.com",
		FrontendURL:     "https://app.example.com",
		InsecureSkipTLS: true,
	})
	if err != nil {
		t.Fatalf("NewSMTPSender() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.SendCompletionEmail(ctx, "jane@example.com", "Jane", "jan.pdf", "doc-1"); err != nil {
		t.Fatalf("SendCompletionEmail() error = %v", err)
	}

	select {
	case data := <-got:
		if !strings.Contains(data, "Subject: "+CompletionSubject) {
			t.Errorf("delivered message lacks subject:\n%s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fake server received no message")
	}
}

func TestSendCompletionEmail_Unreachable(t *testing.T) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s, _ := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: port, From: "noreply@example.com", InsecureSkipTLS: true})
	err := s.SendCompletionEmail(context.Background(), "jane@example.com", "Jane", "jan.pdf", "doc-1")
	if err == nil {
		t.Fatal("SendCompletionEmail() error = nil, want dial failure")
	}
	if !strings.Contains(err.Error(), strconv.Itoa(port)) {
		t.Errorf("error = %v, want it to name the address", err)
	}
}

func TestNopSender(t *testing.T) {
	var s Sender = NopSender{}
	if err := s.SendCompletionEmail(context.Background(), "a@b.c", "A", "f.pdf", "d"); err != nil {
		t.Errorf("NopSender error = %v", err)
	}
}
