// Package mailer sends the optional completion email.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CompletionSubject is the subject line of the completion email.
const CompletionSubject = "Your bank statement is ready"

// Sender sends transactional emails.
type Sender interface {
	SendCompletionEmail(ctx context.Context, address, name, filename, documentID string) error
}

// NopSender accepts every email and sends nothing.
type NopSender struct{}

func (NopSender) SendCompletionEmail(context.Context, string, string, string, string) error {
	return nil
}

// SMTPConfig configures an SMTPSender.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	FrontendURL string

	// InsecureSkipTLS disables STARTTLS. Only local test servers use it.
	InsecureSkipTLS bool
}

// SMTPSender delivers mail through an SMTP relay with STARTTLS and PLAIN auth.
type SMTPSender struct {
	cfg     SMTPConfig
	timeout time.Duration
}

// NewSMTPSender validates cfg and returns a sender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" {
		return nil, errors.New("NewSMTPSender: host, port and from address are required")
	}
	return &SMTPSender{cfg: cfg, timeout: 30 * time.Second}, nil
}

// SendCompletionEmail tells the user their document is ready for review.
func (s *SMTPSender) SendCompletionEmail(ctx context.Context, address, name, filename, documentID string) error {
	if address == "" {
		return errors.New("SendCompletionEmail: empty recipient address")
	}

	msg, err := s.buildCompletionMessage(address, name, filename, documentID)
	if err != nil {
		return fmt.Errorf("SendCompletionEmail: build message: %w", err)
	}
	if err := s.send(ctx, address, msg); err != nil {
		return fmt.Errorf("SendCompletionEmail: %w", err)
	}
	return nil
}

func (s *SMTPSender) send(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if !s.cfg.InsecureSkipTLS {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return c.Quit()
}

var completionHTML = template.Must(template.New("completion").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Hi {{.Name}},</h2>
  <p>Your bank statement <strong>{{.Filename}}</strong> has been processed and is ready for review.</p>
  <p><a href="{{.ReviewURL}}" style="background:#2563eb;color:#fff;padding:10px 18px;border-radius:4px;text-decoration:none;">Review transactions</a></p>
  <p>If the button does not work, open this link: {{.ReviewURL}}</p>
  <p>The FinTrack team</p>
</body>
</html>`))

type completionData struct {
	Name      string
	Filename  string
	ReviewURL string
}

func (s *SMTPSender) reviewURL(documentID string) string {
	return strings.TrimRight(s.cfg.FrontendURL, "/") + "/documents/" + documentID
}

// buildCompletionMessage renders a multipart/alternative message with a
// plain text part followed by an HTML part.
func (s *SMTPSender) buildCompletionMessage(to, name, filename, documentID string) ([]byte, error) {
	if name == "" {
		name = "there"
	}
	data := completionData{Name: name, Filename: filename, ReviewURL: s.reviewURL(documentID)}

	var html bytes.Buffer
	if err := completionHTML.Execute(&html, data); err != nil {
		return nil, err
	}
	text := fmt.Sprintf("Hi %s,\n\nYour bank statement %s has been processed and is ready for review.\n\nReview it here: %s\n\nThe FinTrack team\n",
		data.Name, data.Filename, data.ReviewURL)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: FinTrack <%s>\r\n", s.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", CompletionSubject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", uuid.New().String(), s.cfg.Host)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	for _, part := range []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", text},
		{"text/html; charset=UTF-8", html.String()},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(part.content)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}
