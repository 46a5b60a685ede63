package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/stoik/phish-catcher/internal/domain"
)

const (
	reportSubject = "Phishing Domain Analysis"
	reportBody    = "Attached you find a List of suspicious Domains"

	// RFC 2045 line length for base64 bodies
	base64LineLength = 76
)

// Config holds the SMTP settings of the report mailer
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// sendFunc matches smtp.SendMail
type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer implements ports.ReportMailer.
// smtp.SendMail upgrades to STARTTLS whenever the server offers it.
type SMTPMailer struct {
	cfg  Config
	send sendFunc
	now  func() time.Time
}

// NewSMTPMailer creates a mailer for cfg
func NewSMTPMailer(cfg Config) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

// SendReport mails the segment as a text attachment named after it
func (m *SMTPMailer) SendReport(ctx context.Context, segment domain.Segment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := m.buildMessage(segment)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, m.cfg.From, m.cfg.To, msg); err != nil {
		return fmt.Errorf("failed to send report %s: %w", segment.Name, err)
	}
	return nil
}

func (m *SMTPMailer) buildMessage(segment domain.Segment) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	headers := []string{
		"From: " + m.cfg.From,
		"To: " + strings.Join(m.cfg.To, ", "),
		"Subject: " + mime.QEncoding.Encode("utf-8", reportSubject),
		"Date: " + m.now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: " + mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": writer.Boundary()}),
	}
	var msg bytes.Buffer
	msg.WriteString(strings.Join(headers, "\r\n"))
	msg.WriteString("\r\n\r\n")

	text, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=utf-8"},
		"Content-Transfer-Encoding": {"7bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := text.Write([]byte(reportBody + "\r\n")); err != nil {
		return nil, err
	}

	filename := segment.Filename()
	attachment, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType("text/plain", map[string]string{"name": filename})},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": filename})},
	})
	if err != nil {
		return nil, err
	}
	if _, err := attachment.Write(wrapBase64(segmentBody(segment))); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	msg.Write(buf.Bytes())
	return msg.Bytes(), nil
}

// segmentBody renders the records one per line
func segmentBody(segment domain.Segment) []byte {
	var b strings.Builder
	for _, record := range segment.Records {
		b.WriteString(record)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func wrapBase64(data []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(data)
	var out bytes.Buffer
	for len(encoded) > base64LineLength {
		out.WriteString(encoded[:base64LineLength])
		out.WriteString("\r\n")
		encoded = encoded[base64LineLength:]
	}
	out.WriteString(encoded)
	out.WriteString("\r\n")
	return out.Bytes()
}
