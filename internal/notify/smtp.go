// Package notify delivers claim notifications by e-mail.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Armour007/parcelclaims-backend/internal/config"
	"github.com/Armour007/parcelclaims-backend/internal/telemetry"
)

// ErrCircuitOpen is returned without dialing while the SMTP breaker is open.
var ErrCircuitOpen = errors.New("smtp circuit open")

// SendError is a failed delivery. The claim it concerns is already stored.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return "notification: " + e.Err.Error() }
func (e *SendError) Unwrap() error { return e.Err }

// Message is one outgoing mail.
type Message struct {
	To         []string
	Subject    string
	HTML       string
	Attachment *Attachment
}

// Mailer sends a Message.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// SMTPMailer talks to a relay over implicit TLS (port 465) or STARTTLS.
type SMTPMailer struct {
	cfg     config.SMTP
	breaker *telemetry.CircuitBreaker
	now     func() time.Time
}

func NewSMTPMailer(cfg config.SMTP, breaker *telemetry.CircuitBreaker) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPMailer{cfg: cfg, breaker: breaker, now: time.Now}
}

func (s *SMTPMailer) Send(ctx context.Context, m Message) error {
	if s.breaker != nil && !s.breaker.Allow() {
		return &SendError{Err: ErrCircuitOpen}
	}
	raw, err := buildMessage(s.cfg.From, m, s.now())
	if err != nil {
		return &SendError{Err: err}
	}
	start := time.Now()
	err = sendMailWithTimeout(s.cfg.Timeout, func() error { return s.deliver(ctx, m.To, raw) })
	telemetry.RecordExternalOp("smtp_send", time.Since(start), err == nil)
	if s.breaker != nil {
		s.breaker.Report(err)
	}
	if err != nil {
		return &SendError{Err: err}
	}
	return nil
}

func (s *SMTPMailer) deliver(ctx context.Context, to []string, raw []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	d := &net.Dialer{Timeout: s.cfg.Timeout}
	var conn net.Conn
	var err error
	if s.cfg.ImplicitTLS {
		conn, err = (&tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: s.cfg.Host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	_ = conn.SetDeadline(time.Now().Add(s.cfg.Timeout))

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()
	if !s.cfg.ImplicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return err
			}
		}
	}
	if s.cfg.User != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// sendMailWithTimeout runs fn and returns error if it doesn't complete within timeout.
// It does not forcibly cancel the underlying network dial; the connection deadline does that.
func sendMailWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return errors.New("smtp send timed out")
	}
}

// buildMessage renders m as a MIME message: an HTML part plus an optional base64 attachment.
func buildMessage(from string, m Message, now time.Time) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(htmlPart)
	if _, err := qp.Write([]byte(m.HTML)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}

	if a := m.Attachment; a != nil {
		name := mime.QEncoding.Encode("utf-8", a.FileName)
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {fmt.Sprintf("%s; name=%q", a.ContentType, name)},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", name)},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64Lines(part, a.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	domain := "localhost"
	if i := strings.LastIndexByte(from, '@'); i >= 0 {
		domain = strings.Trim(from[i+1:], "> ")
	}
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.BEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "Message-ID: <%s@%s>\r\n", uuid.NewString(), domain)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func writeBase64Lines(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 0 {
		n := 76
		if len(enc) < n {
			n = len(enc)
		}
		if _, err := w.Write([]byte(enc[:n] + "\r\n")); err != nil {
			return err
		}
		enc = enc[n:]
	}
	return nil
}

// LogMailer stands in when SMTP is not configured: it records what would have been sent.
type LogMailer struct {
	Log logrus.FieldLogger
}

func (l LogMailer) Send(_ context.Context, m Message) error {
	f := logrus.Fields{"subject": m.Subject, "recipients": len(m.To)}
	if m.Attachment != nil {
		f["attachment"] = m.Attachment.FileName
		f["attachment_bytes"] = len(m.Attachment.Data)
	}
	l.Log.WithFields(f).Warn("smtp not configured; notification not delivered")
	return nil
}
