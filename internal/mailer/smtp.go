package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/fruitsmith-checkout/internal/domain/notify"
)

// SMTPConfig configures the SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

var _ notify.Sender = (*SMTPSender)(nil)

// SMTPSender delivers mail through an SMTP relay, upgrading to TLS when the
// server offers STARTTLS.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender validates cfg and creates a sender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, errors.Wrapf(err, "parse from address %q", cfg.From)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send delivers msg. The context deadline bounds the whole SMTP session.
func (s *SMTPSender) Send(ctx context.Context, msg notify.Message) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "handshake")
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return errors.Wrap(err, "starttls")
		}
	}
	if s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return errors.Wrap(err, "auth")
		}
	}

	from, _ := mail.ParseAddress(s.cfg.From)
	if err := c.Mail(from.Address); err != nil {
		return errors.Wrap(err, "mail from")
	}
	if err := c.Rcpt(msg.To); err != nil {
		return errors.Wrap(err, "rcpt to")
	}

	w, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "data")
	}
	if _, err := w.Write(s.compose(msg, time.Now())); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "write body")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "close body")
	}
	return c.Quit()
}

// compose renders msg as an RFC 5322 message with an HTML body.
func (s *SMTPSender) compose(msg notify.Message, now time.Time) []byte {
	from := mail.Address{Name: s.cfg.FromName, Address: s.fromAddress()}
	to := mail.Address{Name: msg.ToName, Address: msg.To}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return b.Bytes()
}

func (s *SMTPSender) fromAddress() string {
	if a, err := mail.ParseAddress(s.cfg.From); err == nil {
		return a.Address
	}
	return s.cfg.From
}

var _ notify.Sender = LogSender{}

// LogSender only logs messages. Used when no SMTP relay is configured.
type LogSender struct{}

// Send logs msg metadata.
func (LogSender) Send(ctx context.Context, msg notify.Message) error {
	zctx.From(ctx).Info("Email delivery disabled, message dropped",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}
