package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/novacrm/auth-service/internal/core/port"
	"github.com/novacrm/auth-service/internal/infra/config"
)

const implicitTLSPort = 465

// SMTPMailer renders OTP templates and delivers them over SMTP. Port 465 uses implicit TLS,
// any other port upgrades with STARTTLS when the server offers it.
type SMTPMailer struct {
	cfg  config.MailSettings
	now  func() time.Time
	send func(ctx context.Context, to string, msg []byte) error
}

func NewSMTPMailer(cfg config.MailSettings) *SMTPMailer {
	m := &SMTPMailer{cfg: cfg, now: time.Now}
	m.send = m.deliver
	return m
}

func (m *SMTPMailer) SendRegistrationOTP(ctx context.Context, msg port.OTPMessage) error {
	return m.sendOTP(ctx, registrationTemplate, "Verify your account - "+m.appName(), msg)
}

func (m *SMTPMailer) SendPasswordResetOTP(ctx context.Context, msg port.OTPMessage) error {
	return m.sendOTP(ctx, passwordResetTemplate, "Reset your password - "+m.appName(), msg)
}

func (m *SMTPMailer) sendOTP(ctx context.Context, tmpl, subject string, msg port.OTPMessage) error {
	body, err := renderOTP(tmpl, m.appName(), msg, m.now())
	if err != nil {
		return err
	}

	raw, err := m.compose(msg.Email, subject, body)
	if err != nil {
		return err
	}

	return m.send(ctx, msg.Email, raw)
}

func (m *SMTPMailer) appName() string {
	if m.cfg.FromName != "" {
		return m.cfg.FromName
	}
	return "NOVA CRM"
}

func (m *SMTPMailer) compose(to, subject, htmlBody string) ([]byte, error) {
	if _, err := mail.ParseAddress(to); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}

	from := (&mail.Address{Name: m.cfg.FromName, Address: m.cfg.From}).String()

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + m.now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)

	return []byte(b.String()), nil
}

func (m *SMTPMailer) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	var (
		conn net.Conn
		err  error
	)
	if m.cfg.Port == implicitTLSPort {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if m.cfg.Port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}

	if m.cfg.User != "" {
		if err := client.Auth(smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return client.Quit()
}

var _ port.NotificationSink = (*SMTPMailer)(nil)
