package service

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"time"

	"github.com/freedocau/freedoc-api/config"
)

// Mailer delivers transactional email. The SMTP implementation is used in
// production; LogMailer serves development and tests.
type Mailer interface {
	SendOTP(toEmail, code string, ttl time.Duration) error
	SendConsultationUpdate(toEmail, subject, body string) error
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	host string
	port uint16
	user string
	pass string
	from string
}

// NewSMTPMailer builds a mailer from SMTP settings.
func NewSMTPMailer(host string, port uint16, user, pass, from string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, user: user, pass: pass, from: from}
}

func (m *SMTPMailer) send(toEmail, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}

	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", m.from),
		fmt.Sprintf("To: %s", toEmail),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, m.from, []string{toEmail}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}
	return nil
}

// SendOTP emails a verification code.
func (m *SMTPMailer) SendOTP(toEmail, code string, ttl time.Duration) error {
	body := fmt.Sprintf(
		"Your verification code is: %s\r\n\r\nThis code expires in %d minutes. If you did not request it, ignore this email.",
		code, int(ttl.Minutes()),
	)
	return m.send(toEmail, "Your verification code", body)
}

// SendConsultationUpdate emails a consultation status notification.
func (m *SMTPMailer) SendConsultationUpdate(toEmail, subject, body string) error {
	return m.send(toEmail, subject, body)
}

// LogMailer writes mail to the process log instead of sending it. Codes are
// never logged.
type LogMailer struct{}

func (LogMailer) SendOTP(toEmail, _ string, ttl time.Duration) error {
	log.Printf("[MAIL] OTP to %s (valid %s)", toEmail, ttl)
	return nil
}

func (LogMailer) SendConsultationUpdate(toEmail, subject, _ string) error {
	log.Printf("[MAIL] consultation update to %s: %s", toEmail, subject)
	return nil
}

// NewMailerFromConfig returns an SMTP mailer when the host is configured and
// the LogMailer otherwise (dev, test).
func NewMailerFromConfig(cfg *config.Config) Mailer {
	if cfg == nil || cfg.SMTPHost == "" || cfg.AppEnv == "test" {
		return LogMailer{}
	}
	return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
}
