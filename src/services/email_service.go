package services

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/welfarefund/src/config"
	"github.com/username/welfarefund/src/logger"
)

const emailSendTimeout = 20 * time.Second

type EmailService interface {
	SendVerificationEmail(toEmail, username, token string) error
	SendPasswordResetEmail(toEmail, username, token string) error
	SendNotificationEmail(toEmail, name, subject, body string) error
}

// emailLinks carries the frontend links and token lifetimes every provider needs.
type emailLinks struct {
	senderName               string
	verificationEmailBaseURL string
	passwordResetBaseURL     string
	passwordResetExpiry      time.Duration
}

func linksFromConfig(cfg *config.AppConfig) emailLinks {
	return emailLinks{
		senderName:               cfg.SenderName,
		verificationEmailBaseURL: cfg.VerificationEmailBaseURL,
		passwordResetBaseURL:     cfg.PasswordResetBaseURL,
		passwordResetExpiry:      cfg.PasswordResetTokenExpiry,
	}
}

func NewEmailService(cfg *config.AppConfig) EmailService {
	if cfg == nil {
		logger.L.Error("Configuration is nil. Email service will default to mock.")
		return &MockEmailService{}
	}

	provider := strings.ToLower(cfg.EmailServiceProvider)
	logger.L.Info("Initializing email service", "provider", provider)
	links := linksFromConfig(cfg)

	switch provider {
	case "mailgun":
		if cfg.MailgunDomain == "" || cfg.MailgunPrivateAPIKey == "" || cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockEmailService.")
			return &MockEmailService{links: links}
		}
		mg := mailgun.NewMailgun(cfg.MailgunDomain, cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", cfg.MailgunDomain)
		return &MailgunEmailService{mg: mg, senderEmail: cfg.SenderEmail, links: links}
	case "smtp":
		if cfg.SMTPServer == "" || cfg.SMTPUser == "" || cfg.SMTPPassword == "" || cfg.SenderEmail == "" {
			logger.L.Warn("SMTP configuration incomplete. Falling back to MockEmailService.")
			return &MockEmailService{links: links}
		}
		return &SMTPEmailService{
			SMTPServer:   cfg.SMTPServer,
			SMTPPort:     cfg.SMTPPort,
			SMTPUser:     cfg.SMTPUser,
			SMTPPassword: cfg.SMTPPassword,
			SenderEmail:  cfg.SenderEmail,
			links:        links,
		}
	default:
		logger.L.Info("Defaulting to MockEmailService.")
		return &MockEmailService{links: links}
	}
}

// --- message bodies shared by all providers ---

type emailMessage struct {
	subject string
	text    string
	html    string
	tag     string
}

func (l emailLinks) fundName() string {
	if l.senderName == "" {
		return "Staff Welfare Fund"
	}
	return l.senderName
}

func (l emailLinks) verification(username, token string) emailMessage {
	link := fmt.Sprintf("%s?token=%s", l.verificationEmailBaseURL, token)
	return emailMessage{
		subject: fmt.Sprintf("Verify your email address for %s", l.fundName()),
		text: fmt.Sprintf(`Hi %s,

Welcome to %s! Please verify your email address by opening the link below:
%s

If you did not register, please ignore this email.

Thanks,
%s`, username, l.fundName(), link, l.fundName()),
		html: fmt.Sprintf(`<html><body style="font-family: Arial, sans-serif; line-height: 1.6;">
<p>Hi %s,</p>
<p>Welcome to %s! Please verify your email address:</p>
<p><a href="%s" target="_blank">Verify Email Address</a></p>
<p>If you did not register, please ignore this email.</p>
<p>Thanks,<br>%s</p>
</body></html>`, username, l.fundName(), link, l.fundName()),
		tag: "verification",
	}
}

func (l emailLinks) passwordReset(username, token string) emailMessage {
	link := fmt.Sprintf("%s?token=%s", l.passwordResetBaseURL, token)
	expiry := l.passwordResetExpiry.String()
	return emailMessage{
		subject: fmt.Sprintf("Password reset request for %s", l.fundName()),
		text: fmt.Sprintf(`Hi %s,

You requested a password reset for your %s account.
Open the following link to choose a new password:
%s

If you did not request a reset, ignore this email. The link expires in %s.

Thanks,
%s`, username, l.fundName(), link, expiry, l.fundName()),
		html: fmt.Sprintf(`<html><body style="font-family: Arial, sans-serif; line-height: 1.6;">
<p>Hi %s,</p>
<p>You requested a password reset for your %s account.</p>
<p><a href="%s" target="_blank">Reset Password</a></p>
<p>If you did not request this reset, ignore this email. The link expires in %s.</p>
<p>Thanks,<br>%s</p>
</body></html>`, username, l.fundName(), link, expiry, l.fundName()),
		tag: "password-reset",
	}
}

func (l emailLinks) notification(name, subject, body string) emailMessage {
	return emailMessage{
		subject: subject,
		text:    fmt.Sprintf("Hi %s,\n\n%s\n\n%s", name, body, l.fundName()),
		tag:     "notification",
	}
}

// --- SMTP ---

type SMTPEmailService struct {
	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SenderEmail  string
	links        emailLinks
}

func (s *SMTPEmailService) send(toEmail string, msg emailMessage) error {
	headers := []string{
		"From: " + s.SenderEmail,
		"To: " + toEmail,
		"Subject: " + msg.subject,
		"MIME-version: 1.0",
		`Content-Type: text/plain; charset="UTF-8"`,
	}
	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + msg.text
	auth := smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	if err := smtp.SendMail(addr, auth, s.SenderEmail, []string{toEmail}, []byte(message)); err != nil {
		logger.L.Error("Failed to send email via SMTP", "error", err, "to", toEmail, "tag", msg.tag)
		return fmt.Errorf("failed to send %s email via SMTP: %w", msg.tag, err)
	}
	logger.L.Info("Email sent successfully via SMTP", "to", toEmail, "tag", msg.tag)
	return nil
}

func (s *SMTPEmailService) SendVerificationEmail(toEmail, username, token string) error {
	return s.send(toEmail, s.links.verification(username, token))
}

func (s *SMTPEmailService) SendPasswordResetEmail(toEmail, username, token string) error {
	return s.send(toEmail, s.links.passwordReset(username, token))
}

func (s *SMTPEmailService) SendNotificationEmail(toEmail, name, subject, body string) error {
	return s.send(toEmail, s.links.notification(name, subject, body))
}

// --- Mailgun ---

type MailgunEmailService struct {
	mg          mailgun.Mailgun
	senderEmail string
	links       emailLinks
}

func (s *MailgunEmailService) send(toEmail string, msg emailMessage) error {
	from := fmt.Sprintf("%s <%s>", s.links.fundName(), s.senderEmail)
	message := s.mg.NewMessage(from, msg.subject, msg.text, toEmail)
	if msg.html != "" {
		message.SetHtml(msg.html)
	}
	if msg.tag != "" {
		message.AddTag(msg.tag)
	}

	ctx, cancel := context.WithTimeout(context.Background(), emailSendTimeout)
	defer cancel()
	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send email via Mailgun", "error", err, "to", toEmail, "tag", msg.tag, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed for %s: %w. Response: %s", msg.tag, err, resp)
	}
	logger.L.Info("Email sent successfully via Mailgun", "to", toEmail, "tag", msg.tag, "id", id)
	return nil
}

func (s *MailgunEmailService) SendVerificationEmail(toEmail, username, token string) error {
	return s.send(toEmail, s.links.verification(username, token))
}

func (s *MailgunEmailService) SendPasswordResetEmail(toEmail, username, token string) error {
	return s.send(toEmail, s.links.passwordReset(username, token))
}

func (s *MailgunEmailService) SendNotificationEmail(toEmail, name, subject, body string) error {
	return s.send(toEmail, s.links.notification(name, subject, body))
}

// --- Mock ---

// SentEmail is a message captured by MockEmailService.
type SentEmail struct {
	To      string
	Subject string
	Body    string
	Tag     string
}

// MockEmailService logs messages instead of sending them and keeps them for inspection.
type MockEmailService struct {
	links emailLinks

	mu   sync.Mutex
	sent []SentEmail
}

func (m *MockEmailService) record(toEmail string, msg emailMessage) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentEmail{To: toEmail, Subject: msg.subject, Body: msg.text, Tag: msg.tag})
	m.mu.Unlock()
	logger.L.Info("MockEmailService: Would send email.", "to", toEmail, "subject", msg.subject, "tag", msg.tag)
	return nil
}

// Sent returns a copy of every message recorded so far.
func (m *MockEmailService) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.sent...)
}

func (m *MockEmailService) SendVerificationEmail(toEmail, username, token string) error {
	return m.record(toEmail, m.links.verification(username, token))
}

func (m *MockEmailService) SendPasswordResetEmail(toEmail, username, token string) error {
	return m.record(toEmail, m.links.passwordReset(username, token))
}

func (m *MockEmailService) SendNotificationEmail(toEmail, name, subject, body string) error {
	return m.record(toEmail, m.links.notification(name, subject, body))
}
