package services

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/bestwork/mlm-system/config"
)

type EmailService struct {
	cfg *config.Config
}

func NewEmailService(cfg *config.Config) *EmailService {
	return &EmailService{cfg: cfg}
}

func (s *EmailService) SendEmail(to []string, subject string, body string) error {
	auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)

	msg := []byte("To: " + to[0] + "\r\n" +
		"From: " + s.cfg.SMTPFrom + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\r\n" +
		"\r\n" +
		body + "\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	tlsconfig := &tls.Config{
		ServerName: s.cfg.SMTPHost,
	}

	var client *smtp.Client
	if s.cfg.SMTPPort == 465 {
		// Implicit TLS.
		conn, err := tls.Dial("tcp", addr, tlsconfig)
		if err != nil {
			return fmt.Errorf("smtp tls dial failed: %w", err)
		}
		defer conn.Close()
		client, err = smtp.NewClient(conn, s.cfg.SMTPHost)
		if err != nil {
			return fmt.Errorf("smtp client creation failed: %w", err)
		}
	} else {
		// STARTTLS, usually port 587.
		c, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("smtp dial failed: %w", err)
		}
		client = c
		if err = client.StartTLS(tlsconfig); err != nil {
			client.Close()
			return fmt.Errorf("smtp STARTTLS failed: %w", err)
		}
	}
	defer client.Quit()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth failed: %w", err)
	}

	if err := client.Mail(s.cfg.SMTPFrom); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO failed: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("smtp message write failed: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("smtp DATA close failed: %w", err)
	}

	return nil
}

func (s *EmailService) GenerateEmailBody(templatePath string, data interface{}) (string, error) {
	t, err := template.ParseFiles(templatePath)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", templatePath, err)
	}

	var body bytes.Buffer
	if err := t.Execute(&body, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", templatePath, err)
	}

	return body.String(), nil
}

func (s *EmailService) SendWelcomeEmail(memberEmail, referralCode string) error {
	subject := "Welcome to BestWork!"
	data := struct {
		Email        string
		ReferralCode string
		ReferralLink string
	}{
		Email:        memberEmail,
		ReferralCode: referralCode,
		ReferralLink: fmt.Sprintf("%s/register?sponsor=%s", s.cfg.PublicURL, referralCode),
	}

	htmlBody, err := s.GenerateEmailBody("templates/emails/welcome_email.html", data)
	if err != nil {
		return fmt.Errorf("failed to render welcome email: %w", err)
	}
	return s.SendEmail([]string{memberEmail}, subject, htmlBody)
}

func (s *EmailService) SendPasswordResetEmail(memberEmail, resetToken string) error {
	subject := "Password reset for your BestWork account"
	data := struct {
		Email     string
		ResetLink string
	}{
		Email:     memberEmail,
		ResetLink: fmt.Sprintf("%s/reset-password?token=%s", s.cfg.PublicURL, resetToken),
	}

	htmlBody, err := s.GenerateEmailBody("templates/emails/password_reset_email.html", data)
	if err != nil {
		return fmt.Errorf("failed to render password reset email: %w", err)
	}
	return s.SendEmail([]string{memberEmail}, subject, htmlBody)
}

func (s *EmailService) SendPlacementConfirmedEmail(memberEmail, sponsorName, position string) error {
	subject := "Your network placement is confirmed"
	data := struct {
		SponsorName string
		Position    string
		NetworkLink string
	}{
		SponsorName: sponsorName,
		Position:    position,
		NetworkLink: fmt.Sprintf("%s/network", s.cfg.PublicURL),
	}

	htmlBody, err := s.GenerateEmailBody("templates/emails/placement_confirmed_email.html", data)
	if err != nil {
		return fmt.Errorf("failed to render placement email: %w", err)
	}
	return s.SendEmail([]string{memberEmail}, subject, htmlBody)
}

func (s *EmailService) SendOrderConfirmationEmail(memberEmail, orderNumber string, total float64) error {
	subject := fmt.Sprintf("Order %s received", orderNumber)
	data := struct {
		OrderNumber string
		Total       float64
		OrdersLink  string
	}{
		OrderNumber: orderNumber,
		Total:       total,
		OrdersLink:  fmt.Sprintf("%s/orders", s.cfg.PublicURL),
	}

	htmlBody, err := s.GenerateEmailBody("templates/emails/order_confirmation_email.html", data)
	if err != nil {
		return fmt.Errorf("failed to render order confirmation email: %w", err)
	}
	return s.SendEmail([]string{memberEmail}, subject, htmlBody)
}
