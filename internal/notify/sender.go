package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"

	"registration-verifier/internal/models"
)

// Sender delivers the verification email triggered by an approval.
type Sender interface {
	SendVerificationEmail(ctx context.Context, reg models.Registration) error
}

// SMTPSender delivers through a plain SMTP relay.
type SMTPSender struct {
	addr      string
	from      string
	verifyURL string
}

func NewSMTPSender(addr, from, verifyURL string) *SMTPSender {
	return &SMTPSender{addr: addr, from: from, verifyURL: verifyURL}
}

func (s *SMTPSender) SendVerificationEmail(_ context.Context, reg models.Registration) error {
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Confirm your registration\r\n\r\n"+
		"Your registration has been approved. Confirm your email address:\r\n\r\n%s/%s\r\n",
		s.from, reg.Email, s.verifyURL, reg.ID)
	if err := smtp.SendMail(s.addr, nil, s.from, []string{reg.Email}, []byte(body)); err != nil {
		return fmt.Errorf("send verification email to %s: %w", reg.Email, err)
	}
	return nil
}

// LogSender records sends instead of delivering them; the dev default.
type LogSender struct{}

func (LogSender) SendVerificationEmail(_ context.Context, reg models.Registration) error {
	log.Printf("notify: verification email for registration %s -> %s", reg.ID, reg.Email)
	return nil
}
