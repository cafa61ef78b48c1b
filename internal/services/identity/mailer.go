package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strings"
)

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to string, link string) error
}

// LogMailer writes reset links to the process log. It is the development
// default when no SMTP relay is configured.
type LogMailer struct {
	Logf func(format string, args ...any)
}

// SendPasswordReset logs the reset link for to.
func (m LogMailer) SendPasswordReset(ctx context.Context, to string, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logf := m.Logf
	if logf == nil {
		logf = log.Printf
	}
	logf("identity: password reset requested email=%s link=%s", to, link)
	return nil
}

// SMTPMailer sends reset links through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	Addr     string
	From     string
	Username string
	Password string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// SendPasswordReset sends a plain-text reset message to to.
func (m SMTPMailer) SendPasswordReset(ctx context.Context, to string, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := strings.TrimSpace(m.Addr)
	from := strings.TrimSpace(m.From)
	if addr == "" || from == "" {
		return errors.New("smtp address and sender are required")
	}
	var auth smtp.Auth
	if m.Username != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("parse smtp address: %w", err)
		}
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: Reset your Taskflow password",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		"Use the link below to choose a new password. It expires in one hour.",
		"",
		link,
		"",
	}, "\r\n")
	send := m.send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(addr, auth, from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}
