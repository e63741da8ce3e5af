// mailer/mailer.go
package mailer

import (
	"strings"

	"gopkg.in/gomail.v2"
)

// Sink 外发通知通道。发送失败只报告给调用方，调用方自己决定下轮重试。
type Sink interface {
	Send(to, subject, body string) error
}

// SMTPMailer 经 SMTP 投递（office365 等）
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.Username,
	}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return m.dialer.DialAndSend(msg)
}

// RecipientAddress username 不带域名时补上配置的邮件域
func RecipientAddress(username, domain string) string {
	if domain == "" || strings.Contains(username, domain) {
		return username
	}
	return username + domain
}
