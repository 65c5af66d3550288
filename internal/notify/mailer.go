// Package notify 邮件发送：配置了 SMTP 时走 SMTP，否则只记录日志
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"ProgressSync/internal/config"
	"ProgressSync/internal/interfaces"

	"github.com/sirupsen/logrus"
)

const dialTimeout = 10 * time.Second

// New 按配置选择实现；Host 为空时返回 LogMailer
func New(cfg *config.SMTPConfig, logger *logrus.Logger) interfaces.Mailer {
	if cfg.Host == "" {
		logger.Warn("未配置SMTP，提醒邮件只写日志")
		return NewLogMailer(logger)
	}
	return NewSMTPMailer(cfg)
}

// SMTPMailer 通过 SMTP 发送 HTML 邮件（465 直连 TLS，其余端口 STARTTLS）
type SMTPMailer struct {
	host     string
	port     int
	user     string
	password string
	from     string
}

// NewSMTPMailer 创建 SMTP 发送器
func NewSMTPMailer(cfg *config.SMTPConfig) *SMTPMailer {
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	return &SMTPMailer{
		host:     cfg.Host,
		port:     cfg.Port,
		user:     cfg.User,
		password: cfg.Password,
		from:     from,
	}
}

// Send 发送一封 HTML 邮件
func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	if len(to) == 0 {
		return errors.New("收件人为空")
	}
	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	client, err := m.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if m.user != "" {
		if err := client.Auth(smtp.PlainAuth("", m.user, m.password, m.host)); err != nil {
			return fmt.Errorf("SMTP认证失败: %w", err)
		}
	}
	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("MAIL FROM失败: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s失败: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA失败: %w", err)
	}
	if _, err := w.Write(BuildMessage(m.from, to, subject, htmlBody)); err != nil {
		return fmt.Errorf("写入邮件内容失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("提交邮件失败: %w", err)
	}
	return client.Quit()
}

func (m *SMTPMailer) dial(ctx context.Context, addr string) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	tlsConfig := &tls.Config{ServerName: m.host, MinVersion: tls.VersionTLS12}

	if m.port == 465 {
		conn, err := (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("SMTP TLS连接失败: %w", err)
		}
		client, err := smtp.NewClient(conn, m.host)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("创建SMTP客户端失败: %w", err)
		}
		return client, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("SMTP连接失败: %w", err)
	}
	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("创建SMTP客户端失败: %w", err)
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("STARTTLS失败: %w", err)
		}
	}
	return client, nil
}

// BuildMessage 组装 RFC 5322 邮件
func BuildMessage(from string, to []string, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogMailer 只把邮件写进日志
type LogMailer struct {
	logger *logrus.Logger
}

// NewLogMailer 创建日志发送器
func NewLogMailer(logger *logrus.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send 记录一条日志
func (m *LogMailer) Send(_ context.Context, to []string, subject, htmlBody string) error {
	m.logger.WithFields(logrus.Fields{
		"to":      strings.Join(to, ","),
		"subject": subject,
		"bytes":   len(htmlBody),
	}).Info("提醒邮件（未配置SMTP，仅记录）")
	return nil
}
