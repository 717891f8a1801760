package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ayushllcode/ngohub/internal/config"
	"github.com/ayushllcode/ngohub/internal/pkg/metrics"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 实现邮件通知。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// Send 通过 SMTP 发送邮件。
//
// SMTP 未配置或收件人为空时直接跳过并记录，不视为错误。
func (n *EmailNotifier) Send(ctx context.Context, mail *Mail) error {
	if mail == nil {
		return fmt.Errorf("mail is nil")
	}
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip notification", slog.String("kind", mail.Kind))
		return nil
	}
	if strings.TrimSpace(mail.To) == "" {
		n.logger.Warn("email recipient empty, skip notification", slog.String("kind", mail.Kind))
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", mail.To)
	m.SetHeader("Subject", mail.Subject)
	m.SetBody("text/html", mail.Body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		if metrics.EmailSentTotal != nil {
			metrics.EmailSentTotal.WithLabelValues(mail.Kind, "error").Inc()
		}
		return fmt.Errorf("send email: %w", err)
	}

	if metrics.EmailSentTotal != nil {
		metrics.EmailSentTotal.WithLabelValues(mail.Kind, "ok").Inc()
	}
	n.logger.Info("email notification sent",
		slog.String("to", mail.To),
		slog.String("kind", mail.Kind))
	return nil
}

// NewWelcomeMail 注册成功的欢迎邮件。
func NewWelcomeMail(to string, name string) *Mail {
	return &Mail{
		To:      to,
		Subject: "Welcome to NGOHub!",
		Kind:    "welcome",
		Body: fmt.Sprintf(`<h1>Welcome %s!</h1>
<p>Thank you for joining NGOHub. Start making a difference today!</p>`, name),
	}
}

// NewCampaignCreatedMail 项目提交成功的确认邮件。
func NewCampaignCreatedMail(to string, title string) *Mail {
	return &Mail{
		To:      to,
		Subject: "Campaign Created Successfully",
		Kind:    "campaign_created",
		Body: fmt.Sprintf(`<h1>Your campaign "%s" has been submitted!</h1>
<p>Our team will review and approve your campaign within 24-48 hours.</p>`, title),
	}
}

// NewDonationReceiptMail 捐款人的支付成功回执。
func NewDonationReceiptMail(to string, amount float64, campaignTitle string, transactionID string) *Mail {
	return &Mail{
		To:      to,
		Subject: "Donation Confirmation - NGOHub",
		Kind:    "donation_receipt",
		Body: fmt.Sprintf(`<h1>Thank you for your donation!</h1>
<p>Your donation of ₹%s to "%s" has been processed successfully.</p>
<p>Transaction ID: %s</p>`, formatINR(amount), campaignTitle, transactionID),
	}
}

// NewCreatorAlertMail 通知发起人收到新捐款。
func NewCreatorAlertMail(to string, campaignTitle string, amount float64, donorName string) *Mail {
	return &Mail{
		To:      to,
		Subject: "New Donation Received!",
		Kind:    "creator_alert",
		Body: fmt.Sprintf(`<h1>Great news!</h1>
<p>Your campaign "%s" just received a donation of ₹%s!</p>
<p>Donor: %s</p>`, campaignTitle, formatINR(amount), donorName),
	}
}

// NewStatusUpdateMail 项目状态变更通知。
func NewStatusUpdateMail(to string, campaignTitle string, status string) *Mail {
	subject := "Campaign Status Updated"
	extra := ""
	if status == "active" {
		subject = "Campaign Approved"
		extra = "\n<p>Your campaign is now live and accepting donations!</p>"
	}
	return &Mail{
		To:      to,
		Subject: subject,
		Kind:    "status_update",
		Body: fmt.Sprintf(`<h1>Campaign Status Update</h1>
<p>Your campaign "%s" status has been updated to: %s</p>%s`, campaignTitle, status, extra),
	}
}

// formatINR 给金额加千分位分隔符，小数部分原样保留。
func formatINR(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	if v != float64(int64(v)) {
		s = fmt.Sprintf("%.2f", v)
	}
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i:]
	}
	n := len(intPart)
	if n <= 3 {
		return intPart + fracPart
	}
	out := make([]byte, 0, n+n/3)
	for i := 0; i < n; i++ {
		out = append(out, intPart[i])
		if (n-i-1)%3 == 0 && i != n-1 {
			out = append(out, ',')
		}
	}
	return string(out) + fracPart
}
