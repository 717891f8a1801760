package mailqueue

import (
	"time"

	"github.com/ayushllcode/ngohub/internal/pkg/notify"
)

// MailMessage 表示邮件队列中的消息结构。
//
// 用于在 Redis Streams 中传递待发送的通知邮件。
type MailMessage struct {
	Mail      *notify.Mail `json:"mail"`      // 邮件内容
	Timestamp time.Time    `json:"timestamp"` // 消息创建时间
	Retry     int          `json:"retry"`     // 重试次数
	Source    string       `json:"source"`    // 消息来源: "donation", "campaign", "auth"
}

// NewMailMessage 创建一条待投递的邮件消息。
func NewMailMessage(mail *notify.Mail, source string) *MailMessage {
	return &MailMessage{
		Mail:      mail,
		Timestamp: time.Now(),
		Retry:     0,
		Source:    source,
	}
}
