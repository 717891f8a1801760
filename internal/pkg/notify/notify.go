package notify

import "context"

// Mail 一封待发送的通知邮件。
type Mail struct {
	To      string `json:"to"`      // 收件人
	Subject string `json:"subject"` // 主题
	Body    string `json:"body"`    // HTML 正文
	Kind    string `json:"kind"`    // 邮件类型（用于指标），如 "donation_receipt"
}

// Notifier 定义通知接口。
//
// 实现必须把失败收敛为返回值，不允许 panic 泄漏到调用方；
// 单次调用的阻塞时间应当有界。
type Notifier interface {
	// Send 发送一封通知邮件。
	Send(ctx context.Context, mail *Mail) error
}
