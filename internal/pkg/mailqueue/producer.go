package mailqueue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ayushllcode/ngohub/internal/pkg/notify"

	"github.com/redis/go-redis/v9"
)

// Producer 邮件生产者，负责发布邮件消息到队列。
//
// 由 API 服务使用，将捐款回执、项目状态通知等邮件发布到 Redis Streams。
type Producer struct {
	queue  *MailQueue
	logger *slog.Logger
}

// NewProducer 创建一个新的邮件生产者。
//
// 参数:
//   - rdb: Redis 客户端
//   - logger: 日志记录器
//   - streamName: Stream 名称（可选，默认为 "ngohub:mail:queue"）
//
// 返回值:
//   - *Producer: 生产者实例
func NewProducer(rdb *redis.Client, logger *slog.Logger, streamName ...string) *Producer {
	stream := defaultStreamName
	if len(streamName) > 0 && streamName[0] != "" {
		stream = streamName[0]
	}

	return &Producer{
		queue:  NewMailQueue(rdb, logger, stream),
		logger: logger,
	}
}

// Submit 提交一封邮件到队列等待投递。
//
// 参数:
//   - ctx: 上下文
//   - mail: 邮件内容
//   - source: 邮件来源（"donation"、"campaign" 或 "auth"）
//
// 返回值:
//   - error: 提交失败时返回错误
func (p *Producer) Submit(ctx context.Context, mail *notify.Mail, source string) error {
	if mail == nil {
		return fmt.Errorf("mail is nil")
	}

	if source == "" {
		source = "unknown"
	}

	msg := NewMailMessage(mail, source)
	if err := p.queue.Publish(ctx, msg); err != nil {
		p.logger.Error("submit mail failed",
			slog.String("to", mail.To),
			slog.String("kind", mail.Kind),
			slog.String("error", err.Error()))
		return err
	}

	p.logger.Info("mail submitted",
		slog.String("to", mail.To),
		slog.String("kind", mail.Kind),
		slog.String("source", source))

	return nil
}

// QueueLength 获取当前队列长度。
func (p *Producer) QueueLength(ctx context.Context) (int64, error) {
	return p.queue.StreamInfo(ctx)
}
