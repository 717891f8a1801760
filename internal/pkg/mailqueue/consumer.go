package mailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ayushllcode/ngohub/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

// Consumer 从邮件队列中读取消息供投递循环处理。
//
// 读取顺序：先用 XAUTOCLAIM 认领其他消费者留下的超时 Pending 消息，
// 再用 XREADGROUP 拉取新消息。投递失败的消息按重试计数重入队，
// 超过上限后转入死信 Stream。
type Consumer struct {
	queue      *MailQueue
	logger     *slog.Logger
	group      string
	consumerID string

	blockTime   time.Duration
	batchSize   int64
	pendingIdle time.Duration
	claimCursor string
	dlqStream   string
	maxRetry    int
}

// FailureAction 标记一条失败消息的处置结果。
type FailureAction string

const (
	FailureActionNone  FailureAction = "none"
	FailureActionRetry FailureAction = "retry"
	FailureActionDLQ   FailureAction = "dlq"
)

// ConsumerOption 调整消费者行为。
type ConsumerOption func(*Consumer)

// WithBlockTime 设置读新消息时的阻塞时长。
func WithBlockTime(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.blockTime = d }
}

// WithBatchSize 设置单次读取上限。
func WithBatchSize(n int64) ConsumerOption {
	return func(c *Consumer) { c.batchSize = n }
}

// WithPendingIdle 设置认领 Pending 消息所需的最小空闲时长。
func WithPendingIdle(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.pendingIdle = d }
}

// WithDeadLetterStream 设置死信 Stream 名称。
func WithDeadLetterStream(stream string) ConsumerOption {
	return func(c *Consumer) { c.dlqStream = stream }
}

// WithMaxRetry 设置投递重试次数上限。
func WithMaxRetry(n int) ConsumerOption {
	return func(c *Consumer) { c.maxRetry = n }
}

// NewConsumer 创建邮件消费者并确保消费者组存在。
func NewConsumer(rdb *redis.Client, logger *slog.Logger, streamName string, groupName string, consumerID string, opts ...ConsumerOption) (*Consumer, error) {
	if groupName == "" {
		return nil, errors.New("group name is required")
	}
	if streamName == "" {
		streamName = defaultStreamName
	}
	if consumerID == "" {
		consumerID = fmt.Sprintf("mailer-%d", time.Now().UnixNano())
	}

	c := &Consumer{
		queue:       NewMailQueue(rdb, logger, streamName),
		logger:      logger,
		group:       groupName,
		consumerID:  consumerID,
		blockTime:   time.Second,
		batchSize:   10,
		pendingIdle: time.Minute,
		claimCursor: "0-0",
		dlqStream:   streamName + ":dlq",
		maxRetry:    3,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.queue.CreateConsumerGroup(context.Background(), groupName); err != nil {
		return nil, err
	}

	logger.Info("mail consumer ready",
		slog.String("stream", streamName),
		slog.String("group", groupName),
		slog.String("consumer_id", consumerID))
	return c, nil
}

// MessageWithID 携带 Stream 消息 ID 的邮件消息。
type MessageWithID struct {
	ID      string
	Message *MailMessage
}

// Read 返回下一批待投递的邮件，无消息时返回空切片。
func (c *Consumer) Read(ctx context.Context) ([]*MessageWithID, error) {
	claimed, nextCursor, err := c.queue.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.queue.streamName,
		Group:    c.group,
		Consumer: c.consumerID,
		MinIdle:  c.pendingIdle,
		Start:    c.claimCursor,
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("claim pending mail: %w", err)
	}
	if nextCursor != "" {
		c.claimCursor = nextCursor
	}
	if len(claimed) > 0 {
		metrics.MailQueueAutoClaimTotal.Add(float64(len(claimed)))
		return c.decode(ctx, claimed), nil
	}

	streams, err := c.queue.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumerID,
		Streams:  []string{c.queue.streamName, ">"},
		Count:    c.batchSize,
		Block:    c.blockTime,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mail stream: %w", err)
	}

	var raw []redis.XMessage
	for _, stream := range streams {
		raw = append(raw, stream.Messages...)
	}
	return c.decode(ctx, raw), nil
}

// decode 反序列化一批 Stream 消息，坏消息直接进死信并确认。
func (c *Consumer) decode(ctx context.Context, raw []redis.XMessage) []*MessageWithID {
	out := make([]*MessageWithID, 0, len(raw))
	for _, msg := range raw {
		data, _ := msg.Values[payloadField].(string)
		if data == "" {
			c.toDeadLetter(ctx, msg.ID, fmt.Sprintf("%v", msg.Values[payloadField]), errors.New("missing payload"))
			continue
		}
		mail, err := parseMessage(data)
		if err != nil {
			c.toDeadLetter(ctx, msg.ID, data, err)
			continue
		}
		out = append(out, &MessageWithID{ID: msg.ID, Message: mail})
	}
	return out
}

// Ack 确认一条消息投递完成。
func (c *Consumer) Ack(ctx context.Context, msgID string) error {
	if err := c.queue.rdb.XAck(ctx, c.queue.streamName, c.group, msgID).Err(); err != nil {
		return fmt.Errorf("ack mail %s: %w", msgID, err)
	}
	return nil
}

// HandleFailure 处理一条投递失败的消息。
//
// 未达重试上限时带着递增的重试计数重新入队；超过上限转入死信。
// 两条路径都会确认原消息，避免 Pending 列表无限增长。
func (c *Consumer) HandleFailure(ctx context.Context, msg *MessageWithID, cause error) (FailureAction, error) {
	if msg == nil || msg.Message == nil {
		return FailureActionNone, errors.New("message is nil")
	}

	msg.Message.Retry++
	if msg.Message.Retry > c.maxRetry {
		c.toDeadLetter(ctx, msg.ID, msg.Message, cause)
		return FailureActionDLQ, nil
	}

	if err := c.queue.Publish(ctx, msg.Message); err != nil {
		return FailureActionRetry, fmt.Errorf("requeue mail: %w", err)
	}
	return FailureActionRetry, c.Ack(ctx, msg.ID)
}

// toDeadLetter 把消息移入死信 Stream 并确认原消息。
func (c *Consumer) toDeadLetter(ctx context.Context, msgID string, payload interface{}, cause error) {
	if mail, ok := payload.(*MailMessage); ok {
		if data, err := json.Marshal(mail); err == nil {
			payload = string(data)
		}
	}

	err := c.queue.publishRaw(ctx, c.dlqStream, map[string]interface{}{
		"original_id": msgID,
		"payload":     payload,
		"reason":      cause.Error(),
		"failed_at":   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		c.logger.Error("publish dead letter failed",
			slog.String("msg_id", msgID),
			slog.String("error", err.Error()))
		return
	}
	metrics.MailQueueDLQTotal.Inc()

	if err := c.Ack(ctx, msgID); err != nil {
		c.logger.Error("ack dead-lettered mail failed",
			slog.String("msg_id", msgID),
			slog.String("error", err.Error()))
	}
}

// Pending 返回消费者组的待确认消息数，供运维观测。
func (c *Consumer) Pending(ctx context.Context) (int64, error) {
	info, err := c.queue.rdb.XPending(ctx, c.queue.streamName, c.group).Result()
	if err != nil {
		return 0, fmt.Errorf("pending mail count: %w", err)
	}
	return info.Count, nil
}
