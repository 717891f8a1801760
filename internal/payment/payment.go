package payment

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/ayushllcode/ngohub/internal/config"
	"github.com/ayushllcode/ngohub/internal/pkg/metrics"
)

// Result 支付网关的处理结果。
type Result struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
	PaymentID     string `json:"paymentId"`
	Status        string `json:"status"` // completed / failed
	Message       string `json:"message"`
}

// RefundResult 退款处理结果。
type RefundResult struct {
	Success  bool    `json:"success"`
	RefundID string  `json:"refundId"`
	Amount   float64 `json:"amount"`
	Status   string  `json:"status"` // refunded
	Message  string  `json:"message"`
}

// Processor 定义支付网关接口。
type Processor interface {
	// ProcessPayment 同步执行一笔支付，调用方需等待其完成。
	ProcessPayment(ctx context.Context, amount float64, donorEmail string, campaignID uint) (*Result, error)
	// RefundPayment 对指定交易发起退款。
	RefundPayment(ctx context.Context, transactionID string, amount float64) (*RefundResult, error)
}

// MockGateway 模拟支付网关。
//
// 按固定概率成功（默认 0.9），用固定延迟模拟网络往返。
// 交易号由毫秒时间戳加随机字母数字后缀拼成，唯一性是概率意义上的，
// 仅用于演示环境。
type MockGateway struct {
	successRate  float64
	processDelay time.Duration
	refundDelay  time.Duration
	logger       *slog.Logger

	// 测试注入点
	randFloat func() float64
	sleep     func(d time.Duration)
}

// NewMockGateway 创建模拟支付网关。
func NewMockGateway(cfg *config.PaymentConfig, logger *slog.Logger) *MockGateway {
	rate := cfg.SuccessRate
	if rate <= 0 || rate > 1 {
		rate = 0.9
	}
	return &MockGateway{
		successRate:  rate,
		processDelay: cfg.ProcessDelay,
		refundDelay:  cfg.RefundDelay,
		logger:       logger,
		randFloat:    rand.Float64,
		sleep:        time.Sleep,
	}
}

// ProcessPayment 模拟执行支付。
//
// 延迟与结果都与输入无关；即使调用方断开连接也会执行到底，
// 保证服务端视角的结算至少完成一次。
func (g *MockGateway) ProcessPayment(ctx context.Context, amount float64, donorEmail string, campaignID uint) (*Result, error) {
	start := time.Now()
	g.sleep(g.processDelay)
	if metrics.PaymentDuration != nil {
		metrics.PaymentDuration.Observe(time.Since(start).Seconds())
	}

	transactionID := generateTransactionID()
	success := g.randFloat() < g.successRate

	if !success {
		g.logger.Warn("mock payment declined",
			slog.String("transaction_id", transactionID),
			slog.Float64("amount", amount))
		return &Result{
			Success:       false,
			TransactionID: transactionID,
			Status:        "failed",
			Message:       "Payment failed. Please try again.",
		}, nil
	}

	g.logger.Info("mock payment completed",
		slog.String("transaction_id", transactionID),
		slog.Float64("amount", amount),
		slog.Uint64("campaign_id", uint64(campaignID)))
	return &Result{
		Success:       true,
		TransactionID: transactionID,
		PaymentID:     "PAY" + transactionID,
		Status:        "completed",
		Message:       "Payment processed successfully",
	}, nil
}

// RefundPayment 模拟退款，始终成功。
func (g *MockGateway) RefundPayment(ctx context.Context, transactionID string, amount float64) (*RefundResult, error) {
	g.sleep(g.refundDelay)

	refundID := fmt.Sprintf("REF%d", time.Now().UnixMilli())
	g.logger.Info("mock refund completed",
		slog.String("transaction_id", transactionID),
		slog.String("refund_id", refundID),
		slog.Float64("amount", amount))

	return &RefundResult{
		Success:  true,
		RefundID: refundID,
		Amount:   amount,
		Status:   "refunded",
		Message:  "Refund processed successfully",
	}, nil
}

// generateTransactionID 生成 "TXN<毫秒时间戳><9 位随机大写字母数字>" 格式的交易号。
func generateTransactionID() string {
	return fmt.Sprintf("TXN%d%s", time.Now().UnixMilli(), randAlnum(9))
}

func randAlnum(n int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	if _, err := crand.Read(b); err != nil {
		for i := range b {
			b[i] = letters[rand.Intn(len(letters))]
		}
		return string(b)
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}
