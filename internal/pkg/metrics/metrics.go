package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 捐款与支付相关指标。
var (
	// DonationsTotal 按结果统计捐款请求数（completed / declined / error）。
	DonationsTotal *prometheus.CounterVec

	// DonationAmountTotal 累计成功捐款金额。
	DonationAmountTotal prometheus.Counter

	// PaymentDuration 模拟支付网关耗时分布。
	PaymentDuration prometheus.Histogram

	// RefundsTotal 退款笔数。
	RefundsTotal prometheus.Counter

	// EmailSentTotal 按类型与结果统计发信数。
	EmailSentTotal *prometheus.CounterVec

	// MailQueueDLQTotal 进入死信队列的邮件消息数。
	MailQueueDLQTotal prometheus.Counter

	// MailQueueAutoClaimTotal 被重新认领的 Pending 邮件消息数。
	MailQueueAutoClaimTotal prometheus.Counter

	// DonationRateLimitedTotal 被限流拒绝的捐款请求数。
	DonationRateLimitedTotal prometheus.Counter

	// DonationDuplicateBlockedTotal 被重复提交拦截的捐款请求数。
	DonationDuplicateBlockedTotal prometheus.Counter
)

var initOnce sync.Once

// InitMetrics 注册所有 Prometheus 指标。
//
// 可以被重复调用（测试场景），只有第一次生效。
func InitMetrics() {
	initOnce.Do(func() {
		DonationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ngohub_donations_total",
			Help: "Number of donation requests by settlement result.",
		}, []string{"result"})

		DonationAmountTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ngohub_donation_amount_total",
			Help: "Total amount of completed donations.",
		})

		PaymentDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ngohub_payment_duration_seconds",
			Help:    "Duration of payment gateway calls.",
			Buckets: prometheus.DefBuckets,
		})

		RefundsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ngohub_refunds_total",
			Help: "Number of refunded donations.",
		})

		EmailSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ngohub_email_sent_total",
			Help: "Number of notification emails by kind and result.",
		}, []string{"kind", "result"})

		MailQueueDLQTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ngohub_mail_queue_dlq_total",
			Help: "Number of mail messages moved to the dead letter stream.",
		})

		MailQueueAutoClaimTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ngohub_mail_queue_autoclaim_total",
			Help: "Number of pending mail messages reclaimed from dead consumers.",
		})

		DonationRateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ngohub_donation_rate_limited_total",
			Help: "Number of donation requests rejected by the rate limiter.",
		})

		DonationDuplicateBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ngohub_donation_duplicate_blocked_total",
			Help: "Number of donation requests blocked as duplicate submissions.",
		})

		prometheus.MustRegister(
			DonationsTotal,
			DonationAmountTotal,
			PaymentDuration,
			RefundsTotal,
			EmailSentTotal,
			MailQueueDLQTotal,
			MailQueueAutoClaimTotal,
			DonationRateLimitedTotal,
			DonationDuplicateBlockedTotal,
		)
	})
}
