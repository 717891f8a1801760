package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayushllcode/ngohub/internal/model"
	"github.com/ayushllcode/ngohub/internal/pkg/metrics"
	"github.com/ayushllcode/ngohub/internal/pkg/notify"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// createDonationRequest 创建捐款的请求参数。
type createDonationRequest struct {
	CampaignID    uint    `json:"campaignId" binding:"required"`
	DonorName     string  `json:"donorName" binding:"required"`
	DonorEmail    string  `json:"donorEmail" binding:"required,email"`
	Amount        float64 `json:"amount" binding:"required"`
	PaymentMethod string  `json:"paymentMethod"`
	IsAnonymous   bool    `json:"isAnonymous"`
	Message       string  `json:"message"`
}

func donationPayload(d *model.Donation) gin.H {
	return gin.H{
		"id":            d.ID,
		"transactionId": d.TransactionID,
		"status":        d.PaymentStatus,
		"amount":        d.Amount,
	}
}

// handleCreateDonation 处理捐款请求，按 校验 → 防护 → 落库 → 支付 →
// 记账 → 持久化 的顺序推进。支付成功与失败都返回 HTTP 200，结果通过
// success 字段区分。
//
// POST /api/donations
func (s *Server) handleCreateDonation(c *gin.Context) {
	var req createDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	// —— 校验 ——
	if req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Donation amount must be greater than zero"})
		return
	}
	if max := s.cfg.Payment.MaxAmount; max > 0 && req.Amount > max {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Donation amount exceeds the allowed maximum"})
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.DonorEmail))

	campaign, err := s.campaigns.GetCampaign(c.Request.Context(), req.CampaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Campaign not found"})
			return
		}
		s.logger.Error("load campaign failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
		return
	}
	if campaign.Status != model.CampaignStatusActive {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Campaign is not accepting donations"})
		return
	}

	// —— 防护（Redis 不可用时全部放行）——
	if allowed, waitMs := s.limiter.Allow(c.Request.Context(), email); !allowed {
		metrics.DonationRateLimitedTotal.Inc()
		c.Header("Retry-After", strconv.FormatInt((waitMs+999)/1000, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "Too many donation attempts, please try again shortly"})
		return
	}

	dup, err := s.deduper.IsDuplicate(c.Request.Context(), req.CampaignID, email, req.Amount)
	if err != nil {
		s.logger.Warn("dedup check failed", slog.String("error", err.Error()))
	} else if dup {
		metrics.DonationDuplicateBlockedTotal.Inc()
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "A matching donation was just submitted, please wait a moment"})
		return
	}

	// —— 落库 ——
	// 匿名捐款在任何支付动作之前就替换姓名，原名不落库
	donorName := strings.TrimSpace(req.DonorName)
	if req.IsAnonymous {
		donorName = "Anonymous"
	}

	donation := &model.Donation{
		CampaignID:    campaign.ID,
		DonorName:     donorName,
		DonorEmail:    email,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: model.PaymentStatusProcessing,
		IsAnonymous:   req.IsAnonymous,
		Message:       req.Message,
	}
	if uid := getUserID(c); uid > 0 {
		id := uint(uid)
		donation.DonorID = &id
	}

	// 结算使用独立上下文：客户端断开不能中止一笔已发起的支付
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 30*time.Second)
	defer cancel()

	if err := s.donations.CreateDonation(ctx, donation); err != nil {
		s.logger.Error("create donation failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
		return
	}

	// —— 支付 ——
	result, err := s.gateway.ProcessPayment(ctx, donation.Amount, donation.DonorEmail, campaign.ID)
	if err != nil {
		s.logger.Error("payment gateway error",
			slog.Uint64("donation_id", uint64(donation.ID)),
			slog.String("error", err.Error()))
		donation.PaymentStatus = model.PaymentStatusFailed
		if saveErr := s.donations.SaveDonation(ctx, donation); saveErr != nil {
			s.logger.Error("save donation failed", slog.String("error", saveErr.Error()))
		}
		// 网关故障同样释放去重键，内部错误不应锁住捐款人
		if relErr := s.deduper.Release(ctx, req.CampaignID, email, req.Amount); relErr != nil {
			s.logger.Warn("dedup release failed", slog.String("error", relErr.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
		return
	}

	donation.TransactionID = result.TransactionID
	donation.PaymentID = result.PaymentID
	donation.PaymentStatus = result.Status

	// —— 记账 ——
	if result.Success {
		now := time.Now()
		donation.CompletedAt = &now

		if err := s.campaigns.AddRaisedAmount(ctx, campaign.ID, donation.Amount); err != nil {
			s.logger.Error("apply raised amount failed",
				slog.Uint64("campaign_id", uint64(campaign.ID)),
				slog.String("error", err.Error()))
		}

		metrics.DonationsTotal.WithLabelValues("completed").Inc()
		metrics.DonationAmountTotal.Add(donation.Amount)

		s.dispatch(notify.NewDonationReceiptMail(donation.DonorEmail, donation.Amount, campaign.Title, donation.TransactionID))
		creatorEmail, err := s.campaigns.CreatorEmail(ctx, campaign.CreatorID)
		if err != nil {
			s.logger.Warn("load campaign creator failed",
				slog.Uint64("creator_id", uint64(campaign.CreatorID)),
				slog.String("error", err.Error()))
		} else if creatorEmail != "" {
			s.dispatch(notify.NewCreatorAlertMail(creatorEmail, campaign.Title, donation.Amount, donation.DonorName))
		}
	} else {
		metrics.DonationsTotal.WithLabelValues("failed").Inc()
		// 释放去重键，允许捐款人立即重试
		if err := s.deduper.Release(ctx, req.CampaignID, email, req.Amount); err != nil {
			s.logger.Warn("dedup release failed", slog.String("error", err.Error()))
		}
	}

	// —— 持久化 ——
	if err := s.donations.SaveDonation(ctx, donation); err != nil {
		s.logger.Error("save donation failed",
			slog.Uint64("donation_id", uint64(donation.ID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
		return
	}

	s.logger.Info("donation settled",
		slog.Uint64("donation_id", uint64(donation.ID)),
		slog.Uint64("campaign_id", uint64(campaign.ID)),
		slog.Float64("amount", donation.Amount),
		slog.String("status", donation.PaymentStatus))

	c.JSON(http.StatusOK, gin.H{
		"success":  result.Success,
		"message":  result.Message,
		"donation": donationPayload(donation),
	})
}

// userDonationRecord 用户捐款列表的一条存储层查询结果。
//
// campaigns.images 是 JSON 序列化列，原样取出后由展示层解码。
type userDonationRecord struct {
	model.Donation
	CampaignTitle     string `gorm:"column:campaign_title"`
	CampaignImagesRaw string `gorm:"column:campaign_images"`
}

// userDonationView 用户捐款列表的一行响应（带项目标题与图片）。
type userDonationView struct {
	model.Donation
	CampaignTitle  string   `json:"campaignTitle"`
	CampaignImages []string `json:"campaignImages"`
}

// decodeImageList 解析 JSON 序列化的图片列表，坏数据按空列表处理。
func decodeImageList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var images []string
	if err := json.Unmarshal([]byte(raw), &images); err != nil {
		return []string{}
	}
	return images
}

// handleUserDonations 返回指定用户的捐款历史，仅本人或管理员可见。
//
// GET /api/donations/user/:userId
func (s *Server) handleUserDonations(c *gin.Context) {
	targetID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid user id"})
		return
	}
	if uint64(getUserID(c)) != targetID && getUserRole(c) != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"message": "access denied"})
		return
	}

	records, err := s.donations.UserDonations(c.Request.Context(), uint(targetID))
	if err != nil {
		s.logger.Error("list user donations failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "list donations failed"})
		return
	}

	views := make([]userDonationView, 0, len(records))
	for _, rec := range records {
		views = append(views, userDonationView{
			Donation:       rec.Donation,
			CampaignTitle:  rec.CampaignTitle,
			CampaignImages: decodeImageList(rec.CampaignImagesRaw),
		})
	}

	c.JSON(http.StatusOK, gin.H{"donations": views})
}

// handleRefundDonation 对已完成的捐款发起退款。
//
// POST /api/admin/donations/:id/refund
func (s *Server) handleRefundDonation(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid donation id"})
		return
	}

	donation, err := s.donations.GetDonation(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Donation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	if donation.PaymentStatus != model.PaymentStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"message": "Only completed donations can be refunded"})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 30*time.Second)
	defer cancel()

	result, err := s.gateway.RefundPayment(ctx, donation.TransactionID, donation.Amount)
	if err != nil {
		s.logger.Error("refund gateway error",
			slog.Uint64("donation_id", uint64(donation.ID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "refund failed"})
		return
	}

	donation.PaymentStatus = model.PaymentStatusRefunded
	if err := s.donations.SaveDonation(ctx, donation); err != nil {
		s.logger.Error("save refunded donation failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "refund failed"})
		return
	}
	if err := s.campaigns.AddRaisedAmount(ctx, donation.CampaignID, -donation.Amount); err != nil {
		s.logger.Error("revert raised amount failed",
			slog.Uint64("campaign_id", uint64(donation.CampaignID)),
			slog.String("error", err.Error()))
	}

	metrics.RefundsTotal.Inc()
	s.logger.Info("donation refunded",
		slog.Uint64("donation_id", uint64(donation.ID)),
		slog.String("refund_id", result.RefundID))

	c.JSON(http.StatusOK, gin.H{
		"message":  "Refund processed successfully",
		"refundId": result.RefundID,
		"donation": donationPayload(donation),
	})
}
