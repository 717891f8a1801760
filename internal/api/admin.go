package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ayushllcode/ngohub/internal/model"

	"github.com/gin-gonic/gin"
)

// handleAdminDashboard 汇总平台运营数据。
//
// GET /api/admin/dashboard
func (s *Server) handleAdminDashboard(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		totalCampaigns   int64
		activeCampaigns  int64
		totalDonations   int64
		totalUsers       int64
		totalAmountRaise float64
	)

	if err := s.db.WithContext(ctx).Model(&model.Campaign{}).Count(&totalCampaigns).Error; err != nil {
		s.logger.Error("dashboard count campaigns failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "dashboard failed"})
		return
	}
	if err := s.db.WithContext(ctx).Model(&model.Campaign{}).
		Where("status = ?", model.CampaignStatusActive).Count(&activeCampaigns).Error; err != nil {
		s.logger.Error("dashboard count active campaigns failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "dashboard failed"})
		return
	}
	if err := s.db.WithContext(ctx).Model(&model.Donation{}).
		Where("payment_status = ?", model.PaymentStatusCompleted).Count(&totalDonations).Error; err != nil {
		s.logger.Error("dashboard count donations failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "dashboard failed"})
		return
	}
	if err := s.db.WithContext(ctx).Model(&model.User{}).Count(&totalUsers).Error; err != nil {
		s.logger.Error("dashboard count users failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "dashboard failed"})
		return
	}

	type sumRow struct {
		Total float64 `gorm:"column:total"`
	}
	var sum sumRow
	if err := s.db.WithContext(ctx).Model(&model.Donation{}).
		Select("COALESCE(SUM(amount), 0) as total").
		Where("payment_status = ?", model.PaymentStatusCompleted).
		Scan(&sum).Error; err != nil {
		s.logger.Error("dashboard sum donations failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "dashboard failed"})
		return
	}
	totalAmountRaise = sum.Total

	type recentCampaignRow struct {
		ID           uint      `json:"id"`
		Title        string    `json:"title"`
		Category     string    `json:"category"`
		TargetAmount float64   `json:"targetAmount"`
		Status       string    `json:"status"`
		CreatedAt    time.Time `json:"createdAt"`
		CreatorName  string    `gorm:"column:creator_name" json:"creatorName"`
		CreatorEmail string    `gorm:"column:creator_email" json:"creatorEmail"`
	}
	recentCampaigns := []recentCampaignRow{}
	if err := s.db.WithContext(ctx).Table("campaigns").
		Select("campaigns.id, campaigns.title, campaigns.category, campaigns.target_amount, campaigns.status, campaigns.created_at, users.name as creator_name, users.email as creator_email").
		Joins("JOIN users ON users.id = campaigns.creator_id").
		Where("campaigns.status = ?", model.CampaignStatusPending).
		Order("campaigns.created_at DESC").
		Limit(5).
		Scan(&recentCampaigns).Error; err != nil {
		s.logger.Warn("dashboard recent campaigns failed", slog.String("error", err.Error()))
	}

	type recentDonationRow struct {
		ID            uint      `json:"id"`
		DonorName     string    `json:"donorName"`
		Amount        float64   `json:"amount"`
		CreatedAt     time.Time `json:"createdAt"`
		CampaignTitle string    `gorm:"column:campaign_title" json:"campaignTitle"`
	}
	recentDonations := []recentDonationRow{}
	if err := s.db.WithContext(ctx).Table("donations").
		Select("donations.id, donations.donor_name, donations.amount, donations.created_at, campaigns.title as campaign_title").
		Joins("JOIN campaigns ON campaigns.id = donations.campaign_id").
		Where("donations.payment_status = ?", model.PaymentStatusCompleted).
		Order("donations.created_at DESC").
		Limit(10).
		Scan(&recentDonations).Error; err != nil {
		s.logger.Warn("dashboard recent donations failed", slog.String("error", err.Error()))
	}

	c.JSON(http.StatusOK, gin.H{
		"stats": gin.H{
			"totalCampaigns":    totalCampaigns,
			"activeCampaigns":   activeCampaigns,
			"totalDonations":    totalDonations,
			"totalUsers":        totalUsers,
			"totalAmountRaised": totalAmountRaise,
		},
		"recentCampaigns": recentCampaigns,
		"recentDonations": recentDonations,
	})
}
