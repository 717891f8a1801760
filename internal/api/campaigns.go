package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayushllcode/ngohub/internal/model"
	"github.com/ayushllcode/ngohub/internal/pkg/notify"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// campaignPayload 序列化一个项目并附带派生字段。
func campaignPayload(c *model.Campaign, donorCount int64) gin.H {
	return gin.H{
		"id":           c.ID,
		"title":        c.Title,
		"description":  c.Description,
		"story":        c.Story,
		"targetAmount": c.TargetAmount,
		"raisedAmount": c.RaisedAmount,
		"category":     c.Category,
		"creatorId":    c.CreatorID,
		"beneficiary":  c.Beneficiary,
		"patientInfo":  c.PatientInfo,
		"images":       c.Images,
		"documents":    c.Documents,
		"status":       c.Status,
		"duration":     c.Duration,
		"endDate":      c.EndDate,
		"location":     c.Location,
		"createdAt":    c.CreatedAt,
		"updatedAt":    c.UpdatedAt,
		"progress":     c.Progress(),
		"daysLeft":     c.DaysLeft(),
		"donorCount":   donorCount,
	}
}

// handleListCampaigns 按分类 / 状态 / 关键词过滤并分页返回项目列表。
//
// GET /api/campaigns?category=&status=&search=&page=&limit=
func (s *Server) handleListCampaigns(c *gin.Context) {
	page, limit := s.pageParams(c)

	query := s.db.WithContext(c.Request.Context()).Model(&model.Campaign{})

	if category := c.Query("category"); category != "" && category != "All" {
		query = query.Where("category = ?", category)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		s.logger.Error("count campaigns failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "list campaigns failed"})
		return
	}

	var campaigns []model.Campaign
	if err := query.Order("created_at DESC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&campaigns).Error; err != nil {
		s.logger.Error("list campaigns failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "list campaigns failed"})
		return
	}

	donorCounts := s.donorCounts(c, campaigns)
	payload := make([]gin.H, 0, len(campaigns))
	for i := range campaigns {
		payload = append(payload, campaignPayload(&campaigns[i], donorCounts[campaigns[i].ID]))
	}

	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	c.JSON(http.StatusOK, gin.H{
		"campaigns": payload,
		"pagination": gin.H{
			"current": page,
			"pages":   pages,
			"total":   total,
		},
	})
}

// donorCounts 统计每个项目的成功捐款人数。
func (s *Server) donorCounts(c *gin.Context, campaigns []model.Campaign) map[uint]int64 {
	counts := make(map[uint]int64, len(campaigns))
	if len(campaigns) == 0 {
		return counts
	}

	ids := make([]uint, 0, len(campaigns))
	for i := range campaigns {
		ids = append(ids, campaigns[i].ID)
	}

	type row struct {
		CampaignID uint  `gorm:"column:campaign_id"`
		Count      int64 `gorm:"column:count"`
	}
	var rows []row
	if err := s.db.WithContext(c.Request.Context()).Model(&model.Donation{}).
		Select("campaign_id, COUNT(*) as count").
		Where("campaign_id IN ? AND payment_status = ?", ids, model.PaymentStatusCompleted).
		Group("campaign_id").
		Scan(&rows).Error; err != nil {
		s.logger.Warn("count donors failed", slog.String("error", err.Error()))
		return counts
	}
	for _, r := range rows {
		counts[r.CampaignID] = r.Count
	}
	return counts
}

// handleGetCampaign 返回单个项目详情，包含最近十笔成功捐款。
//
// GET /api/campaigns/:id
func (s *Server) handleGetCampaign(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid campaign id"})
		return
	}

	var campaign model.Campaign
	if err := s.db.WithContext(c.Request.Context()).First(&campaign, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Campaign not found"})
			return
		}
		s.logger.Error("load campaign failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}

	type recentDonation struct {
		DonorName   string    `json:"donorName"`
		Amount      float64   `json:"amount"`
		IsAnonymous bool      `json:"isAnonymous"`
		Message     string    `json:"message"`
		CreatedAt   time.Time `json:"createdAt"`
	}
	recent := []recentDonation{}
	if err := s.db.WithContext(c.Request.Context()).Model(&model.Donation{}).
		Select("donor_name, amount, is_anonymous, message, created_at").
		Where("campaign_id = ? AND payment_status = ?", campaign.ID, model.PaymentStatusCompleted).
		Order("created_at DESC").
		Limit(10).
		Scan(&recent).Error; err != nil {
		s.logger.Warn("load recent donations failed", slog.String("error", err.Error()))
	}

	var donorCount int64
	if err := s.db.WithContext(c.Request.Context()).Model(&model.Donation{}).
		Where("campaign_id = ? AND payment_status = ?", campaign.ID, model.PaymentStatusCompleted).
		Count(&donorCount).Error; err != nil {
		s.logger.Warn("count donors failed", slog.String("error", err.Error()))
	}

	payload := campaignPayload(&campaign, donorCount)
	payload["recentDonations"] = recent
	c.JSON(http.StatusOK, gin.H{"campaign": payload})
}

// handleCreateCampaign 创建筹款项目（multipart 表单，含图片与证明材料）。
//
// POST /api/campaigns
func (s *Server) handleCreateCampaign(c *gin.Context) {
	title := strings.TrimSpace(c.PostForm("title"))
	description := strings.TrimSpace(c.PostForm("description"))
	story := strings.TrimSpace(c.PostForm("story"))
	category := strings.TrimSpace(c.PostForm("category"))
	if title == "" || description == "" || story == "" || category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "title, description, story and category are required"})
		return
	}

	targetAmount, err := strconv.ParseFloat(c.PostForm("targetAmount"), 64)
	if err != nil || targetAmount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "targetAmount must be a positive number"})
		return
	}

	duration := 30
	if v := c.PostForm("duration"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			duration = parsed
		}
	}

	images, err := s.saveFormFiles(c, "images", 5)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	documents, err := s.saveFormFiles(c, "documents", 10)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	endDate := time.Now().Add(time.Duration(duration) * 24 * time.Hour)
	campaign := model.Campaign{
		Title:        title,
		Description:  description,
		Story:        story,
		TargetAmount: targetAmount,
		Category:     category,
		CreatorID:    uint(getUserID(c)),
		Beneficiary:  strings.TrimSpace(c.PostForm("beneficiary")),
		PatientInfo: model.PatientInfo{
			Name:      strings.TrimSpace(c.PostForm("patientName")),
			Age:       strings.TrimSpace(c.PostForm("patientAge")),
			Condition: strings.TrimSpace(c.PostForm("patientCondition")),
			Hospital:  strings.TrimSpace(c.PostForm("hospital")),
			City:      strings.TrimSpace(c.PostForm("city")),
		},
		Images:    images,
		Documents: documents,
		Status:    model.CampaignStatusPending,
		Duration:  duration,
		EndDate:   &endDate,
		Location:  strings.TrimSpace(c.PostForm("city")),
	}

	if err := s.db.WithContext(c.Request.Context()).Create(&campaign).Error; err != nil {
		s.logger.Error("create campaign failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "create campaign failed"})
		return
	}

	var creator model.User
	if err := s.db.WithContext(c.Request.Context()).Select("email, name").First(&creator, campaign.CreatorID).Error; err == nil {
		s.dispatch(notify.NewCampaignCreatedMail(creator.Email, campaign.Title))
	}

	s.logger.Info("campaign created",
		slog.Uint64("campaign_id", uint64(campaign.ID)),
		slog.Uint64("creator_id", uint64(campaign.CreatorID)),
		slog.String("title", campaign.Title))

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Campaign created successfully and is pending review",
		"campaign": campaignPayload(&campaign, 0),
	})
}

// saveFormFiles 保存 multipart 表单里一个字段下的全部文件，返回存储键列表。
func (s *Server) saveFormFiles(c *gin.Context, field string, maxCount int) ([]string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		// 无附件的纯表单提交也是合法的
		return []string{}, nil
	}

	files := form.File[field]
	if len(files) > maxCount {
		return nil, errors.New("too many " + field + " files")
	}

	keys := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}

		saved, err := s.uploads.Save(c.Request.Context(), strings.TrimSuffix(field, "s"), fh.Filename, data)
		if err != nil {
			return nil, err
		}
		keys = append(keys, saved.Key)
	}
	return keys, nil
}

type updateCampaignStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// handleUpdateCampaignStatus 管理端修改项目状态并通知发起人。
//
// PUT /api/admin/campaigns/:id/status
func (s *Server) handleUpdateCampaignStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid campaign id"})
		return
	}

	var req updateCampaignStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	switch req.Status {
	case model.CampaignStatusPending, model.CampaignStatusActive,
		model.CampaignStatusCompleted, model.CampaignStatusSuspended:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid status"})
		return
	}

	var campaign model.Campaign
	if err := s.db.WithContext(c.Request.Context()).First(&campaign, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Campaign not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}

	campaign.Status = req.Status
	if err := s.db.WithContext(c.Request.Context()).Save(&campaign).Error; err != nil {
		s.logger.Error("update campaign status failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "update failed"})
		return
	}

	var creator model.User
	if err := s.db.WithContext(c.Request.Context()).Select("email").First(&creator, campaign.CreatorID).Error; err == nil {
		s.dispatch(notify.NewStatusUpdateMail(creator.Email, campaign.Title, campaign.Status))
	}

	s.logger.Info("campaign status updated",
		slog.Uint64("campaign_id", uint64(campaign.ID)),
		slog.String("status", campaign.Status))

	c.JSON(http.StatusOK, gin.H{
		"message":  "Campaign status updated",
		"campaign": campaignPayload(&campaign, 0),
	})
}
