package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ayushllcode/ngohub/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// categorySlugs URL 路径段到存储分类名的映射，未命中时把 "-" 还原为空格。
var categorySlugs = map[string]string{
	"hospitals":      "Tertiary Care Hospitals in Chennai",
	"accommodations": "Accommodations",
	"medicines":      "Medicine and Drugs",
	"blood-banks":    "Blood Banks",
	"ambulance":      "Ambulance Services",
}

func categoryFromSlug(slug string) string {
	if name, ok := categorySlugs[slug]; ok {
		return name
	}
	return strings.ReplaceAll(slug, "-", " ")
}

// resourceQuery 组装资源列表查询。
//
// location 是 JSON 序列化列，城市过滤只匹配其中的 city 字段，
// 避免误中地址、州名或邮编。
func resourceQuery(db *gorm.DB, category string, city string, typ string) *gorm.DB {
	query := db.Model(&model.Resource{}).Where("category = ?", category)

	if city != "" {
		query = query.Where("LOWER(JSON_UNQUOTE(JSON_EXTRACT(location, '$.city'))) LIKE ?",
			"%"+strings.ToLower(city)+"%")
	}
	if typ != "" {
		query = query.Where("type = ?", typ)
	}
	return query
}

// handleListResources 返回某分类下的公益资源，支持城市与类型过滤。
//
// GET /api/resources/:category?city=&type=&page=&limit=
func (s *Server) handleListResources(c *gin.Context) {
	category := categoryFromSlug(c.Param("category"))
	page, limit := s.pageParams(c)

	query := resourceQuery(s.db.WithContext(c.Request.Context()), category,
		strings.TrimSpace(c.Query("city")), strings.TrimSpace(c.Query("type")))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		s.logger.Error("count resources failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "list resources failed"})
		return
	}

	resources := []model.Resource{}
	if err := query.Order("is_verified DESC, created_at DESC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&resources).Error; err != nil {
		s.logger.Error("list resources failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "list resources failed"})
		return
	}

	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	c.JSON(http.StatusOK, gin.H{
		"resources": resources,
		"category":  category,
		"pagination": gin.H{
			"current": page,
			"pages":   pages,
			"total":   total,
		},
	})
}
