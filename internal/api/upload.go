package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/ayushllcode/ngohub/internal/pkg/upload"

	"github.com/gin-gonic/gin"
)

// handleUpload 接收单个附件并保存到配置的存储后端。
//
// POST /api/upload
func (s *Server) handleUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No file uploaded"})
		return
	}
	if s.cfg.Upload.MaxSizeByte > 0 && fh.Size > s.cfg.Upload.MaxSizeByte {
		c.JSON(http.StatusBadRequest, gin.H{"message": "File too large"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid file"})
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid file"})
		return
	}

	saved, err := s.uploads.Save(c.Request.Context(), "file", fh.Filename, data)
	if err != nil {
		s.logger.Error("save upload failed",
			slog.String("name", fh.Filename),
			slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "File uploaded successfully",
		"filename":     saved.Key,
		"originalName": fh.Filename,
		"size":         saved.Size,
		"url":          saved.URL,
	})
}

// handlePresignUpload 为客户端直传生成预签名 PUT 地址（仅 S3 后端）。
//
// POST /api/upload/presign
func (s *Server) handlePresignUpload(c *gin.Context) {
	s3store, ok := s.uploads.(*upload.S3Store)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"message": "presigned uploads require the s3 backend"})
		return
	}

	key, url, err := s3store.PresignPutURL(c.Request.Context())
	if err != nil {
		s.logger.Error("presign upload failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "presign failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key": key,
		"url": url,
	})
}
