package upload

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"
)

// SavedFile 描述一次成功保存的附件。
type SavedFile struct {
	// Key 存储键：磁盘后端为文件名，S3 后端为对象键。
	Key string
	// URL 可供前端访问的路径或地址。
	URL string
	// Size 文件大小（字节）。
	Size int64
}

// Store 附件存储后端。
//
// 磁盘实现和 S3 实现均满足此接口，由配置决定启用哪个。
type Store interface {
	// Save 保存一个附件，field 为表单字段名（image / document）。
	Save(ctx context.Context, field, filename string, data []byte) (*SavedFile, error)
}

// allowedExts 允许上传的文件扩展名。
var allowedExts = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

// ValidateExt 校验文件扩展名是否在白名单内。
func ValidateExt(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExts[ext] {
		return fmt.Errorf("file type %q not allowed (images, PDF and Word documents only)", ext)
	}
	return nil
}

// randomName 生成上传文件名，如 "image-1735689600123-482915306.png"。
func randomName(field, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000_000))
	suffix := int64(0)
	if err == nil {
		suffix = n.Int64()
	}
	return fmt.Sprintf("%s-%d-%d%s", field, time.Now().UnixMilli(), suffix, ext)
}
