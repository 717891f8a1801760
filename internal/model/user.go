package model

import "time"

// 用户角色。
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User 表示平台用户（捐款人或项目发起人）。
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`                       // 用户 ID
	Name       string    `gorm:"not null" json:"name"`                       // 姓名
	Email      string    `gorm:"type:varchar(191);uniqueIndex" json:"email"` // 邮箱（唯一）
	Password   string    `gorm:"not null" json:"-"`                          // bcrypt 哈希
	Phone      string    `gorm:"type:varchar(32)" json:"phone"`              // 电话
	Role       string    `gorm:"type:varchar(16);default:user" json:"role"`  // 角色: user / admin
	IsVerified bool      `gorm:"default:false" json:"isVerified"`            // 是否已认证
	CreatedAt  time.Time `json:"createdAt"`                                  // 创建时间

	Campaigns []Campaign `gorm:"foreignKey:CreatorID" json:"-"` // 发起的筹款项目
}
