package model

import (
	"math"
	"time"
)

// 筹款项目状态。
const (
	CampaignStatusDraft     = "draft"     // 草稿
	CampaignStatusPending   = "pending"   // 待审核
	CampaignStatusActive    = "active"    // 进行中
	CampaignStatusCompleted = "completed" // 已结束
	CampaignStatusSuspended = "suspended" // 已下架
)

// 捐款支付状态。
const (
	PaymentStatusPending    = "pending"    // 待支付
	PaymentStatusProcessing = "processing" // 支付处理中
	PaymentStatusCompleted  = "completed"  // 支付成功
	PaymentStatusFailed     = "failed"     // 支付失败
	PaymentStatusRefunded   = "refunded"   // 已退款
)

// PatientInfo 医疗类项目的患者信息。
type PatientInfo struct {
	Name      string `json:"name"`
	Age       string `json:"age"`
	Condition string `json:"condition"`
	Hospital  string `json:"hospital"`
	City      string `json:"city"`
}

// Campaign 表示一个筹款项目。
//
// RaisedAmount 是冗余的累计金额，只能通过存储层的原子自增/自减修改
// （见 donations 处理器），避免并发捐款互相覆盖。
type Campaign struct {
	ID           uint        `gorm:"primaryKey" json:"id"`                             // 项目 ID
	Title        string      `gorm:"not null" json:"title"`                            // 标题
	Description  string      `gorm:"type:text;not null" json:"description"`            // 简介
	Story        string      `gorm:"type:text;not null" json:"story"`                  // 详细故事
	TargetAmount float64     `gorm:"not null" json:"targetAmount"`                     // 目标金额（必须 > 0）
	RaisedAmount float64     `gorm:"default:0" json:"raisedAmount"`                    // 已筹金额
	Category     string      `gorm:"type:varchar(64);not null;index" json:"category"`  // 分类
	CreatorID    uint        `gorm:"not null;index" json:"creatorId"`                  // 发起人 ID
	Creator      User        `gorm:"foreignKey:CreatorID" json:"-"`                    // 发起人
	Beneficiary  string      `json:"beneficiary"`                                      // 受益人关系
	PatientInfo  PatientInfo `gorm:"serializer:json" json:"patientInfo"`               // 患者信息（医疗类）
	Images       []string    `gorm:"serializer:json" json:"images"`                    // 图片文件名
	Documents    []string    `gorm:"serializer:json" json:"documents"`                 // 证明材料文件名
	Status       string      `gorm:"type:varchar(16);default:pending;index" json:"status"` // 状态
	Duration     int         `gorm:"default:30" json:"duration"`                       // 筹款周期（天）
	EndDate      *time.Time  `json:"endDate"`                                          // 截止日期
	Location     string      `json:"location"`                                         // 所在城市
	CreatedAt    time.Time   `json:"createdAt"`                                        // 创建时间
	UpdatedAt    time.Time   `json:"updatedAt"`                                        // 更新时间
}

// EffectiveEndDate 返回截止日期，未设置时按创建时间加周期推算。
func (c *Campaign) EffectiveEndDate() time.Time {
	if c.EndDate != nil && !c.EndDate.IsZero() {
		return *c.EndDate
	}
	return c.CreatedAt.Add(time.Duration(c.Duration) * 24 * time.Hour)
}

// Progress 返回筹款进度百分比（不做上限截断，展示层自行处理）。
func (c *Campaign) Progress() float64 {
	if c.TargetAmount == 0 {
		return 0
	}
	return c.RaisedAmount / c.TargetAmount * 100
}

// DaysLeftAt 返回截至 now 的剩余天数，向上取整，永不为负。
func (c *Campaign) DaysLeftAt(now time.Time) int {
	diff := c.EffectiveEndDate().Sub(now)
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(diff.Hours() / 24))
}

// DaysLeft 返回当前剩余天数。
func (c *Campaign) DaysLeft() int {
	return c.DaysLeftAt(time.Now())
}

// Donation 表示一笔针对某个项目的捐款记录。
//
// 创建时状态为 processing，模拟支付完成后转为 completed 或 failed。
// IsAnonymous 为 true 时 DonorName 在入库前就被替换为 "Anonymous"，
// 原始姓名不会留存在任何字段里。
type Donation struct {
	ID            uint       `gorm:"primaryKey" json:"id"`                                 // 捐款 ID
	CampaignID    uint       `gorm:"not null;index" json:"campaignId"`                     // 所属项目 ID
	Campaign      Campaign   `gorm:"foreignKey:CampaignID" json:"-"`                       // 所属项目
	DonorID       *uint      `gorm:"index" json:"donorId,omitempty"`                       // 捐款人用户 ID（未登录时为空）
	DonorName     string     `gorm:"not null" json:"donorName"`                            // 捐款人姓名
	DonorEmail    string     `gorm:"not null" json:"donorEmail"`                           // 捐款人邮箱
	Amount        float64    `gorm:"not null" json:"amount"`                               // 金额（必须 > 0）
	PaymentID     string     `gorm:"type:varchar(64)" json:"paymentId"`                    // 支付单号
	PaymentMethod string     `gorm:"type:varchar(32)" json:"paymentMethod"`                // 支付方式: card / upi / netbanking
	PaymentStatus string     `gorm:"type:varchar(16);default:pending;index" json:"paymentStatus"` // 支付状态
	TransactionID string     `gorm:"type:varchar(64)" json:"transactionId"`                // 交易号
	IsAnonymous   bool       `gorm:"default:false" json:"isAnonymous"`                     // 是否匿名
	Message       string     `gorm:"type:text" json:"message"`                             // 留言
	CreatedAt     time.Time  `json:"createdAt"`                                            // 创建时间
	CompletedAt   *time.Time `json:"completedAt,omitempty"`                                // 支付完成时间
}

// ResourceLocation 公益资源的地址信息。
type ResourceLocation struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

// ResourceContact 公益资源的联系方式。
type ResourceContact struct {
	Phone   []string `json:"phone"`
	Email   string   `json:"email"`
	Website string   `json:"website"`
}

// Resource 表示资源目录中的一条参考信息（医院、血库等）。
//
// 对客户端而言是只读数据，通过种子脚本或后台导入。
type Resource struct {
	ID              uint             `gorm:"primaryKey" json:"id"`                       // 资源 ID
	Name            string           `gorm:"not null" json:"name"`                       // 名称
	Category        string           `gorm:"type:varchar(128);not null;index" json:"category"` // 分类（存储为展示名）
	Type            string           `gorm:"type:varchar(32)" json:"type"`               // 类型: Government / Private / NGO
	Description     string           `gorm:"type:text" json:"description"`               // 描述
	Location        ResourceLocation `gorm:"serializer:json" json:"location"`            // 地址
	Contact         ResourceContact  `gorm:"serializer:json" json:"contact"`             // 联系方式
	Specializations []string         `gorm:"serializer:json" json:"specializations"`     // 专科方向
	Facilities      []string         `gorm:"serializer:json" json:"facilities"`          // 设施
	WorkingHours    string           `gorm:"type:varchar(64)" json:"workingHours"`       // 工作时间
	IsVerified      bool             `gorm:"default:false" json:"isVerified"`            // 是否已核实
	CreatedAt       time.Time        `json:"createdAt"`                                  // 创建时间
}
