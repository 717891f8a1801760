package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ayushllcode/ngohub/internal/model"

	"gorm.io/gorm"
)

// Sweeper 周期性巡检并关闭已过截止日期的筹款项目。
//
// active 状态且 end_date 已过的项目被置为 completed，
// 避免 daysLeft 归零的项目继续接受捐款。
type Sweeper struct {
	logger   *slog.Logger
	interval time.Duration
	sweep    func(ctx context.Context) (int64, error)
}

// NewSweeper 创建过期项目巡检器。
func NewSweeper(db *gorm.DB, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		logger:   logger,
		interval: interval,
		sweep:    dbSweep(db),
	}
}

func dbSweep(db *gorm.DB) func(ctx context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		res := db.WithContext(ctx).Model(&model.Campaign{}).
			Where("status = ? AND end_date IS NOT NULL AND end_date < ?", model.CampaignStatusActive, time.Now()).
			Update("status", model.CampaignStatusCompleted)
		return res.RowsAffected, res.Error
	}
}

// Run 启动巡检循环，直到 ctx 被取消。启动时先执行一次。
func (s *Sweeper) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("campaign sweeper stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	expired, err := s.sweep(ctx)
	if err != nil {
		s.logger.Error("campaign sweep failed", slog.String("error", err.Error()))
		return
	}
	if expired > 0 {
		s.logger.Info("expired campaigns closed", slog.Int64("count", expired))
	}
}
