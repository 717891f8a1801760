package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ngohub:dedup:donation:"

// Deduplicator 基于 Redis SetNX 的重复捐款防护。
//
// 在去重窗口内，同一（项目、邮箱、金额）组合只允许提交一次。
// Redis 不可用时视为非重复，不阻断主流程。
type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeduplicator(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Deduplicator{
		rdb: rdb,
		ttl: ttl,
	}
}

// IsDuplicate 检查并占用去重键。首次调用返回 false 并写入键，窗口内再次调用返回 true。
func (d *Deduplicator) IsDuplicate(ctx context.Context, campaignID uint, email string, amount float64) (bool, error) {
	if d == nil || d.rdb == nil || email == "" {
		return false, nil
	}
	key := keyPrefix + hashDonation(campaignID, email, amount)
	ok, err := d.rdb.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}

// Release 释放去重键。支付失败后调用，允许捐款人立即重试。
func (d *Deduplicator) Release(ctx context.Context, campaignID uint, email string, amount float64) error {
	if d == nil || d.rdb == nil || email == "" {
		return nil
	}
	key := keyPrefix + hashDonation(campaignID, email, amount)
	if err := d.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}

func hashDonation(campaignID uint, email string, amount float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%.2f", campaignID, email, amount)))
	return hex.EncodeToString(sum[:])
}
