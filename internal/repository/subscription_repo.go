package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/internal/model"
)

// SubscriptionRepository 套餐生效记录
type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(sub *model.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *SubscriptionRepository) ListByUser(userID int64) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.Where("user_id = ?", userID).Order("started_at DESC, id DESC").Find(&subs).Error
	return subs, err
}

// CloseActive 把用户某来源下仍为 active 的记录改为 status
func (r *SubscriptionRepository) CloseActive(userID int64, source, status string) error {
	return r.db.Model(&model.Subscription{}).
		Where("user_id = ? AND source = ? AND status = ?", userID, source, model.SubscriptionActive).
		Update("status", status).Error
}

// ExpireBefore 到期记录标记为 expired
func (r *SubscriptionRepository) ExpireBefore(now time.Time) (int64, error) {
	res := r.db.Model(&model.Subscription{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", model.SubscriptionActive, now).
		Update("status", model.SubscriptionExpired)
	return res.RowsAffected, res.Error
}
