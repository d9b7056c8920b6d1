package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

func (r *UserRepository) GetByID(id int64) (*model.User, error) {
	var user model.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByGithubID(githubID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("github_id = ?", githubID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByStripeCustomerID(customerID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Update(user *model.User) error {
	return r.db.Save(user).Error
}

func (r *UserRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

func (r *UserRepository) ExistsByEmail(email string) (bool, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// RollMonth 月份标记不同时把本月计数清零，只有一个并发请求会成功
func (r *UserRepository) RollMonth(id int64, month string) (bool, error) {
	res := r.db.Model(&model.User{}).
		Where("id = ? AND (current_month_year <> ? OR current_month_year IS NULL)", id, month).
		Updates(map[string]interface{}{
			"reflection_count_this_month": 0,
			"current_month_year":          month,
		})
	return res.RowsAffected > 0, res.Error
}

// ReserveReflection 占用一次本月额度，limit < 0 表示不限
func (r *UserRepository) ReserveReflection(id int64, month string, limit int) (bool, error) {
	query := r.db.Model(&model.User{}).Where("id = ? AND current_month_year = ?", id, month)
	if limit >= 0 {
		query = query.Where("reflection_count_this_month < ?", limit)
	}

	res := query.Updates(map[string]interface{}{
		"reflection_count_this_month": gorm.Expr("reflection_count_this_month + 1"),
		"total_reflections":           gorm.Expr("total_reflections + 1"),
	})
	return res.RowsAffected > 0, res.Error
}

// ReleaseReflection 归还一次额度；month 是那条反思所属月份，跨月后只扣总数
func (r *UserRepository) ReleaseReflection(id int64, month string) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"reflection_count_this_month": gorm.Expr(
			"CASE WHEN current_month_year = ? AND reflection_count_this_month > 0 THEN reflection_count_this_month - 1 ELSE reflection_count_this_month END", month),
		"total_reflections": gorm.Expr("CASE WHEN total_reflections > 0 THEN total_reflections - 1 ELSE 0 END"),
	}).Error
}

// expiredQuery 到期且不受 Stripe 续费管理的付费用户
func (r *UserRepository) expiredQuery(now time.Time) *gorm.DB {
	return r.db.Model(&model.User{}).
		Where("subscription_tier <> ?", model.TierFree).
		Where("subscription_expires_at IS NOT NULL AND subscription_expires_at < ?", now).
		Where("(stripe_subscription_id IS NULL OR stripe_subscription_id = '')")
}

// CountExpiredSubscriptions 统计已到期待降级的用户
func (r *UserRepository) CountExpiredSubscriptions(now time.Time) (int64, error) {
	var count int64
	err := r.expiredQuery(now).Count(&count).Error
	return count, err
}

// ExpireSubscriptions 降级到期的赠送订阅
func (r *UserRepository) ExpireSubscriptions(now time.Time) (int64, error) {
	res := r.expiredQuery(now).Updates(map[string]interface{}{
		"subscription_tier":   model.TierFree,
		"subscription_status": model.SubscriptionExpired,
		"subscription_period": "",
	})
	return res.RowsAffected, res.Error
}

// DeleteWithOwnedRecords 删除用户及其数据，收据保留但解除关联
func (r *UserRepository) DeleteWithOwnedRecords(id int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		owned := []interface{}{
			&model.Reflection{},
			&model.EvolutionReport{},
			&model.Dream{},
			&model.UsageTracking{},
			&model.Subscription{},
		}
		for _, m := range owned {
			if err := tx.Where("user_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&model.Receipt{}).Where("user_id = ?", id).
			Update("user_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.SubscriptionGift{}).Where("giver_user_id = ?", id).
			Update("giver_user_id", nil).Error; err != nil {
			return err
		}

		res := tx.Delete(&model.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
