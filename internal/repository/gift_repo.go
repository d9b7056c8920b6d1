package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/internal/model"
)

type GiftRepository struct {
	db *gorm.DB
}

func NewGiftRepository(db *gorm.DB) *GiftRepository {
	return &GiftRepository{db: db}
}

func (r *GiftRepository) Create(gift *model.SubscriptionGift) error {
	return r.db.Create(gift).Error
}

func (r *GiftRepository) GetByCode(code string) (*model.SubscriptionGift, error) {
	var gift model.SubscriptionGift
	err := r.db.Where("code = ?", code).First(&gift).Error
	if err != nil {
		return nil, err
	}
	return &gift, nil
}

func (r *GiftRepository) GetByPaymentReference(ref string) (*model.SubscriptionGift, error) {
	var gift model.SubscriptionGift
	err := r.db.Where("payment_reference = ?", ref).First(&gift).Error
	if err != nil {
		return nil, err
	}
	return &gift, nil
}

func (r *GiftRepository) ExistsByCode(code string) (bool, error) {
	var count int64
	err := r.db.Model(&model.SubscriptionGift{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

// ListByGiver 用户送出的礼物
func (r *GiftRepository) ListByGiver(userID int64) ([]*model.SubscriptionGift, error) {
	var gifts []*model.SubscriptionGift
	err := r.db.Where("giver_user_id = ?", userID).Order("created_at DESC, id DESC").Find(&gifts).Error
	return gifts, err
}

// markRedeemed 未兑换且未过期时才会更新，返回是否由本次调用兑换
func markRedeemed(db *gorm.DB, code string, userID int64, now time.Time) (bool, error) {
	res := db.Model(&model.SubscriptionGift{}).
		Where("code = ? AND is_redeemed = ? AND expires_at > ?", code, false, now).
		Updates(map[string]interface{}{
			"is_redeemed": true,
			"redeemed_by": userID,
			"redeemed_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

// CountExpiredUnredeemed 过期未兑换的礼物码数量
func (r *GiftRepository) CountExpiredUnredeemed(now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.SubscriptionGift{}).
		Where("is_redeemed = ? AND expires_at <= ?", false, now).
		Count(&count).Error
	return count, err
}

// RedeemFunc 根据兑换人当前状态计算需要更新的字段和订阅记录
type RedeemFunc func(user *model.User) (map[string]interface{}, *model.Subscription)

// Redeem 在同一事务里标记兑换并更新兑换人的套餐，返回 false 表示已被兑换或已过期
func (r *GiftRepository) Redeem(code string, userID int64, now time.Time, apply RedeemFunc) (bool, error) {
	redeemed := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		ok, err := markRedeemed(tx, code, userID, now)
		if err != nil || !ok {
			return err
		}

		var user model.User
		if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
			return err
		}

		fields, sub := apply(&user)
		if err := tx.Model(&model.User{}).Where("id = ?", userID).Updates(fields).Error; err != nil {
			return err
		}
		if sub != nil {
			if err := tx.Create(sub).Error; err != nil {
				return err
			}
		}
		redeemed = true
		return nil
	})
	return redeemed, err
}
