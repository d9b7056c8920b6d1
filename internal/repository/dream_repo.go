package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/internal/model"
)

type DreamRepository struct {
	db *gorm.DB
}

func NewDreamRepository(db *gorm.DB) *DreamRepository {
	return &DreamRepository{db: db}
}

func (r *DreamRepository) Create(dream *model.Dream) error {
	return r.db.Create(dream).Error
}

func (r *DreamRepository) GetByID(id int64) (*model.Dream, error) {
	var dream model.Dream
	err := r.db.Where("id = ?", id).First(&dream).Error
	if err != nil {
		return nil, err
	}
	return &dream, nil
}

func (r *DreamRepository) Update(dream *model.Dream) error {
	return r.db.Save(dream).Error
}

// ListByUser 按优先级和创建时间排序，status 为空返回全部
func (r *DreamRepository) ListByUser(userID int64, status string) ([]*model.Dream, error) {
	var dreams []*model.Dream
	query := r.db.Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("priority DESC, created_at DESC, id DESC").Find(&dreams).Error
	return dreams, err
}

func (r *DreamRepository) CountActive(userID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.Dream{}).
		Where("user_id = ? AND status = ?", userID, model.DreamActive).
		Count(&count).Error
	return count, err
}

// AdjustReflectionCount 调整反思计数，不会减到负数
func (r *DreamRepository) AdjustReflectionCount(id int64, delta int) error {
	expr := gorm.Expr("reflection_count + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("CASE WHEN reflection_count + ? < 0 THEN 0 ELSE reflection_count + ? END", delta, delta)
	}
	return r.db.Model(&model.Dream{}).Where("id = ?", id).Update("reflection_count", expr).Error
}

// Delete 删除梦想，关联的反思和报告保留但解除关联
func (r *DreamRepository) Delete(id int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Reflection{}).Where("dream_id = ?", id).
			Update("dream_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.EvolutionReport{}).Where("dream_id = ?", id).
			Update("dream_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Dream{}, id).Error
	})
}
