package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/internal/model"
)

// EvolutionRepository 报告只增不改
type EvolutionRepository struct {
	db *gorm.DB
}

func NewEvolutionRepository(db *gorm.DB) *EvolutionRepository {
	return &EvolutionRepository{db: db}
}

func (r *EvolutionRepository) Create(report *model.EvolutionReport) error {
	return r.db.Create(report).Error
}

func (r *EvolutionRepository) GetByID(id int64) (*model.EvolutionReport, error) {
	var report model.EvolutionReport
	err := r.db.Where("id = ?", id).First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *EvolutionRepository) ListByUser(userID int64, dreamID *int64, page, pageSize int) ([]*model.EvolutionReport, int64, error) {
	var reports []*model.EvolutionReport
	var total int64

	query := r.db.Model(&model.EvolutionReport{}).Where("user_id = ?", userID)
	if dreamID != nil {
		query = query.Where("dream_id = ?", *dreamID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&reports).Error; err != nil {
		return nil, 0, err
	}

	return reports, total, nil
}
