package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/mirror_server/internal/model"
)

// UsageDelta 一次用量增量
type UsageDelta struct {
	Reflections      int
	EvolutionReports int
	InputTokens      int64
	OutputTokens     int64
}

type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Record 按 (user, month) 累加，行不存在时创建
func (r *UsageRepository) Record(userID int64, month string, d UsageDelta) error {
	now := time.Now()
	row := &model.UsageTracking{
		UserID:             userID,
		MonthYear:          month,
		ReflectionsCreated: d.Reflections,
		EvolutionReports:   d.EvolutionReports,
		InputTokens:        d.InputTokens,
		OutputTokens:       d.OutputTokens,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "month_year"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"reflections_created": gorm.Expr("reflections_created + ?", d.Reflections),
			"evolution_reports":   gorm.Expr("evolution_reports + ?", d.EvolutionReports),
			"input_tokens":        gorm.Expr("input_tokens + ?", d.InputTokens),
			"output_tokens":       gorm.Expr("output_tokens + ?", d.OutputTokens),
			"updated_at":          now,
		}),
	}).Create(row).Error
}

func (r *UsageRepository) Get(userID int64, month string) (*model.UsageTracking, error) {
	var row model.UsageTracking
	err := r.db.Where("user_id = ? AND month_year = ?", userID, month).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListByUser 最近 limit 个月，新月份在前
func (r *UsageRepository) ListByUser(userID int64, limit int) ([]*model.UsageTracking, error) {
	var rows []*model.UsageTracking
	err := r.db.Where("user_id = ?", userID).Order("month_year DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// CountBefore 早于 month 的行数
func (r *UsageRepository) CountBefore(month string) (int64, error) {
	var count int64
	err := r.db.Model(&model.UsageTracking{}).Where("month_year < ?", month).Count(&count).Error
	return count, err
}

// DeleteBefore 删除早于 month 的统计
func (r *UsageRepository) DeleteBefore(month string) (int64, error) {
	res := r.db.Where("month_year < ?", month).Delete(&model.UsageTracking{})
	return res.RowsAffected, res.Error
}
