package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/internal/model"
)

// ReflectionFilter 列表筛选条件
type ReflectionFilter struct {
	DreamID   *int64
	Tone      string
	IsPremium *bool
	Search    string
}

type ReflectionRepository struct {
	db *gorm.DB
}

func NewReflectionRepository(db *gorm.DB) *ReflectionRepository {
	return &ReflectionRepository{db: db}
}

func (r *ReflectionRepository) Create(reflection *model.Reflection) error {
	return r.db.Create(reflection).Error
}

func (r *ReflectionRepository) GetByID(id int64) (*model.Reflection, error) {
	var reflection model.Reflection
	err := r.db.Where("id = ?", id).First(&reflection).Error
	if err != nil {
		return nil, err
	}
	return &reflection, nil
}

func (r *ReflectionRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.Reflection{}).Where("id = ?", id).Updates(fields).Error
}

func (r *ReflectionRepository) IncrementViewCount(id int64) error {
	return r.db.Model(&model.Reflection{}).Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

func (r *ReflectionRepository) Delete(id int64) error {
	return r.db.Delete(&model.Reflection{}, id).Error
}

// List 获取用户的反思列表，最新在前
func (r *ReflectionRepository) List(userID int64, filter ReflectionFilter, page, pageSize int) ([]*model.Reflection, int64, error) {
	var reflections []*model.Reflection
	var total int64

	query := r.db.Model(&model.Reflection{}).Where("user_id = ?", userID)

	if filter.DreamID != nil {
		query = query.Where("dream_id = ?", *filter.DreamID)
	}
	if filter.Tone != "" {
		query = query.Where("tone = ?", filter.Tone)
	}
	if filter.IsPremium != nil {
		query = query.Where("is_premium = ?", *filter.IsPremium)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("(title LIKE ? OR dream LIKE ? OR ai_response LIKE ?)", like, like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&reflections).Error; err != nil {
		return nil, 0, err
	}

	return reflections, total, nil
}

func (r *ReflectionRepository) scoped(userID int64, dreamID *int64) *gorm.DB {
	query := r.db.Model(&model.Reflection{}).Where("user_id = ?", userID)
	if dreamID != nil {
		query = query.Where("dream_id = ?", *dreamID)
	}
	return query
}

// CountByUser 统计反思数量，dreamID 非空时只统计该梦想
func (r *ReflectionRepository) CountByUser(userID int64, dreamID *int64) (int64, error) {
	var count int64
	err := r.scoped(userID, dreamID).Count(&count).Error
	return count, err
}

// ListChronological 按时间升序返回全部反思，用于进化报告抽样
func (r *ReflectionRepository) ListChronological(userID int64, dreamID *int64) ([]*model.Reflection, error) {
	var reflections []*model.Reflection
	err := r.scoped(userID, dreamID).Order("created_at ASC, id ASC").Find(&reflections).Error
	return reflections, err
}
