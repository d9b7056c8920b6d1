package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/internal/model"
)

// ReceiptRepository 收据只增不删
type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

func (r *ReceiptRepository) Create(receipt *model.Receipt) error {
	return r.db.Create(receipt).Error
}

func (r *ReceiptRepository) GetByID(id int64) (*model.Receipt, error) {
	var receipt model.Receipt
	err := r.db.Where("id = ?", id).First(&receipt).Error
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *ReceiptRepository) GetByInvoiceID(invoiceID string) (*model.Receipt, error) {
	var receipt model.Receipt
	err := r.db.Where("stripe_invoice_id = ?", invoiceID).First(&receipt).Error
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *ReceiptRepository) ExistsByNumber(number string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Receipt{}).Where("receipt_number = ?", number).Count(&count).Error
	return count > 0, err
}

func (r *ReceiptRepository) UpdateArchiveKey(id int64, key string) error {
	return r.db.Model(&model.Receipt{}).Where("id = ?", id).Update("archive_key", key).Error
}

// ListUnarchived 尚未归档的收据，按签发时间升序
func (r *ReceiptRepository) ListUnarchived(limit int) ([]*model.Receipt, error) {
	var receipts []*model.Receipt
	err := r.db.Where("archive_key = ? OR archive_key IS NULL", "").
		Order("issued_at ASC, id ASC").
		Limit(limit).
		Find(&receipts).Error
	return receipts, err
}

func (r *ReceiptRepository) ListByUser(userID int64, page, pageSize int) ([]*model.Receipt, int64, error) {
	var receipts []*model.Receipt
	var total int64

	query := r.db.Model(&model.Receipt{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("issued_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&receipts).Error; err != nil {
		return nil, 0, err
	}

	return receipts, total, nil
}
