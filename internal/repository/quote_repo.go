package repository

import (
	"context"
	"errors"

	"slotmarket/internal/model"

	"gorm.io/gorm"
)

var ErrQuoteNotFound = errors.New("报价请求不存在")

type QuoteRepository struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

func (r *QuoteRepository) CreateRequest(ctx context.Context, tx *gorm.DB, request *model.GuaranteeQuoteRequest) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(request).Error
}

func (r *QuoteRepository) GetByQuoteNo(ctx context.Context, quoteNo string) (*model.GuaranteeQuoteRequest, error) {
	var request model.GuaranteeQuoteRequest
	err := r.db.WithContext(ctx).Where("quote_no = ?", quoteNo).First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuoteNotFound
		}
		return nil, err
	}
	return &request, nil
}

func (r *QuoteRepository) ListByRequester(ctx context.Context, requesterID int64, page, pageSize int) ([]*model.GuaranteeQuoteRequest, int64, error) {
	var requests []*model.GuaranteeQuoteRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.GuaranteeQuoteRequest{}).Where("requester_id = ?", requesterID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&requests).Error

	return requests, total, err
}

func (r *QuoteRepository) CreateMessage(ctx context.Context, tx *gorm.DB, message *model.NegotiationMessage) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(message).Error
}

func (r *QuoteRepository) ListMessages(ctx context.Context, quoteNo string) ([]*model.NegotiationMessage, error) {
	var messages []*model.NegotiationMessage
	err := r.db.WithContext(ctx).
		Where("quote_no = ?", quoteNo).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}
