package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"slotmarket/internal/billing"
	"slotmarket/internal/bizerr"
	"slotmarket/internal/model"
	"slotmarket/internal/repository"
	"slotmarket/pkg/idgen"

	"gorm.io/gorm"
)

// ============================================================================
// 保量报价协商流程
// ============================================================================
//
// 保量型活动用报价请求 + 消息线程替代直接购买：
// 此阶段不动余额、不生成槽位，协商与最终购买完全解耦。
// 报价请求本身只有一次落库；随后的首条协商消息是尽力而为的补充写入，
// 失败不影响请求本身的成功。

type QuoteService struct {
	db           *gorm.DB
	campaignRepo *repository.CampaignRepository
	quoteRepo    *repository.QuoteRepository
}

func NewQuoteService(db *gorm.DB) *QuoteService {
	return &QuoteService{
		db:           db,
		campaignRepo: repository.NewCampaignRepository(db),
		quoteRepo:    repository.NewQuoteRepository(db),
	}
}

type QuoteRequestInput struct {
	CampaignID     int64  `json:"campaign_id" binding:"required"`
	RequesterID    int64  `json:"requester_id" binding:"required"`
	ProposedAmount int64  `json:"proposed_amount"` // 按 budget_type 解释：单日/单次金额或总价
	BudgetType     string `json:"budget_type"`     // DAILY / TOTAL
	KeywordID      *int64 `json:"keyword_id"`
	KeywordText    string `json:"keyword_text"`
	Rationale      string `json:"rationale"` // 报价说明（自由文本）
	InputData      string `json:"input_data"`
}

type QuoteRequestResult struct {
	QuoteNo       string `json:"quote_no"`
	ProposedTotal int64  `json:"proposed_total"` // 税前报价总额
	Payable       int64  `json:"payable"`        // 含税估算金额（仅展示用）
	DailyRate     int64  `json:"daily_rate"`     // 单次等价金额（向上取整）
}

// RequestQuote 提交保量报价请求
// 保量次数与保量周期取自活动本身，客户不可自行指定
func (s *QuoteService) RequestQuote(ctx context.Context, input *QuoteRequestInput) (*QuoteRequestResult, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, input.CampaignID)
	if err != nil {
		return nil, err
	}

	if campaign.SlotType != model.SlotTypeGuarantee {
		return nil, bizerr.NewValidation("campaign_id", "该活动不是保量型，请直接购买")
	}
	if campaign.Status != model.CampaignStatusActive {
		return nil, bizerr.NewValidation("campaign_id", "活动未上架，无法提交报价")
	}

	// 区间校验：税前总额必须落在活动的协商价区间内
	estimate, err := billing.GuaranteeQuote(
		input.ProposedAmount,
		input.BudgetType,
		campaign.GuaranteeCount,
		campaign.MinGuaranteePrice,
		campaign.MaxGuaranteePrice,
	)
	if err != nil {
		return nil, err
	}

	quoteNo := idgen.GenerateQuoteNo()
	request := &model.GuaranteeQuoteRequest{
		QuoteNo:             quoteNo,
		CampaignID:          campaign.ID,
		RequesterID:         input.RequesterID,
		TargetRank:          campaign.TargetRank,
		GuaranteeCount:      campaign.GuaranteeCount,
		GuaranteeUnit:       campaign.GuaranteeUnit,
		GuaranteePeriodDays: campaign.GuaranteePeriodDays,
		ProposedAmount:      input.ProposedAmount,
		BudgetType:          input.BudgetType,
		KeywordID:           input.KeywordID,
		InputData:           input.InputData,
		Status:              model.QuoteStatusRequested,
	}

	if err := s.quoteRepo.CreateRequest(ctx, nil, request); err != nil {
		return nil, fmt.Errorf("提交报价请求失败: %w", err)
	}

	// 首条协商消息：汇总报价内容，写入失败不影响请求本身
	s.appendInitialMessage(ctx, request, input, estimate)

	return &QuoteRequestResult{
		QuoteNo:       quoteNo,
		ProposedTotal: estimate.ProposedTotal,
		Payable:       estimate.Payable,
		DailyRate:     billing.DailyEquivalent(estimate.ProposedTotal, campaign.GuaranteeCount),
	}, nil
}

func (s *QuoteService) appendInitialMessage(ctx context.Context, request *model.GuaranteeQuoteRequest, input *QuoteRequestInput, estimate *billing.GuaranteeQuoteResult) {
	var sb strings.Builder
	budgetLabel := "总价"
	if input.BudgetType == model.BudgetTypeDaily {
		budgetLabel = "单次报价"
	}
	fmt.Fprintf(&sb, "【报价请求】%s %d，合计 %d（含税估算 %d）",
		budgetLabel, input.ProposedAmount, estimate.ProposedTotal, estimate.Payable)
	if input.KeywordText != "" {
		fmt.Fprintf(&sb, "，关键词：%s", input.KeywordText)
	}
	if strings.TrimSpace(input.Rationale) != "" {
		fmt.Fprintf(&sb, "\n%s", input.Rationale)
	}

	message := &model.NegotiationMessage{
		QuoteNo:  request.QuoteNo,
		SenderID: request.RequesterID,
		Body:     sb.String(),
	}
	if err := s.quoteRepo.CreateMessage(ctx, nil, message); err != nil {
		log.Printf("写入首条协商消息失败: quoteNo=%s, err=%v", request.QuoteNo, err)
	}
}

func (s *QuoteService) GetQuote(ctx context.Context, quoteNo string) (*model.GuaranteeQuoteRequest, error) {
	return s.quoteRepo.GetByQuoteNo(ctx, quoteNo)
}

func (s *QuoteService) ListUserQuotes(ctx context.Context, requesterID int64, page, pageSize int) ([]*model.GuaranteeQuoteRequest, int64, error) {
	return s.quoteRepo.ListByRequester(ctx, requesterID, page, pageSize)
}

// AppendMessage 向协商线程追加消息
func (s *QuoteService) AppendMessage(ctx context.Context, quoteNo string, senderID int64, body string) (*model.NegotiationMessage, error) {
	if strings.TrimSpace(body) == "" {
		return nil, bizerr.NewValidation("body", "消息内容不能为空")
	}

	if _, err := s.quoteRepo.GetByQuoteNo(ctx, quoteNo); err != nil {
		return nil, err
	}

	message := &model.NegotiationMessage{
		QuoteNo:  quoteNo,
		SenderID: senderID,
		Body:     body,
	}
	if err := s.quoteRepo.CreateMessage(ctx, nil, message); err != nil {
		return nil, fmt.Errorf("发送消息失败: %w", err)
	}
	return message, nil
}

func (s *QuoteService) ListMessages(ctx context.Context, quoteNo string) ([]*model.NegotiationMessage, error) {
	return s.quoteRepo.ListMessages(ctx, quoteNo)
}
