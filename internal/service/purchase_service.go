package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"slotmarket/internal/billing"
	"slotmarket/internal/bizerr"
	"slotmarket/internal/config"
	"slotmarket/internal/infrastructure/lock"
	"slotmarket/internal/model"
	"slotmarket/internal/repository"
	"slotmarket/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ============================================================================
// 槽位购买事务
// ============================================================================
//
// 【关键点】购买是整个系统最核心的操作，步骤固定：
//
//   1. 校验（表单字段/数量/天数/关键词去重）—— 失败时无任何落库副作用
//   2. 逐行计价，汇总应付总额
//   3. 按余额快照生成扣款计划（先赠送后充值）
//   4. 写入购买意向(STARTED) -> 原子条件扣款 —— 第一个持久化副作用，回滚锚点
//   5/6. 单个数据库事务内：插入槽位 + 资金流水 + 托管记录 + 意向标记 COMMITTED
//        事务失败时同步回补余额，再向调用方报错
//   7. 购买完成通知 —— 尽力而为，失败只记日志，绝不回滚
//
// 保量型活动不走本事务，入口处直接拦截并引导到报价流程。

type PurchaseService struct {
	db               *gorm.DB
	redisClient      *redis.Client
	cfg              *config.Config
	campaignRepo     *repository.CampaignRepository
	slotRepo         *repository.SlotRepository
	balanceRepo      *repository.BalanceRepository
	cashHistoryRepo  *repository.CashHistoryRepository
	pendingRepo      *repository.PendingBalanceRepository
	intentRepo       *repository.IntentRepository
	notificationRepo *repository.NotificationRepository
	outboxRepo       *repository.OutboxRepository
}

func NewPurchaseService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *PurchaseService {
	return &PurchaseService{
		db:               db,
		redisClient:      redisClient,
		cfg:              cfg,
		campaignRepo:     repository.NewCampaignRepository(db),
		slotRepo:         repository.NewSlotRepository(db),
		balanceRepo:      repository.NewBalanceRepository(db),
		cashHistoryRepo:  repository.NewCashHistoryRepository(db),
		pendingRepo:      repository.NewPendingBalanceRepository(db),
		intentRepo:       repository.NewIntentRepository(db),
		notificationRepo: repository.NewNotificationRepository(db),
		outboxRepo:       repository.NewOutboxRepository(db),
	}
}

// PurchaseLine 关键词购买行
type PurchaseLine struct {
	KeywordID   int64  `json:"keyword_id" binding:"required"`
	KeywordText string `json:"keyword_text"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
}

type PurchaseRequest struct {
	RequestID     string            `json:"request_id" binding:"required"` // 幂等ID，客户端生成
	UserID        int64             `json:"user_id" binding:"required"`
	CampaignID    int64             `json:"campaign_id" binding:"required"`
	DurationDays  int               `json:"duration_days"`
	Lines         []PurchaseLine    `json:"lines"`          // 关键词模式：每行一个关键词
	ManualQty     int               `json:"manual_qty"`     // 手动录入模式：无关键词，单行购买
	Fields        map[string]string `json:"fields"`         // 购买表单答案
	ExpectedStart string            `json:"expected_start"` // 预计开始日期 2006-01-02，空则当天
}

type PurchaseResponse struct {
	IntentNo string   `json:"intent_no"`
	SlotNos  []string `json:"slot_nos"`
	Payable  int64    `json:"payable"`
	FreeUsed int64    `json:"free_used"`
	PaidUsed int64    `json:"paid_used"`
	Message  string   `json:"message,omitempty"`
}

var numericPattern = regexp.MustCompile(`^[0-9]+$`)

func (s *PurchaseService) Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResponse, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}

	// 保量型活动的购买在入口处分流到报价协商，绝不会走到扣款
	if campaign.SlotType == model.SlotTypeGuarantee {
		return nil, bizerr.NewValidation("campaign_id", "保量型活动不支持直接购买，请提交报价请求")
	}

	// 幂等校验
	existing, err := s.intentRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询购买意向失败: %w", err)
	}
	if existing != nil {
		return s.replay(existing)
	}

	// 获取按用户维度的分布式锁，防止同一用户并发购买
	purchaseLock := lock.NewPurchaseLock(s.redisClient, req.UserID, req.RequestID)
	err = purchaseLock.Lock(ctx, 100*time.Millisecond, 30)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer purchaseLock.Unlock(ctx)

	// 获取锁后再次检查幂等
	existing, err = s.intentRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询购买意向失败: %w", err)
	}
	if existing != nil {
		return s.replay(existing)
	}

	// 步骤1：校验。此处失败不产生任何落库副作用
	if err := s.validate(ctx, campaign, req); err != nil {
		return nil, err
	}

	// 步骤2：逐行计价
	quotes, payable, err := s.priceLines(campaign, req)
	if err != nil {
		return nil, err
	}

	// 步骤3：按余额快照生成扣款计划
	balance, err := s.balanceRepo.GetOrCreate(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("获取余额失败: %w", err)
	}

	plan, err := billing.PlanDebit(billing.BalanceSnapshot{
		Free:  balance.FreeBalance,
		Paid:  balance.PaidBalance,
		Total: balance.TotalBalance,
	}, payable)
	if err != nil {
		return nil, err
	}

	// 步骤4：意向先行，再原子扣款
	intent := &model.PurchaseIntent{
		IntentNo:      idgen.GenerateIntentNo(),
		RequestID:     req.RequestID,
		UserID:        req.UserID,
		CampaignID:    req.CampaignID,
		PayableAmount: payable,
		FreeUsed:      plan.FreeUsed,
		PaidUsed:      plan.PaidUsed,
		Status:        model.IntentStatusStarted,
	}
	if err := s.intentRepo.Create(ctx, nil, intent); err != nil {
		return nil, fmt.Errorf("写入购买意向失败: %w", err)
	}

	err = s.balanceRepo.Debit(ctx, nil, req.UserID, plan.FreeUsed, plan.PaidUsed, balance.Version)
	if err != nil {
		// 扣款未生效，意向直接作废
		s.compensateIntent(ctx, intent, false)
		if errors.Is(err, repository.ErrBalanceNotEnough) {
			return nil, &bizerr.InsufficientBalanceError{
				Payable:   payable,
				Total:     balance.TotalBalance,
				Shortfall: payable - balance.TotalBalance,
			}
		}
		if errors.Is(err, repository.ErrOptimisticLock) {
			return nil, errors.New("系统繁忙，请重试")
		}
		return nil, fmt.Errorf("扣款失败: %w", err)
	}

	// 步骤5/6：槽位 + 流水 + 托管在同一事务内落库
	slotNos, txErr := s.persistPurchase(ctx, campaign, req, intent, quotes, plan)
	if txErr != nil {
		// 【关键点】同步回补余额后才能向调用方报错，
		// 用户绝不能观察到"钱被扣了但既没有槽位也没恢复余额"的中间态
		s.compensateIntent(ctx, intent, true)
		if errors.Is(txErr, repository.ErrDuplicateKeyword) {
			return nil, &bizerr.ConflictError{
				Resource: "slot",
				Message:  "关键词已存在进行中的槽位，请刷新后重新选择",
			}
		}
		return nil, fmt.Errorf("购买失败: %w", txErr)
	}

	// 步骤7：购买完成通知，失败只记日志
	s.notifyPurchaseCompleted(ctx, req.UserID, intent, slotNos)

	log.Printf("购买成功: intentNo=%s, userID=%d, payable=%d, slots=%d",
		intent.IntentNo, req.UserID, payable, len(slotNos))

	return &PurchaseResponse{
		IntentNo: intent.IntentNo,
		SlotNos:  slotNos,
		Payable:  payable,
		FreeUsed: plan.FreeUsed,
		PaidUsed: plan.PaidUsed,
		Message:  "购买成功",
	}, nil
}

// replay 幂等重放：按意向状态分流，只有 COMMITTED 才算"已处理"
//
//	COMMITTED   -> 原样返回当初的购买结果（含槽位编号）
//	STARTED     -> 同请求仍在处理中，报冲突让调用方稍后再查
//	COMPENSATED -> 上次购买已失败退款，报错并要求换新请求ID
//
// 失败的意向绝不能伪装成成功，否则调用方以为买到了槽位
func (s *PurchaseService) replay(intent *model.PurchaseIntent) (*PurchaseResponse, error) {
	switch intent.Status {
	case model.IntentStatusCommitted:
		slotNos, err := intent.ParseSlotNos()
		if err != nil {
			return nil, fmt.Errorf("解析意向槽位编号失败: %w", err)
		}
		return &PurchaseResponse{
			IntentNo: intent.IntentNo,
			SlotNos:  slotNos,
			Payable:  intent.PayableAmount,
			FreeUsed: intent.FreeUsed,
			PaidUsed: intent.PaidUsed,
			Message:  "请求已处理，请勿重复提交",
		}, nil
	case model.IntentStatusStarted:
		return nil, &bizerr.ConflictError{
			Resource: "purchase",
			Message:  "相同请求正在处理中，请稍后查询结果",
		}
	default:
		return nil, &bizerr.ConflictError{
			Resource: "purchase",
			Message:  "上一次购买已失败并退款，请更换请求ID后重试",
		}
	}
}

// validate 购买前校验：表单字段、数量、天数、关键词去重
func (s *PurchaseService) validate(ctx context.Context, campaign *model.Campaign, req *PurchaseRequest) error {
	if campaign.Status != model.CampaignStatusActive {
		return bizerr.NewValidation("campaign_id", "活动未上架，无法购买")
	}
	if req.DurationDays < 1 {
		return bizerr.NewValidation("duration_days", "投放天数必须大于0")
	}

	if len(req.Lines) == 0 {
		// 手动录入模式：单行购买，无关键词
		if req.ManualQty < 1 {
			return bizerr.NewValidation("manual_qty", "购买数量必须大于0")
		}
	} else {
		seen := make(map[int64]bool, len(req.Lines))
		for _, line := range req.Lines {
			if line.KeywordID <= 0 {
				return bizerr.NewValidation("keyword_id", "关键词ID不合法")
			}
			if line.Quantity < 1 {
				return bizerr.NewValidation("quantity", "购买数量必须大于0")
			}
			if seen[line.KeywordID] {
				return bizerr.NewValidation("keyword_id", "同一关键词不能重复选择")
			}
			seen[line.KeywordID] = true
		}

		// 已有非终态槽位的关键词不可重复购买
		excluded, err := s.excludedKeywordIDs(ctx, req.UserID, req.CampaignID)
		if err != nil {
			return fmt.Errorf("查询已购关键词失败: %w", err)
		}
		for _, line := range req.Lines {
			if excluded[line.KeywordID] {
				return &bizerr.ConflictError{
					Resource: "keyword",
					Message:  fmt.Sprintf("关键词 %d 已存在进行中的槽位", line.KeywordID),
				}
			}
		}
	}

	if req.ExpectedStart != "" {
		if _, err := time.Parse("2006-01-02", req.ExpectedStart); err != nil {
			return bizerr.NewValidation("expected_start", "日期格式不合法，应为 YYYY-MM-DD")
		}
	}

	return s.validateFields(campaign, req.Fields)
}

// validateFields 按活动定义的表单字段校验购买答案
func (s *PurchaseService) validateFields(campaign *model.Campaign, answers map[string]string) error {
	fields, err := campaign.ParseUserInputFields()
	if err != nil {
		return fmt.Errorf("解析活动表单定义失败: %w", err)
	}

	for _, field := range fields {
		value, ok := answers[field.Name]
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			if field.Required {
				return bizerr.NewValidation(field.Name, "必填项不能为空")
			}
			continue
		}

		switch field.FieldType {
		case model.FieldTypeNumber:
			if !numericPattern.MatchString(value) {
				return bizerr.NewValidation(field.Name, "只能输入数字")
			}
		case model.FieldTypeURL:
			u, err := url.ParseRequestURI(value)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return bizerr.NewValidation(field.Name, "链接格式不合法")
			}
		}
	}

	return nil
}

// priceLines 逐行计价并汇总
func (s *PurchaseService) priceLines(campaign *model.Campaign, req *PurchaseRequest) ([]*billing.QuoteResult, int64, error) {
	lineCount := len(req.Lines)
	if lineCount == 0 {
		lineCount = 1
	}

	quotes := make([]*billing.QuoteResult, 0, lineCount)
	var payable int64

	if len(req.Lines) == 0 {
		quote, err := billing.Quote(campaign.UnitPrice, req.ManualQty, campaign.MinQuantity, req.DurationDays)
		if err != nil {
			return nil, 0, err
		}
		return append(quotes, quote), quote.Payable, nil
	}

	for _, line := range req.Lines {
		quote, err := billing.Quote(campaign.UnitPrice, line.Quantity, campaign.MinQuantity, req.DurationDays)
		if err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, quote)
		payable += quote.Payable
	}

	return quotes, payable, nil
}

// persistPurchase 步骤5/6：槽位、流水、托管、意向提交在同一事务内落库
func (s *PurchaseService) persistPurchase(
	ctx context.Context,
	campaign *model.Campaign,
	req *PurchaseRequest,
	intent *model.PurchaseIntent,
	quotes []*billing.QuoteResult,
	plan *billing.DebitPlan,
) ([]string, error) {
	linePrices := make([]int64, len(quotes))
	for i, q := range quotes {
		linePrices[i] = q.Payable
	}
	splits := billing.SplitLines(plan, linePrices)

	start := time.Now().Format("2006-01-02")
	if req.ExpectedStart != "" {
		start = req.ExpectedStart
	}
	startDate, _ := time.Parse("2006-01-02", start)

	slotNos := make([]string, 0, len(quotes))

	err := s.db.Transaction(func(tx *gorm.DB) error {
		pendingEntries := make([]*model.PendingBalanceEntry, 0, len(quotes))

		for i, quote := range quotes {
			slotNo := idgen.GenerateSlotNo()

			var keywordID *int64
			var keywordText string
			if len(req.Lines) > 0 {
				id := req.Lines[i].KeywordID
				keywordID = &id
				keywordText = req.Lines[i].KeywordText
			}

			input := &model.SlotInput{
				Price:         quote.Payable,
				Quantity:      quote.Quantity,
				DurationDays:  quote.DurationDays,
				ExpectedStart: start,
				ExpectedEnd:   startDate.AddDate(0, 0, quote.DurationDays).Format("2006-01-02"),
				Fields:        req.Fields,
			}
			if keywordText != "" {
				input.Details = []model.SlotLineDetail{{
					KeywordID:   keywordID,
					KeywordText: keywordText,
					Quantity:    quote.Quantity,
					Price:       quote.Payable,
				}}
			}
			inputData, err := json.Marshal(input)
			if err != nil {
				return fmt.Errorf("序列化槽位数据失败: %w", err)
			}

			slot := &model.Slot{
				SlotNo:        slotNo,
				OwnerUserID:   req.UserID,
				CampaignID:    req.CampaignID,
				DistributorID: campaign.OwnerID,
				KeywordID:     keywordID,
				Quantity:      quote.Quantity,
				Status:        model.SlotStatusPending,
				InputData:     string(inputData),
			}
			if keywordID != nil {
				key := model.BuildSlotActiveKey(req.UserID, req.CampaignID, *keywordID)
				slot.ActiveKey = &key
			}

			if err := s.slotRepo.Create(ctx, tx, slot); err != nil {
				return err
			}
			slotNos = append(slotNos, slotNo)

			pendingEntries = append(pendingEntries, &model.PendingBalanceEntry{
				SlotNo:     slotNo,
				UserID:     req.UserID,
				CampaignID: req.CampaignID,
				Amount:     splits[i].Amount,
				FreeAmount: splits[i].FreeAmount,
				PaidAmount: splits[i].PaidAmount,
				Status:     model.PendingBalanceStatusPending,
			})
		}

		// 流水：命中几个余额桶就写几条，金额为负表示出账
		cashEntries := make([]*model.CashHistoryEntry, 0, 2)
		remark := fmt.Sprintf("购买槽位-%s-%s", campaign.Name, intent.IntentNo)
		if plan.FreeUsed > 0 {
			cashEntries = append(cashEntries, &model.CashHistoryEntry{
				TransactionNo:   idgen.GenerateTransactionNo(),
				UserID:          req.UserID,
				Amount:          -plan.FreeUsed,
				BalanceType:     model.BalanceTypeFree,
				TransactionType: model.CashTransactionTypePurchase,
				ReferenceSlotNo: slotNos[0],
				Remark:          remark,
			})
		}
		if plan.PaidUsed > 0 {
			cashEntries = append(cashEntries, &model.CashHistoryEntry{
				TransactionNo:   idgen.GenerateTransactionNo(),
				UserID:          req.UserID,
				Amount:          -plan.PaidUsed,
				BalanceType:     model.BalanceTypePaid,
				TransactionType: model.CashTransactionTypePurchase,
				ReferenceSlotNo: slotNos[0],
				Remark:          remark,
			})
		}
		if err := s.cashHistoryRepo.CreateBatch(ctx, tx, cashEntries); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		if err := s.pendingRepo.CreateBatch(ctx, tx, pendingEntries); err != nil {
			return fmt.Errorf("写入托管记录失败: %w", err)
		}

		slotNosJSON, err := json.Marshal(slotNos)
		if err != nil {
			return fmt.Errorf("序列化槽位编号失败: %w", err)
		}
		if err := s.intentRepo.Commit(ctx, tx, intent.IntentNo, string(slotNosJSON)); err != nil {
			return fmt.Errorf("提交购买意向失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return slotNos, nil
}

// compensateIntent 作废意向；restoreBalance 为 true 时回补已扣余额
//
// 先抢意向状态（STARTED -> COMPENSATED 条件更新）再回补，
// 和补偿任务共用同一把幂等闸门，同一笔扣款绝不会被回补两次。
// 抢状态失败说明补偿任务已接手，这里直接放手。
func (s *PurchaseService) compensateIntent(ctx context.Context, intent *model.PurchaseIntent, restoreBalance bool) {
	if err := s.intentRepo.UpdateStatus(ctx, nil, intent.IntentNo, model.IntentStatusStarted, model.IntentStatusCompensated); err != nil {
		log.Printf("意向已被补偿任务处理: intentNo=%s, err=%v", intent.IntentNo, err)
		return
	}
	if restoreBalance {
		if err := s.balanceRepo.Restore(ctx, nil, intent.UserID, intent.FreeUsed, intent.PaidUsed); err != nil {
			log.Printf("回补余额失败: intentNo=%s, userID=%d, err=%v", intent.IntentNo, intent.UserID, err)
		}
	}
}

// notifyPurchaseCompleted 步骤7：站内通知 + 发件箱事件，失败只记日志
func (s *PurchaseService) notifyPurchaseCompleted(ctx context.Context, userID int64, intent *model.PurchaseIntent, slotNos []string) {
	notification := &model.Notification{
		UserID:  userID,
		Type:    model.NotificationTypePurchaseCompleted,
		Title:   "购买完成",
		Message: fmt.Sprintf("已成功购买 %d 个槽位，合计 %d", len(slotNos), intent.PayableAmount),
		Link:    "/slots",
	}
	if err := s.notificationRepo.Create(ctx, nil, notification); err != nil {
		log.Printf("写入购买通知失败: intentNo=%s, err=%v", intent.IntentNo, err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"intent_no": intent.IntentNo,
		"user_id":   userID,
		"payable":   intent.PayableAmount,
		"slot_nos":  slotNos,
		"type":      model.NotificationTypePurchaseCompleted,
		"paid_at":   time.Now().Format(time.RFC3339),
	})
	outboxMsg := &model.OutboxMessage{
		MessageKey: intent.IntentNo,
		Topic:      s.cfg.Kafka.Topic.NotificationEvents,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, nil, outboxMsg); err != nil {
		log.Printf("写入通知事件失败: intentNo=%s, err=%v", intent.IntentNo, err)
	}
}

// excludedKeywordIDs 去重过滤器的核心查询（供校验内部使用）
// 并集两个来源：槽位的直接关键词字段 + 内嵌明细行里的关键词
func (s *PurchaseService) excludedKeywordIDs(ctx context.Context, userID, campaignID int64) (map[int64]bool, error) {
	slots, err := s.slotRepo.ListActiveByUserAndCampaign(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	return collectKeywordIDs(slots)
}

func collectKeywordIDs(slots []*model.Slot) (map[int64]bool, error) {
	excluded := make(map[int64]bool)
	for _, slot := range slots {
		if slot.KeywordID != nil {
			excluded[*slot.KeywordID] = true
		}
		input, err := slot.ParseInput()
		if err != nil {
			return nil, fmt.Errorf("解析槽位数据失败: slotNo=%s, err=%w", slot.SlotNo, err)
		}
		for _, detail := range input.Details {
			if detail.KeywordID != nil {
				excluded[*detail.KeywordID] = true
			}
		}
	}
	return excluded, nil
}
