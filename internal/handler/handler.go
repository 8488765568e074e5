package handler

import (
	"errors"
	"strconv"

	"slotmarket/internal/bizerr"
	"slotmarket/internal/config"
	"slotmarket/internal/repository"
	"slotmarket/internal/service"
	"slotmarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	balanceService  *service.BalanceService
	campaignService *service.CampaignService
	purchaseService *service.PurchaseService
	slotService     *service.SlotService
	quoteService    *service.QuoteService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		balanceService:  service.NewBalanceService(db),
		campaignService: service.NewCampaignService(db, cfg),
		purchaseService: service.NewPurchaseService(db, rdb, cfg),
		slotService:     service.NewSlotService(db),
		quoteService:    service.NewQuoteService(db),
	}
}

// writeError 按错误类别映射业务错误码
// 校验类/余额类/冲突类错误前端据此决定是重新填写、提示充值还是刷新列表
func writeError(c *gin.Context, err error) {
	switch {
	case bizerr.IsValidation(err):
		response.BusinessError(c, response.CodeValidationFailed, err.Error())
	case bizerr.IsInsufficientBalance(err):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case bizerr.IsConflict(err):
		response.BusinessError(c, response.CodeDuplicateKeyword, err.Error())
	case errors.Is(err, service.ErrReapprovalConfirmationRequired):
		response.BusinessError(c, response.CodeReapprovalConfirmation, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		response.BusinessError(c, response.CodePermissionDenied, err.Error())
	case errors.Is(err, repository.ErrCampaignNotFound):
		response.BusinessError(c, response.CodeCampaignNotFound, err.Error())
	case errors.Is(err, repository.ErrCampaignStatusInvalid):
		response.BusinessError(c, response.CodeCampaignStatusInvalid, err.Error())
	case errors.Is(err, repository.ErrSlotStatusInvalid):
		response.BusinessError(c, response.CodeSlotStatusInvalid, err.Error())
	case errors.Is(err, repository.ErrSlotNotFound),
		errors.Is(err, repository.ErrQuoteNotFound):
		response.Error(c, response.CodeNotFound, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 余额相关接口
// ============================================================

// GetBalance 查询用户余额
// GET /api/v1/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	balance, err := h.balanceService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":       balance.UserID,
		"free_balance":  balance.FreeBalance,
		"paid_balance":  balance.PaidBalance,
		"total_balance": balance.TotalBalance,
	})
}

// RechargeRequest 充值请求
type RechargeRequest struct {
	UserID      int64  `json:"user_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	BalanceType string `json:"balance_type" binding:"required"` // FREE / PAID
}

// Recharge 充值接口（简化版，实际应该走支付渠道）
// POST /api/v1/balance/recharge
func (h *Handler) Recharge(c *gin.Context) {
	var req RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.balanceService.Recharge(c.Request.Context(), req.UserID, req.Amount, req.BalanceType); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "充值成功",
	})
}

// ListCashHistory 查询资金流水
// GET /api/v1/balance/history?user_id=xxx&page=1&page_size=10
func (h *Handler) ListCashHistory(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	entries, total, err := h.balanceService.ListCashHistory(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 活动相关接口
// ============================================================

// CreateCampaignRequest 新建活动请求
type CreateCampaignRequest struct {
	OwnerID int64                     `json:"owner_id" binding:"required"` // 分销商ID
	Input   service.SaveCampaignInput `json:"campaign" binding:"required"`
}

// CreateCampaign 分销商新建活动，一律进入待审核
// POST /api/v1/campaign/create
func (h *Handler) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	campaign, err := h.campaignService.Create(c.Request.Context(), req.OwnerID, &req.Input)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, campaign)
}

// UpdateCampaignRequest 修改活动请求
type UpdateCampaignRequest struct {
	CampaignID        int64                     `json:"campaign_id" binding:"required"`
	ActorID           int64                     `json:"actor_id" binding:"required"`
	Role              string                    `json:"role" binding:"required"`
	ConfirmReapproval bool                      `json:"confirm_reapproval"` // 用户已确认重新送审
	Input             service.SaveCampaignInput `json:"campaign" binding:"required"`
}

// UpdateCampaign 修改活动
// POST /api/v1/campaign/update
//
// 分销商修改已上架活动且送审字段有变化时，第一次保存会返回
// CodeReapprovalConfirmation，前端确认后带 confirm_reapproval=true 重新提交。
func (h *Handler) UpdateCampaign(c *gin.Context) {
	var req UpdateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.campaignService.Update(c.Request.Context(), &service.UpdateCampaignRequest{
		CampaignID:        req.CampaignID,
		ActorID:           req.ActorID,
		Role:              req.Role,
		ConfirmReapproval: req.ConfirmReapproval,
		Input:             &req.Input,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"campaign":       result.Campaign,
		"status_changed": result.StatusChanged,
		"status":         result.NewStatus,
	})
}

// GetCampaign 查询活动详情
// GET /api/v1/campaign/detail?id=xxx
func (h *Handler) GetCampaign(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}

	campaign, err := h.campaignService.GetCampaign(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, campaign)
}

// ListCampaigns 查询活动列表
// GET /api/v1/campaign/list?status=ACTIVE&owner_id=xxx&page=1&page_size=10
func (h *Handler) ListCampaigns(c *gin.Context) {
	ownerID, _ := strconv.ParseInt(c.DefaultQuery("owner_id", "0"), 10, 64)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	filter := repository.CampaignFilter{
		Status:   c.Query("status"),
		OwnerID:  ownerID,
		SlotType: c.Query("slot_type"),
	}

	campaigns, total, err := h.campaignService.ListCampaigns(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      campaigns,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// CampaignActionRequest 活动审核/上下架请求（运营专属）
type CampaignActionRequest struct {
	CampaignID int64  `json:"campaign_id" binding:"required"`
	Role       string `json:"role" binding:"required"`
	Reason     string `json:"reason"` // 仅拒绝时必填
}

// ApproveCampaign 审核通过
// POST /api/v1/campaign/approve
func (h *Handler) ApproveCampaign(c *gin.Context) {
	h.campaignAction(c, func(req *CampaignActionRequest) error {
		return h.campaignService.Approve(c.Request.Context(), req.Role, req.CampaignID)
	})
}

// RejectCampaign 审核拒绝，拒绝原因必填
// POST /api/v1/campaign/reject
func (h *Handler) RejectCampaign(c *gin.Context) {
	h.campaignAction(c, func(req *CampaignActionRequest) error {
		return h.campaignService.Reject(c.Request.Context(), req.Role, req.CampaignID, req.Reason)
	})
}

// ActivateCampaign 强制上架被拒绝的活动
// POST /api/v1/campaign/activate
func (h *Handler) ActivateCampaign(c *gin.Context) {
	h.campaignAction(c, func(req *CampaignActionRequest) error {
		return h.campaignService.OverrideActivate(c.Request.Context(), req.Role, req.CampaignID)
	})
}

// PauseCampaign 暂停展示
// POST /api/v1/campaign/pause
func (h *Handler) PauseCampaign(c *gin.Context) {
	h.campaignAction(c, func(req *CampaignActionRequest) error {
		return h.campaignService.Pause(c.Request.Context(), req.Role, req.CampaignID)
	})
}

// ResumeCampaign 恢复展示
// POST /api/v1/campaign/resume
func (h *Handler) ResumeCampaign(c *gin.Context) {
	h.campaignAction(c, func(req *CampaignActionRequest) error {
		return h.campaignService.Resume(c.Request.Context(), req.Role, req.CampaignID)
	})
}

func (h *Handler) campaignAction(c *gin.Context, action func(*CampaignActionRequest) error) {
	var req CampaignActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := action(&req); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "操作成功",
	})
}

// ============================================================
// 购买相关接口
// ============================================================

// ExecutePurchase 购买槽位
// POST /api/v1/purchase/execute
//
// 【关键点】购买是整个系统最核心的操作，需要保证：
// 1. 幂等性：相同的 request_id 只会执行一次
// 2. 原子性：槽位、流水、托管记录必须同时落库；失败时余额同步回补
// 3. 并发安全：按用户维度的分布式锁 + 余额条件扣减 + 关键词唯一约束
func (h *Handler) ExecutePurchase(c *gin.Context) {
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.purchaseService.Purchase(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// ExcludedKeywords 查询不可重复购买的关键词集合
// GET /api/v1/purchase/excluded-keywords?user_id=xxx&campaign_id=xxx
//
// 前端在购买成功后必须重新调用本接口刷新可选关键词列表
func (h *Handler) ExcludedKeywords(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}
	campaignID, err := strconv.ParseInt(c.Query("campaign_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "campaign_id 参数错误")
		return
	}

	ids, err := h.slotService.ExcludedKeywordIDs(c.Request.Context(), userID, campaignID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"excluded_keyword_ids": ids,
	})
}

// ============================================================
// 槽位相关接口
// ============================================================

// ListSlots 查询用户槽位列表
// GET /api/v1/slot/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListSlots(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	slots, total, err := h.slotService.ListUserSlots(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      slots,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// UpdateSlotStatusRequest 槽位状态变更请求
type UpdateSlotStatusRequest struct {
	SlotNo   string `json:"slot_no" binding:"required"`
	ToStatus string `json:"to_status" binding:"required"`
}

// UpdateSlotStatus 槽位状态变更
// POST /api/v1/slot/status
func (h *Handler) UpdateSlotStatus(c *gin.Context) {
	var req UpdateSlotStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.slotService.UpdateStatus(c.Request.Context(), req.SlotNo, req.ToStatus); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "状态已更新",
	})
}

// ============================================================
// 保量报价相关接口
// ============================================================

// RequestQuote 提交保量报价请求
// POST /api/v1/quote/request
func (h *Handler) RequestQuote(c *gin.Context) {
	var req service.QuoteRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.quoteService.RequestQuote(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// ListQuoteMessages 查询协商消息线程
// GET /api/v1/quote/messages?quote_no=xxx
func (h *Handler) ListQuoteMessages(c *gin.Context) {
	quoteNo := c.Query("quote_no")
	if quoteNo == "" {
		response.ParamError(c, "quote_no 参数不能为空")
		return
	}

	messages, err := h.quoteService.ListMessages(c.Request.Context(), quoteNo)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list": messages,
	})
}

// AppendQuoteMessageRequest 追加协商消息请求
type AppendQuoteMessageRequest struct {
	QuoteNo  string `json:"quote_no" binding:"required"`
	SenderID int64  `json:"sender_id" binding:"required"`
	Body     string `json:"body" binding:"required"`
}

// AppendQuoteMessage 追加协商消息
// POST /api/v1/quote/message
func (h *Handler) AppendQuoteMessage(c *gin.Context) {
	var req AppendQuoteMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	message, err := h.quoteService.AppendMessage(c.Request.Context(), req.QuoteNo, req.SenderID, req.Body)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, message)
}
