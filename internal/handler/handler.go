package handler

import (
	"errors"
	"strconv"

	"referralengine/internal/config"
	"referralengine/internal/repository"
	"referralengine/internal/service"
	"referralengine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler wires every service behind the HTTP surface.
type Handler struct {
	referrerService    *service.ReferrerService
	leadService        *service.LeadService
	ledgerService      *service.LedgerService
	withdrawalService  *service.WithdrawalService
	leaderboardService *service.LeaderboardService
	outboxService      *service.OutboxService
}

func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		referrerService:    service.NewReferrerService(db),
		leadService:        service.NewLeadService(db, rdb, cfg),
		ledgerService:      service.NewLedgerService(db, cfg),
		withdrawalService:  service.NewWithdrawalService(db, rdb, cfg),
		leaderboardService: service.NewLeaderboardService(db),
		outboxService:      service.NewOutboxService(db),
	}
}

// businessError maps engine rejections onto the response envelope's
// business codes; anything unrecognized is a server error.
func businessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.BusinessError(c, response.CodeValidationError, err.Error())
	case errors.Is(err, service.ErrIllegalTransition):
		response.BusinessError(c, response.CodeIllegalTransition, err.Error())
	case errors.Is(err, service.ErrNotEligible):
		response.BusinessError(c, response.CodeNotEligible, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientBalance, err.Error())
	case errors.Is(err, service.ErrBelowMinimum):
		response.BusinessError(c, response.CodeBelowMinimum, err.Error())
	case errors.Is(err, service.ErrAlreadyProcessed):
		response.BusinessError(c, response.CodeAlreadyProcessed, err.Error())
	case errors.Is(err, repository.ErrLeadNotFound),
		errors.Is(err, repository.ErrWithdrawalNotFound),
		errors.Is(err, repository.ErrReferrerNotFound):
		response.NotFound(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// Referrer endpoints
// ============================================================

type RegisterReferrerRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required"`
}

// RegisterReferrer creates or returns the referrer account for a phone.
// POST /api/v1/referrer/register
func (h *Handler) RegisterReferrer(c *gin.Context) {
	var req RegisterReferrerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	account, err := h.referrerService.Register(c.Request.Context(), req.Name, req.Phone)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, account)
}

// GetBalance returns the ledger-derived spendable balance.
// GET /api/v1/referrer/balance?referrer_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	referrerID, err := strconv.ParseInt(c.Query("referrer_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid referrer_id")
		return
	}

	balance, err := h.ledgerService.Balance(c.Request.Context(), nil, referrerID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"referrer_id": referrerID,
		"balance":     balance,
	})
}

// GetStatement lists a referrer's ledger entries.
// GET /api/v1/referrer/ledger?referrer_id=xxx&page=1&page_size=10
func (h *Handler) GetStatement(c *gin.Context) {
	referrerID, err := strconv.ParseInt(c.Query("referrer_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid referrer_id")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	entries, total, err := h.ledgerService.Statement(c.Request.Context(), referrerID, page, pageSize)
	if err != nil {
		businessError(c, err)
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
// Lead endpoints
// ============================================================

// SubmitLead files a new customer referral.
// POST /api/v1/lead/submit
func (h *Handler) SubmitLead(c *gin.Context) {
	var req service.SubmitLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	lead, err := h.leadService.Submit(c.Request.Context(), &req)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"lead_no":      lead.LeadNo,
		"status":       lead.Status,
		"is_duplicate": lead.IsDuplicate,
	})
}

type SetLeadStatusRequest struct {
	LeadNo       string `json:"lead_no" binding:"required"`
	TargetStatus string `json:"target_status" binding:"required"`
	ActorID      string `json:"actor_id" binding:"required"`
}

// SetLeadStatus applies a staff-driven lifecycle transition.
// POST /api/v1/lead/status
func (h *Handler) SetLeadStatus(c *gin.Context) {
	var req SetLeadStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	lead, err := h.leadService.Transition(c.Request.Context(), req.LeadNo, req.TargetStatus, req.ActorID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, lead)
}

// GetLead returns one lead.
// GET /api/v1/lead/detail?lead_no=xxx
func (h *Handler) GetLead(c *gin.Context) {
	leadNo := c.Query("lead_no")
	if leadNo == "" {
		response.ParamError(c, "lead_no is required")
		return
	}

	lead, err := h.leadService.GetLead(c.Request.Context(), leadNo)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, lead)
}

// ListLeads lists a referrer's leads.
// GET /api/v1/lead/list?referrer_id=xxx&page=1&page_size=10
func (h *Handler) ListLeads(c *gin.Context) {
	referrerID, err := strconv.ParseInt(c.Query("referrer_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid referrer_id")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	leads, total, err := h.leadService.ListReferrerLeads(c.Request.Context(), referrerID, page, pageSize)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      leads,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// Withdrawal endpoints
// ============================================================

type RequestWithdrawalRequest struct {
	ReferrerID int64 `json:"referrer_id" binding:"required"`
	Amount     int64 `json:"amount" binding:"required,gt=0"`
}

// RequestWithdrawal opens a withdrawal against the current balance.
// POST /api/v1/withdrawal/request
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req RequestWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	withdrawal, err := h.withdrawalService.Create(c.Request.Context(), req.ReferrerID, req.Amount)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"withdrawal_no": withdrawal.WithdrawalNo,
		"status":        withdrawal.Status,
		"amount":        withdrawal.Amount,
	})
}

type ProcessWithdrawalRequest struct {
	WithdrawalNo  string `json:"withdrawal_no" binding:"required"`
	TransactionID string `json:"transaction_id"`
	ActorID       string `json:"actor_id" binding:"required"`
	Notes         string `json:"notes"`
}

// ApproveWithdrawal completes a withdrawal and debits the ledger once.
// POST /api/v1/withdrawal/approve
func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	var req ProcessWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	withdrawal, err := h.withdrawalService.Approve(c.Request.Context(), req.WithdrawalNo, req.TransactionID, req.ActorID, req.Notes)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, withdrawal)
}

// RejectWithdrawal terminates a withdrawal with no ledger effect.
// POST /api/v1/withdrawal/reject
func (h *Handler) RejectWithdrawal(c *gin.Context) {
	var req ProcessWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	withdrawal, err := h.withdrawalService.Reject(c.Request.Context(), req.WithdrawalNo, req.ActorID, req.Notes)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, withdrawal)
}

// StartWithdrawalProcessing marks a withdrawal as picked up.
// POST /api/v1/withdrawal/process
func (h *Handler) StartWithdrawalProcessing(c *gin.Context) {
	var req ProcessWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	withdrawal, err := h.withdrawalService.StartProcessing(c.Request.Context(), req.WithdrawalNo, req.ActorID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, withdrawal)
}

// ListWithdrawals lists a referrer's withdrawal requests.
// GET /api/v1/withdrawal/list?referrer_id=xxx&page=1&page_size=10
func (h *Handler) ListWithdrawals(c *gin.Context) {
	referrerID, err := strconv.ParseInt(c.Query("referrer_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid referrer_id")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	withdrawals, total, err := h.withdrawalService.ListReferrerWithdrawals(c.Request.Context(), referrerID, page, pageSize)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      withdrawals,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// Staff ledger endpoints
// ============================================================

type GrantBonusRequest struct {
	ReferrerID  int64  `json:"referrer_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Description string `json:"description"`
	ActorID     string `json:"actor_id" binding:"required"`
}

// GrantBonus appends a staff BONUS entry.
// POST /api/v1/ledger/bonus
func (h *Handler) GrantBonus(c *gin.Context) {
	var req GrantBonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	entry, err := h.ledgerService.GrantBonus(c.Request.Context(), req.ReferrerID, req.Amount, req.Description, req.ActorID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, entry)
}

// RecordAdjustment appends a staff ADJUSTMENT entry.
// POST /api/v1/ledger/adjustment
func (h *Handler) RecordAdjustment(c *gin.Context) {
	var req GrantBonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	entry, err := h.ledgerService.RecordAdjustment(c.Request.Context(), req.ReferrerID, req.Amount, req.Description, req.ActorID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, entry)
}

// ============================================================
// Outbox operator endpoints
// ============================================================

// ListFailedOutboxMessages lists notification messages parked after
// exhausting their retries.
// GET /api/v1/outbox/failed?limit=50
func (h *Handler) ListFailedOutboxMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, err := h.outboxService.ListFailed(c.Request.Context(), limit)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list": messages,
	})
}

// RequeueFailedOutboxMessages returns parked messages to the send queue.
// POST /api/v1/outbox/requeue?limit=50
func (h *Handler) RequeueFailedOutboxMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	requeued, err := h.outboxService.RequeueFailed(c.Request.Context(), limit)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"requeued": requeued,
	})
}

// ============================================================
// Leaderboard endpoint
// ============================================================

// GetLeaderboard returns the top referrers by lifetime earned total.
// GET /api/v1/leaderboard/top?limit=10
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	entries, err := h.leaderboardService.TopReferrers(c.Request.Context(), limit)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list": entries,
	})
}
