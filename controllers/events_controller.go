package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/rewardledger/models"
	"github.com/cppla/rewardledger/rewards"
	"github.com/cppla/rewardledger/utils"
)

// EventsController ingests qualifying events from platform services.
type EventsController struct {
	ledger *rewards.Ledger
	cache  Cache
	clock  Clock
}

// NewEventsController creates a new controller instance. cache may be nil.
func NewEventsController(ledger *rewards.Ledger, cache Cache, clock Clock) *EventsController {
	return &EventsController{ledger: ledger, cache: cache, clock: clock}
}

type awardRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Action      string `json:"action" binding:"required"`
	EntityID    string `json:"entity_id"`
	Description string `json:"description"`
}

type userRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type moduleCompletedRequest struct {
	UserID             string   `json:"user_id" binding:"required"`
	ModuleID           string   `json:"module_id" binding:"required"`
	LessonIDs          []string `json:"lesson_ids"`
	CompletedLessonIDs []string `json:"completed_lesson_ids"`
}

type lessonCompletedRequest struct {
	UserID               string `json:"user_id" binding:"required"`
	CompletedLessonCount int    `json:"completed_lesson_count"`
	ReferredBy           string `json:"referred_by"`
	AlreadyRewarded      bool   `json:"already_rewarded"`
}

type quizCompletedRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	QuizID   string `json:"quiz_id" binding:"required"`
	Score    int    `json:"score"`
	MaxScore int    `json:"max_score"`
}

// Award grants coins for an arbitrary action, e.g. a watched video.
func (e *EventsController) Award(ctx *gin.Context) {
	var req awardRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid request body")
		return
	}
	today := e.clock.Today()
	action := models.ActionType(strings.ToLower(strings.TrimSpace(req.Action)))

	res, err := e.ledger.AwardCoins(ctx, req.UserID, action, today, req.EntityID, utils.PlainText(req.Description))
	if err != nil {
		respondLedgerError(ctx, "award", err)
		return
	}
	if res.Success {
		invalidateStatus(ctx, e.cache, today, req.UserID)
	}
	utils.Success(ctx, res)
}

// Login records a login seen by the platform's session service.
func (e *EventsController) Login(ctx *gin.Context) {
	var req userRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid request body")
		return
	}
	today := e.clock.Today()

	res, err := e.ledger.RecordLogin(ctx, req.UserID, today)
	if err != nil {
		respondLedgerError(ctx, "login", err)
		return
	}
	invalidateStatus(ctx, e.cache, today, req.UserID)
	utils.Success(ctx, res)
}

// ModuleCompleted pays the module reward when every lesson is complete.
func (e *EventsController) ModuleCompleted(ctx *gin.Context) {
	var req moduleCompletedRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid request body")
		return
	}
	today := e.clock.Today()

	res, err := e.ledger.CheckModuleCompletion(ctx, req.UserID, req.ModuleID,
		utils.NormalizeIDs(req.LessonIDs), utils.NormalizeIDs(req.CompletedLessonIDs), today)
	if err != nil {
		respondLedgerError(ctx, "module completed", err)
		return
	}
	if res != nil && res.Success {
		invalidateStatus(ctx, e.cache, today, req.UserID)
	}
	utils.Success(ctx, gin.H{"eligible": res != nil, "result": res})
}

// LessonCompleted pays the referrer when a referred learner finishes their first lesson.
func (e *EventsController) LessonCompleted(ctx *gin.Context) {
	var req lessonCompletedRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid request body")
		return
	}
	today := e.clock.Today()

	res, err := e.ledger.CheckFirstLessonReward(ctx, req.UserID, req.CompletedLessonCount, req.ReferredBy, req.AlreadyRewarded, today)
	if err != nil {
		respondLedgerError(ctx, "lesson completed", err)
		return
	}
	if res != nil && res.Success {
		invalidateStatus(ctx, e.cache, today, strings.TrimSpace(req.ReferredBy))
	}
	utils.Success(ctx, gin.H{"eligible": res != nil, "result": res})
}

// QuizCompleted pays the quiz reward and the perfect score bonus.
func (e *EventsController) QuizCompleted(ctx *gin.Context) {
	var req quizCompletedRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid request body")
		return
	}
	today := e.clock.Today()

	res, err := e.ledger.CheckQuizCompletion(ctx, req.UserID, req.QuizID, req.Score, req.MaxScore, today)
	if err != nil {
		respondLedgerError(ctx, "quiz completed", err)
		return
	}
	invalidateStatus(ctx, e.cache, today, req.UserID)
	utils.Success(ctx, res)
}

// Audit runs a reconciliation pass on demand.
func (e *EventsController) Audit(ctx *gin.Context) {
	report, err := e.ledger.Reconcile(ctx)
	if err != nil {
		respondLedgerError(ctx, "audit", err)
		return
	}
	utils.Success(ctx, report)
}
