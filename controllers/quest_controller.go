package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cppla/questforge/gamification"
	"github.com/cppla/questforge/models"
	"github.com/cppla/questforge/utils"
)

// QuestController handles quest CRUD. Awards run after the primary write
// commits and never roll it back.
type QuestController struct {
	db     *gorm.DB
	engine *gamification.Engine
}

// NewQuestController creates a new controller instance.
func NewQuestController(db *gorm.DB, engine *gamification.Engine) *QuestController {
	return &QuestController{db: db, engine: engine}
}

// CreateQuest stores a new quest and awards QUEST_CREATED.
func (q *QuestController) CreateQuest(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	type request struct {
		Title       string `json:"title" binding:"required,max=255"`
		Description string `json:"description" binding:"max=2000"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}

	quest := models.Quest{
		PublicID:    uuid.NewString(),
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.QuestStatusPending,
	}
	if err := q.db.Create(&quest).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to create quest")
		return
	}

	q.engine.AwardAsync(userID, gamification.ActionQuestCreated, gamification.Metadata{
		"questId": quest.PublicID,
	})

	utils.Success(ctx, quest)
}

// UpdateQuestStatus moves a quest to in_progress or completed and awards the
// matching action.
func (q *QuestController) UpdateQuestStatus(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	type request struct {
		Status string `json:"status" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid request payload")
		return
	}

	var quest models.Quest
	if err := q.db.Where("public_id = ? AND user_id = ?", ctx.Param("id"), userID).First(&quest).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "quest not found")
		return
	}

	var action gamification.Action
	switch req.Status {
	case models.QuestStatusInProgress:
		if quest.Status != models.QuestStatusPending {
			utils.Error(ctx, http.StatusBadRequest, 40012, "quest is not pending")
			return
		}
		action = gamification.ActionQuestInProgress
	case models.QuestStatusCompleted:
		if quest.Status == models.QuestStatusCompleted {
			utils.Error(ctx, http.StatusBadRequest, 40013, "quest already completed")
			return
		}
		action = gamification.ActionQuestCompleted
		now := time.Now()
		quest.CompletedAt = &now
	default:
		utils.Error(ctx, http.StatusBadRequest, 40014, "unknown quest status")
		return
	}

	quest.Status = req.Status
	if err := q.db.Save(&quest).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to update quest")
		return
	}

	q.engine.AwardAsync(userID, action, gamification.Metadata{"questId": quest.PublicID})

	utils.Success(ctx, quest)
}

// ListQuests returns the caller's quests, newest first.
func (q *QuestController) ListQuests(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var quests []models.Quest
	if err := q.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&quests).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50012, "failed to list quests")
		return
	}

	utils.Success(ctx, quests)
}
