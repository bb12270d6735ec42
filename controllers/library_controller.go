package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cppla/questforge/gamification"
	"github.com/cppla/questforge/models"
	"github.com/cppla/questforge/utils"
)

// LibraryController handles apps and linked reviews. Both mutations feed the
// gamification engine after their own write commits.
type LibraryController struct {
	db     *gorm.DB
	engine *gamification.Engine
}

// NewLibraryController creates a new controller instance.
func NewLibraryController(db *gorm.DB, engine *gamification.Engine) *LibraryController {
	return &LibraryController{db: db, engine: engine}
}

// AddApp adds an app to the caller's library and awards APP_ADDED.
func (l *LibraryController) AddApp(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	type request struct {
		Name     string `json:"name" binding:"required,max=255"`
		URL      string `json:"url" binding:"max=512"`
		Category string `json:"category" binding:"max=64"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	app := models.App{
		PublicID: uuid.NewString(),
		UserID:   userID,
		Name:     req.Name,
		URL:      req.URL,
		Category: req.Category,
	}
	if err := l.db.Create(&app).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to add app")
		return
	}

	l.engine.AwardAsync(userID, gamification.ActionAppAdded, gamification.Metadata{
		"appId": app.PublicID,
	})

	utils.Success(ctx, app)
}

// ListApps returns the caller's library, newest first.
func (l *LibraryController) ListApps(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var apps []models.App
	if err := l.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&apps).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to list apps")
		return
	}

	utils.Success(ctx, apps)
}

// CreateReview links a review to an app in the caller's library and awards
// REVIEW_INTERACTION.
func (l *LibraryController) CreateReview(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	type request struct {
		Rating  int    `json:"rating" binding:"required,min=1,max=5"`
		Content string `json:"content" binding:"max=4000"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid request payload")
		return
	}

	var app models.App
	if err := l.db.Where("public_id = ? AND user_id = ?", ctx.Param("id"), userID).First(&app).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40420, "app not found")
		return
	}

	review := models.Review{
		PublicID: uuid.NewString(),
		UserID:   userID,
		AppID:    app.ID,
		Rating:   req.Rating,
		Content:  req.Content,
	}
	if err := l.db.Create(&review).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to create review")
		return
	}

	l.engine.AwardAsync(userID, gamification.ActionReviewInteraction, gamification.Metadata{
		"appId":    app.PublicID,
		"reviewId": review.PublicID,
	})

	utils.Success(ctx, review)
}
