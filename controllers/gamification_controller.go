package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/questforge/gamification"
	"github.com/cppla/questforge/utils"
)

// GamificationController is the dashboard read path.
type GamificationController struct {
	engine *gamification.Engine
}

// NewGamificationController creates a new controller instance.
func NewGamificationController(engine *gamification.Engine) *GamificationController {
	return &GamificationController{engine: engine}
}

// GetProfile returns the caller's gamification record plus derived progress.
func (g *GamificationController) GetProfile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	rec, err := g.engine.UserData(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to load gamification data")
		return
	}

	utils.Success(ctx, gin.H{
		"record":           rec,
		"xp_to_next_level": gamification.XPForNextLevel(rec.XP),
	})
}

// GetBadges returns the badge catalog with earned flags and progress.
func (g *GamificationController) GetBadges(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	rec, err := g.engine.UserData(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to load gamification data")
		return
	}

	type badgeView struct {
		ID          string  `json:"id"`
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Category    string  `json:"category"`
		Earned      bool    `json:"earned"`
		Progress    float64 `json:"progress"`
	}
	badges := make([]badgeView, 0, len(gamification.Catalog))
	for _, def := range gamification.Catalog {
		badges = append(badges, badgeView{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Category:    def.Category,
			Earned:      rec.HasBadge(def.ID),
			Progress:    gamification.BadgeProgress(def, rec),
		})
	}

	utils.Success(ctx, badges)
}

// GetStreak returns the caller's login streak state.
func (g *GamificationController) GetStreak(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	rec, err := g.engine.UserData(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to load gamification data")
		return
	}

	utils.Success(ctx, gin.H{
		"current_login_streak": rec.Streaks.CurrentLoginStreak,
		"longest_login_streak": rec.Streaks.LongestLoginStreak,
		"last_login_date":      rec.Streaks.LastLoginDate,
		"next_bonus":           gamification.StreakBonus(rec.Streaks.CurrentLoginStreak + 1),
	})
}

// GetStats exposes engine health counters, most importantly how many
// background awards have been dropped since boot.
func (g *GamificationController) GetStats(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		"dropped_awards": g.engine.DroppedAwards(),
	})
}
