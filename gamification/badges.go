package gamification

import (
	"time"

	"go.uber.org/zap"

	"github.com/cppla/questforge/models"
)

// RequirementKind enumerates the badge requirement variants.
type RequirementKind string

const (
	ReqXP            RequirementKind = "xp"
	ReqActivityCount RequirementKind = "activity_count"
	ReqStreak        RequirementKind = "streak"
	// ReqCombination is reserved for multi-part requirements. Evaluation is
	// not implemented yet: it always fails, and logs so badge authors notice
	// the gap instead of shipping a badge nobody can earn.
	ReqCombination RequirementKind = "combination"
)

// Counter names accepted by activity_count requirements.
const (
	CounterQuestsCreated      = "questsCreated"
	CounterQuestsCompleted    = "questsCompleted"
	CounterQuestsInProgress   = "questsInProgress"
	CounterAppsAdded          = "appsAdded"
	CounterReviewInteractions = "reviewInteractions"
)

// BadgeRequirement is a single condition of a badge definition.
type BadgeRequirement struct {
	Kind      RequirementKind
	Counter   string
	Threshold int
}

// BadgeDefinition describes one badge of the fixed catalog.
type BadgeDefinition struct {
	ID           string
	Name         string
	Description  string
	Category     string
	Requirements []BadgeRequirement
}

// Catalog is the fixed badge catalog. Order is stable; evaluation walks it
// front to back.
var Catalog = []BadgeDefinition{
	{
		ID: "getting-started", Name: "Getting Started", Category: "xp",
		Description:  "Earn your first 100 XP.",
		Requirements: []BadgeRequirement{{Kind: ReqXP, Threshold: 100}},
	},
	{
		ID: "xp-collector", Name: "XP Collector", Category: "xp",
		Description:  "Reach 1000 XP.",
		Requirements: []BadgeRequirement{{Kind: ReqXP, Threshold: 1000}},
	},
	{
		ID: "xp-master", Name: "XP Master", Category: "xp",
		Description:  "Reach 5500 XP.",
		Requirements: []BadgeRequirement{{Kind: ReqXP, Threshold: 5500}},
	},
	{
		ID: "quest-creator", Name: "Quest Creator", Category: "quests",
		Description:  "Create 5 quests.",
		Requirements: []BadgeRequirement{{Kind: ReqActivityCount, Counter: CounterQuestsCreated, Threshold: 5}},
	},
	{
		ID: "quest-champion", Name: "Quest Champion", Category: "quests",
		Description:  "Complete 10 quests.",
		Requirements: []BadgeRequirement{{Kind: ReqActivityCount, Counter: CounterQuestsCompleted, Threshold: 10}},
	},
	{
		ID: "app-curator", Name: "App Curator", Category: "library",
		Description:  "Add 5 apps to your library.",
		Requirements: []BadgeRequirement{{Kind: ReqActivityCount, Counter: CounterAppsAdded, Threshold: 5}},
	},
	{
		ID: "review-contributor", Name: "Review Contributor", Category: "library",
		Description:  "Link 10 reviews.",
		Requirements: []BadgeRequirement{{Kind: ReqActivityCount, Counter: CounterReviewInteractions, Threshold: 10}},
	},
	{
		ID: "week-streak", Name: "Week Streak", Category: "streak",
		Description:  "Log in 7 days in a row.",
		Requirements: []BadgeRequirement{{Kind: ReqStreak, Threshold: 7}},
	},
	{
		ID: "dedication", Name: "Dedication", Category: "streak",
		Description:  "Log in 14 days in a row.",
		Requirements: []BadgeRequirement{{Kind: ReqStreak, Threshold: 14}},
	},
	{
		ID: "completionist", Name: "Completionist", Category: "special",
		Description: "Master every corner of QuestForge.",
		Requirements: []BadgeRequirement{{
			Kind: ReqCombination, Threshold: 0,
		}},
	},
}

// EvaluateBadges returns badges newly earned by the snapshot: every
// requirement of the definition holds and the badge is not already held.
// Callers still deduplicate against existing ids before appending.
func EvaluateBadges(rec *models.GamificationRecord, now time.Time) []models.Badge {
	var earned []models.Badge
	for _, def := range Catalog {
		if rec.HasBadge(def.ID) {
			continue
		}
		if allRequirementsMet(def, rec) {
			earned = append(earned, models.Badge{
				ID:          def.ID,
				Name:        def.Name,
				Description: def.Description,
				Category:    def.Category,
				EarnedAt:    now,
			})
		}
	}
	return earned
}

// BadgeProgress returns progress in [0,1] toward a badge. Only the first
// requirement is considered; multi-requirement progress is a known
// limitation of how badges are surfaced today.
func BadgeProgress(def BadgeDefinition, rec *models.GamificationRecord) float64 {
	if len(def.Requirements) == 0 {
		return 0
	}
	req := def.Requirements[0]
	if req.Threshold <= 0 {
		return 0
	}
	var current int
	switch req.Kind {
	case ReqXP:
		current = rec.XP
	case ReqActivityCount:
		current = counterValue(rec, req.Counter)
	case ReqStreak:
		current = rec.Streaks.CurrentLoginStreak
	default:
		return 0
	}
	progress := float64(current) / float64(req.Threshold)
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}
	return progress
}

func allRequirementsMet(def BadgeDefinition, rec *models.GamificationRecord) bool {
	for _, req := range def.Requirements {
		if !requirementMet(def.ID, req, rec) {
			return false
		}
	}
	return len(def.Requirements) > 0
}

func requirementMet(badgeID string, req BadgeRequirement, rec *models.GamificationRecord) bool {
	switch req.Kind {
	case ReqXP:
		return rec.XP >= req.Threshold
	case ReqActivityCount:
		return counterValue(rec, req.Counter) >= req.Threshold
	case ReqStreak:
		return rec.Streaks.CurrentLoginStreak >= req.Threshold
	case ReqCombination:
		// Unimplemented requirement kind; see ReqCombination.
		zap.S().Debugw("combination badge requirement not implemented", "badge", badgeID)
		return false
	default:
		zap.S().Warnw("unknown badge requirement kind", "badge", badgeID, "kind", req.Kind)
		return false
	}
}

func counterValue(rec *models.GamificationRecord, counter string) int {
	switch counter {
	case CounterQuestsCreated:
		return rec.ActivityCounts.QuestsCreated
	case CounterQuestsCompleted:
		return rec.ActivityCounts.QuestsCompleted
	case CounterQuestsInProgress:
		return rec.ActivityCounts.QuestsInProgress
	case CounterAppsAdded:
		return rec.ActivityCounts.AppsAdded
	case CounterReviewInteractions:
		return rec.ActivityCounts.ReviewInteractions
	default:
		return 0
	}
}
