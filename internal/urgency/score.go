// Package urgency holds the deterministic prioritization policy for
// reported issues: the multi-factor urgency score, the fallback
// priority classifier, and the response deadline table. All weights
// are fixed policy constants.
package urgency

import (
	"strings"
	"time"

	"github.com/campuscare/campuscare-api/internal/models"
)

const (
	// MaxScore caps the final urgency score.
	MaxScore = 100

	voteCap       = 20
	escalationCap = 15
	ageCap        = 10

	votePoints       = 2
	escalationPoints = 5
	ageHoursPerPoint = 6
)

// categoryPoints ranks baseline hygiene-health risk per category.
// Washroom problems carry the highest standing risk.
var categoryPoints = map[models.IssueCategory]int{
	models.CategoryWashroom:  25,
	models.CategoryCanteen:   20,
	models.CategoryHostel:    18,
	models.CategoryClassroom: 15,
	models.CategoryLab:       15,
	models.CategoryCorridor:  10,
	models.CategoryOutdoor:   8,
	models.CategoryOther:     5,
}

var priorityPoints = map[models.IssuePriority]int{
	models.PriorityCritical: 30,
	models.PriorityHigh:     20,
	models.PriorityMedium:   10,
	models.PriorityLow:      5,
}

// Score computes the 0-100 urgency ranking for an issue. It is a
// pure function of its inputs; callers persist the result on issue
// creation, vote toggles, and priority edits.
func Score(category models.IssueCategory, priority models.IssuePriority, voteCount, escalationLevel, ageHours int) int {
	score := categoryPoints[category]
	score += priorityPoints[priority]
	score += capped(voteCount*votePoints, voteCap)
	score += capped(escalationLevel*escalationPoints, escalationCap)
	score += capped(ageHours/ageHoursPerPoint, ageCap)

	if score > MaxScore {
		return MaxScore
	}
	return score
}

// criticalKeywords force CRITICAL priority when found in a report
// description, regardless of category.
var criticalKeywords = []string{
	"emergency",
	"leak",
	"hazard",
	"overflow",
	"broken",
	"injury",
	"flood",
	"fire",
}

// highRiskCategories default to HIGH priority absent keyword matches.
var highRiskCategories = map[models.IssueCategory]bool{
	models.CategoryWashroom: true,
	models.CategoryCanteen:  true,
}

// InitialPriority derives the fallback priority for a new issue from
// its category and description. The external classification oracle,
// when available, supersedes this result.
func InitialPriority(category models.IssueCategory, description string) models.IssuePriority {
	lowered := strings.ToLower(description)
	for _, keyword := range criticalKeywords {
		if strings.Contains(lowered, keyword) {
			return models.PriorityCritical
		}
	}
	if highRiskCategories[category] {
		return models.PriorityHigh
	}
	return models.PriorityMedium
}

// dueOffsets maps priority to the response deadline window.
var dueOffsets = map[models.IssuePriority]time.Duration{
	models.PriorityCritical: 2 * time.Hour,
	models.PriorityHigh:     12 * time.Hour,
	models.PriorityMedium:   24 * time.Hour,
	models.PriorityLow:      72 * time.Hour,
}

// DueBy returns the resolution deadline for a priority, anchored at
// the creation time. The deadline is frozen once set.
func DueBy(priority models.IssuePriority, now time.Time) time.Time {
	offset, ok := dueOffsets[priority]
	if !ok {
		offset = dueOffsets[models.PriorityMedium]
	}
	return now.Add(offset)
}

// AgeHours converts an issue age into whole hours for scoring.
func AgeHours(createdAt, now time.Time) int {
	if now.Before(createdAt) {
		return 0
	}
	return int(now.Sub(createdAt).Hours())
}

func capped(value, cap int) int {
	if value > cap {
		return cap
	}
	return value
}
