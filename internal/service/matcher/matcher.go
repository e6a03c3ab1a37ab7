package matcher

import (
	"strings"

	"github.com/andres10976/ticketwatch/internal/model"
)

// SectionTargets returns the targets whose ID appears in a section marker
// (the class attribute of a performance block), in configured order.
// Targets are not mutually exclusive: every match is returned.
// Targets with an empty ID are ignored, since they would match any section.
func SectionTargets(marker string, targets []model.Target) []model.Target {
	var results []model.Target

	for _, t := range targets {
		if t.ID == "" {
			continue
		}
		if strings.Contains(marker, t.ID) {
			results = append(results, t)
		}
	}

	return results
}

// KeywordMatch reports whether title contains at least one keyword.
// Matching is a case-sensitive substring test. No keywords means every title
// matches.
func KeywordMatch(title string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(title, kw) {
			return true
		}
	}
	return false
}
