package stats

import (
	"strings"
	"time"

	"adquisiciones/internal/core"
)

// NoField is reported as the most modified field of an empty history.
const NoField = "N/A"

// SummarizeHistory computes the figures shown above a record's change log.
// Blank modifiers and blank field names are ignored; on a tie the field
// seen first wins.
func SummarizeHistory(entries []core.HistoryEntry, now time.Time) core.HistorySummary {
	summary := core.HistorySummary{
		TotalChanges:      len(entries),
		MostModifiedField: NoField,
	}

	modifiers := make(map[string]struct{})
	counts := make(map[string]int)
	var order []string

	for _, e := range entries {
		if who := strings.TrimSpace(e.ChangedBy); who != "" {
			modifiers[who] = struct{}{}
		}
		if !e.ChangedAt.IsZero() && e.ChangedAt.Year() == now.Year() && e.ChangedAt.Month() == now.Month() {
			summary.ChangesThisMonth++
		}
		if field := strings.TrimSpace(e.Field); field != "" {
			if counts[field] == 0 {
				order = append(order, field)
			}
			counts[field]++
		}
	}
	summary.UniqueModifiers = len(modifiers)

	best := 0
	for _, field := range order {
		if counts[field] > best {
			best = counts[field]
			summary.MostModifiedField = field
		}
	}
	return summary
}
