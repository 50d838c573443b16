package usecase

import (
	"fmt"

	"StudyScanner/internal/domain"
)

// DefaultMaxAnnounced caps the number of cards per announcement.
const DefaultMaxAnnounced = 10

// BuildAnnouncement renders at most limit cards while the summary keeps the
// full count of added studies.
func BuildAnnouncement(delta domain.Delta, limit int) domain.Announcement {
	if limit <= 0 {
		limit = DefaultMaxAnnounced
	}

	shown := delta
	if len(shown) > limit {
		shown = shown[:limit]
	}

	cards := make([]domain.Card, 0, len(shown))
	for _, study := range shown {
		cards = append(cards, domain.Card{
			Title:       study.Name,
			Link:        study.Link,
			Credits:     study.Credits,
			Description: study.Description,
		})
	}

	return domain.Announcement{
		Summary: summaryLine(len(delta), len(cards)),
		Total:   len(delta),
		Cards:   cards,
	}
}

func summaryLine(total, shown int) string {
	verb, noun := "are", "studies"
	if total == 1 {
		verb, noun = "is", "study"
	}

	line := fmt.Sprintf("There %s %d new %s", verb, total, noun)
	if shown < total {
		line = fmt.Sprintf("%s (showing the first %d)", line, shown)
	}
	return line + ":"
}
