package domain

// Study is a single research study listed on the participant portal.
type Study struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Link        string `json:"link"`
	Credits     string `json:"credits"`
	Description string `json:"description"`
}

// Snapshot is every study visible to the account at capture time, in portal order.
type Snapshot []Study

// Delta holds the studies of a new snapshot that the previous one did not know.
type Delta []Study

// IDs returns the set of study identifiers in the snapshot.
func (s Snapshot) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(s))
	for _, study := range s {
		ids[study.ID] = struct{}{}
	}
	return ids
}

// Card is one rendered study inside an announcement.
type Card struct {
	Title       string
	Link        string
	Credits     string
	Description string
}

// Announcement is the notifier-facing payload built from a delta.
type Announcement struct {
	Summary string
	Total   int
	Cards   []Card
}

// Truncated reports whether fewer cards were rendered than studies were added.
func (a Announcement) Truncated() bool {
	return len(a.Cards) < a.Total
}
