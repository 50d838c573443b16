package usecase

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StudyScanner/internal/domain"
)

func TestBuildAnnouncementSingle(t *testing.T) {
	t.Parallel()

	delta := Reconcile(snapshotOf("1"), snapshotOf("1", "2"))
	ann := BuildAnnouncement(delta, 10)

	assert.Equal(t, "There is 1 new study:", ann.Summary)
	assert.Equal(t, 1, ann.Total)
	require.Len(t, ann.Cards, 1)
	assert.False(t, ann.Truncated())

	card := ann.Cards[0]
	assert.Equal(t, "Study 2", card.Title)
	assert.Equal(t, "https://portal.example/exp_info.aspx?experiment_id=2", card.Link)
	assert.Equal(t, "1 Credit", card.Credits)
	assert.Equal(t, "Online Study", card.Description)
}

func TestBuildAnnouncementTruncatesButKeepsTotal(t *testing.T) {
	t.Parallel()

	next := snapshotOf()
	for i := 1; i <= 12; i++ {
		next = append(next, study(fmt.Sprint(i)))
	}
	delta := Reconcile(nil, next)
	require.Len(t, delta, 12)

	ann := BuildAnnouncement(delta, 10)
	assert.Len(t, ann.Cards, 10)
	assert.Equal(t, 12, ann.Total)
	assert.True(t, ann.Truncated())
	assert.Equal(t, "There are 12 new studies (showing the first 10):", ann.Summary)
	assert.Contains(t, ann.Summary, "first 10")
	assert.Equal(t, "Study 1", ann.Cards[0].Title)
	assert.Equal(t, "Study 10", ann.Cards[9].Title)
}

func TestBuildAnnouncementDefaultLimit(t *testing.T) {
	t.Parallel()

	delta := make(domain.Delta, 0, 15)
	for i := 0; i < 15; i++ {
		delta = append(delta, study(fmt.Sprint(i)))
	}

	ann := BuildAnnouncement(delta, 0)
	assert.Len(t, ann.Cards, DefaultMaxAnnounced)
}
