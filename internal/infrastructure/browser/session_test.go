package browser

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StudyScanner/internal/config"
)

func TestOpenUnreachableRemoteFails(t *testing.T) {
	t.Parallel()

	l := NewLauncher(config.BrowserConfig{RemoteURL: "ws://127.0.0.1:1/devtools/browser/none"},
		slog.New(slog.NewTextHandler(io.Discard, nil)), io.Discard)

	_, err := l.Open(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "browser: connect")
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	s := &Session{}
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
