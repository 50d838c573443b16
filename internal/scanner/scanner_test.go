package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StudyScanner/internal/domain"
)

type stubScanner struct{ name string }

func (s stubScanner) Name() string { return s.name }

func (s stubScanner) Scan(context.Context, Request) ([]domain.Study, error) {
	return []domain.Study{{ID: s.name}}, nil
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubScanner{name: "sona"})

	sc, err := reg.Resolve("sona")
	require.NoError(t, err)
	assert.Equal(t, "sona", sc.Name())

	_, err = reg.Resolve("missing")
	assert.ErrorContains(t, err, "missing is not registered")
}

func TestRegistryRegisterReplaces(t *testing.T) {
	t.Parallel()

	var reg Registry
	reg.Register(stubScanner{name: "sona"})
	reg.Register(stubScanner{name: "sona"})

	_, err := reg.Resolve("sona")
	require.NoError(t, err)
	assert.Len(t, reg.scanners, 1)
}
