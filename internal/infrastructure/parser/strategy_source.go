package parser

import (
	"context"
	"fmt"
	"log/slog"

	"StudyScanner/internal/config"
	"StudyScanner/internal/domain"
	"StudyScanner/internal/ports"
	"StudyScanner/internal/scanner"
)

// StrategySource implements StudySource via the registered portal scanner.
type StrategySource struct {
	registry *scanner.Registry
	portal   config.PortalConfig
	logger   *slog.Logger
}

var _ ports.StudySource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with the configured portal.
func NewStrategySource(reg *scanner.Registry, portal config.PortalConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		portal:   portal,
		logger:   log,
	}
}

// FetchCurrentStudies runs the configured scanner against the portal.
func (s *StrategySource) FetchCurrentStudies(ctx context.Context) (domain.Snapshot, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	strategy, err := s.registry.Resolve(s.portal.Scanner)
	if err != nil {
		return nil, fmt.Errorf("portal %s: %w", s.portal.BaseURL, err)
	}

	s.debug("scan portal", "scanner", strategy.Name(), "portal", s.portal.BaseURL)
	studies, err := strategy.Scan(ctx, scanner.Request{
		BaseURL:      s.portal.BaseURL,
		Username:     s.portal.Username,
		Password:     s.portal.Password,
		LoginTimeout: s.portal.LoginTimeout,
		PageTimeout:  s.portal.PageTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("scan with %s: %w", strategy.Name(), err)
	}

	s.debug("portal produced studies", "count", len(studies))
	return domain.Snapshot(studies), nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
