package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"StudyScanner/internal/domain"
	"StudyScanner/internal/scanner"
)

const (
	defaultLoginTimeout = 10 * time.Second
	defaultPageTimeout  = 30 * time.Second

	usernameSelector    = "#ctl00_ContentPlaceHolder1_userid"
	passwordSelector    = "#pw"
	loginButtonSelector = "#ctl00_ContentPlaceHolder1_default_auth_button"
	mainPageFragment    = "main.aspx"
)

// SonaScanner logs into a Sona Systems participant portal and reads the
// list of studies open to the account.
type SonaScanner struct {
	opener scanner.SessionOpener
	logger *slog.Logger
}

var _ scanner.Scanner = (*SonaScanner)(nil)

// NewSonaScanner wires a browser session opener.
func NewSonaScanner(opener scanner.SessionOpener, log *slog.Logger) *SonaScanner {
	if log == nil {
		log = slog.Default()
	}
	return &SonaScanner{opener: opener, logger: log}
}

// Name identifies the strategy inside the registry.
func (s *SonaScanner) Name() string {
	return "sona"
}

// Scan opens a fresh session, logs in, and parses the study listing. The
// session is closed on every path.
func (s *SonaScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Study, error) {
	base, err := url.Parse(strings.TrimSpace(req.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid portal url %q", scanner.ErrNavigation, req.BaseURL)
	}
	if req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: credentials are not configured", scanner.ErrAuthentication)
	}
	if s.opener == nil {
		return nil, errors.New("sona scanner has no browser")
	}

	session, err := s.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			s.logger.Warn("close browser session", "error", cerr)
		}
	}()

	loginTimeout := orDefault(req.LoginTimeout, defaultLoginTimeout)
	pageTimeout := orDefault(req.PageTimeout, defaultPageTimeout)

	s.logger.Info("logging in", "portal", base.Host)
	if err := s.login(ctx, session, base, req, loginTimeout, pageTimeout); err != nil {
		return nil, err
	}

	s.logger.Info("fetching studies")
	html, err := s.listing(ctx, session, base, pageTimeout)
	if err != nil {
		return nil, err
	}

	studies, err := ParseStudyListing(strings.NewReader(html), base)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("listing parsed", "studies", len(studies))

	return studies, nil
}

func (s *SonaScanner) login(ctx context.Context, session scanner.Session, base *url.URL, req scanner.Request, loginTimeout, pageTimeout time.Duration) error {
	stepCtx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()

	if err := session.ClearCookies(stepCtx); err != nil {
		return classify(scanner.ErrNavigation, "clear cookies", err)
	}

	logout := base.JoinPath("default.aspx")
	logout.RawQuery = "logout=Y"
	if err := session.Navigate(stepCtx, logout.String()); err != nil {
		return classify(scanner.ErrNavigation, "open login page", err)
	}
	if err := session.Fill(stepCtx, usernameSelector, req.Username); err != nil {
		return classify(scanner.ErrNavigation, "fill username", err)
	}
	if err := session.Fill(stepCtx, passwordSelector, req.Password); err != nil {
		return classify(scanner.ErrNavigation, "fill password", err)
	}
	if err := session.Click(stepCtx, loginButtonSelector); err != nil {
		return classify(scanner.ErrNavigation, "submit login", err)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, loginTimeout)
	defer waitCancel()

	if err := session.WaitURLContains(waitCtx, mainPageFragment); err != nil {
		return fmt.Errorf("%w: main page not reached within %s: %w", scanner.ErrAuthentication, loginTimeout, err)
	}
	return nil
}

func (s *SonaScanner) listing(ctx context.Context, session scanner.Session, base *url.URL, pageTimeout time.Duration) (string, error) {
	stepCtx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()

	if err := session.Navigate(stepCtx, base.JoinPath("all_exp_participant.aspx").String()); err != nil {
		return "", classify(scanner.ErrNavigation, "open study listing", err)
	}
	if err := session.WaitElement(stepCtx, studyTableSelector); err != nil {
		return "", classify(scanner.ErrNavigation, "wait for study table", err)
	}

	html, err := session.HTML(stepCtx)
	if err != nil {
		return "", classify(scanner.ErrNavigation, "read listing html", err)
	}
	return html, nil
}

func classify(kind error, step string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = scanner.ErrTimeout
	}
	return fmt.Errorf("%w: %s: %w", kind, step, err)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
