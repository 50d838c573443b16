package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StudyScanner/internal/domain"
)

// Failure categories every scanner maps its errors onto.
var (
	ErrAuthentication = errors.New("portal authentication failed")
	ErrNavigation     = errors.New("portal navigation failed")
	ErrTimeout        = errors.New("portal timed out")
)

// Request carries all parameters required to execute a scan.
type Request struct {
	BaseURL      string
	Username     string
	Password     string
	LoginTimeout time.Duration
	PageTimeout  time.Duration
}

// Scanner captures a single portal implementation.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.Study, error)
}

// Session is a browser tab owned by one scan. Close must be called on every exit path.
type Session interface {
	Navigate(ctx context.Context, url string) error
	ClearCookies(ctx context.Context) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// WaitURLContains blocks until the current URL contains fragment,
	// ignoring case, or ctx ends.
	WaitURLContains(ctx context.Context, fragment string) error
	WaitElement(ctx context.Context, selector string) error
	HTML(ctx context.Context) (string, error)
	Close() error
}

// SessionOpener acquires fresh sessions.
type SessionOpener interface {
	Open(ctx context.Context) (Session, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}
