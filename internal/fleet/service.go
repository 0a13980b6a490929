package fleet

import (
	"context"
	"errors"
	"time"

	"tkfleet.io/internal/audit"
	"tkfleet.io/internal/auth"
	"tkfleet.io/internal/tenant"
)

const (
	defaultMaxFailedLogins = 5
	defaultLockout         = 15 * time.Minute
)

// Service implements tenant, identity, vehicle and account operations on top of a Store.
type Service struct {
	store           Store
	issuer          *auth.Issuer
	now             func() time.Time
	maxFailedLogins int
	lockout         time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer enables login, refresh and revocation.
func WithIssuer(iss *auth.Issuer) ServiceOption {
	return func(s *Service) error {
		s.issuer = iss
		return nil
	}
}

// WithLockout sets how many consecutive failed logins lock an identity and for how long.
func WithLockout(maxFailed int, d time.Duration) ServiceOption {
	return func(s *Service) error {
		if maxFailed <= 0 || d <= 0 {
			return errors.New("fleet: lockout settings must be positive")
		}
		s.maxFailedLogins = maxFailed
		s.lockout = d
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("fleet: store is required")
	}
	svc := &Service{
		store:           store,
		now:             time.Now,
		maxFailedLogins: defaultMaxFailedLogins,
		lockout:         defaultLockout,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Store exposes the backing store for collaborators sharing the transaction boundary.
func (s *Service) Store() Store { return s.store }

// caller resolves the principal and the request tenant, and checks the
// principal may act in that tenant.
func (s *Service) caller(ctx context.Context) (auth.Principal, string, error) {
	p, err := auth.MustPrincipal(ctx)
	if err != nil {
		return auth.Principal{}, "", err
	}
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return auth.Principal{}, "", err
	}
	if err := auth.RequireTenant(p, tenantID); err != nil {
		return auth.Principal{}, "", err
	}
	return p, tenantID, nil
}

func (s *Service) scope(q Queryer, tenantID, actor string) (*Scope, error) {
	return NewScope(q, tenantID, actor, s.now)
}

func (s *Service) audit(ctx context.Context, event string, fields map[string]any) {
	_ = audit.LogEvent(ctx, event, fields)
}
