package linking

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/idlink/internal/identity"
	"github.com/roach88/idlink/internal/policy"
)

// Store is the identity persistence the linking service depends on.
// *store.Store satisfies it; tests substitute in-memory fakes.
//
// Find methods return active records only. Get, GetMany and ListGroup
// return records whatever their status. ApplyMerge must apply the whole
// plan or nothing, returning identity.ErrConflict when any row changed
// since it was read.
type Store interface {
	Insert(ctx context.Context, rec identity.Record) error
	Get(ctx context.Context, id string) (identity.Record, error)
	GetMany(ctx context.Context, ids []string) ([]identity.Record, error)
	FindByEmail(ctx context.Context, email string) ([]identity.Record, error)
	FindByPhone(ctx context.Context, phone string) ([]identity.Record, error)
	FindByName(ctx context.Context, keys []string, after string, limit int) ([]identity.Record, error)
	ListGroup(ctx context.Context, groupID string) ([]identity.Record, error)
	ApplyMerge(ctx context.Context, plan identity.MergePlan) error
	MergeLog(ctx context.Context, groupID string) ([]identity.MergeEntry, error)
	RecordSignIn(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id string) error
}

// Service finds, suggests and merges linked identities.
//
// Thread-safety: Service is immutable after New and safe for concurrent
// use. Every method is request-scoped.
type Service struct {
	store     Store
	policy    policy.Policy
	logger    *slog.Logger
	clock     func() time.Time
	groupIDs  IDGenerator
	recordIDs IDGenerator

	retryDelay time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPolicy replaces the default confidence policy.
func WithPolicy(p policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithClock sets the time source used for merge and registration stamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithGroupIDs sets the generator for newly minted group ids.
func WithGroupIDs(gen IDGenerator) Option {
	return func(s *Service) {
		s.groupIDs = gen
	}
}

// WithRecordIDs sets the generator used by Register when the caller
// supplies no id.
func WithRecordIDs(gen IDGenerator) Option {
	return func(s *Service) {
		s.recordIDs = gen
	}
}

// WithRetryDelay sets the pause before a merge re-plans after losing a
// race. Defaults to 20ms.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Service) {
		s.retryDelay = d
	}
}

// New creates a Service over store.
//
// Panics if store is nil or the configured policy is invalid: both are
// programming errors, not runtime conditions.
func New(store Store, opts ...Option) *Service {
	if store == nil {
		panic("linking: nil store")
	}
	s := &Service{
		store:      store,
		policy:     policy.Default(),
		logger:     slog.Default(),
		clock:      time.Now,
		groupIDs:   UUIDv7Generator{},
		recordIDs:  UUIDv7Generator{},
		retryDelay: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.policy.Validate(); err != nil {
		panic("linking: " + err.Error())
	}
	return s
}

// Policy returns the confidence policy in effect.
func (s *Service) Policy() policy.Policy {
	return s.policy
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}
