package status

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/anyproto/any-sync/util/periodicsync"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/masterplanhq/masterplan-server/domain"
	"github.com/masterplanhq/masterplan-server/release/releaseapi"
	"github.com/masterplanhq/masterplan-server/release/releaserepo"
)

const CName = "status.service"

var log = logger.NewNamed(CName)

const gcPeriodSecs = 300

func New() Service {
	return new(statusService)
}

// Snapshot is a transient, process-local view of a project's normalized
// statuses. Never the source of truth; rebuilt from the external source.
type Snapshot struct {
	ProjectSlug string
	Statuses    map[string]domain.CanonicalStatus
	FetchedAt   time.Time
	Stale       bool
}

type TestResult struct {
	Success        bool              `json:"success"`
	ResponseTimeMs int64             `json:"responseTimeMs"`
	SampleData     map[string]string `json:"sampleData,omitempty"`
	Error          string            `json:"error,omitempty"`
}

type Service interface {
	// GetStatuses returns a fresh snapshot if cached, otherwise fetches
	// upstream (single-flight per project). Upstream failures degrade to the
	// previous snapshot marked stale, or an empty snapshot when nothing is
	// cached; they never fail the caller.
	GetStatuses(ctx context.Context, slug string) (snapshot Snapshot, err error)
	// RefreshStatuses invalidates the cached entry and fetches regardless of
	// TTL freshness.
	RefreshStatuses(ctx context.Context, slug string) (snapshot Snapshot, err error)
	// TestConnection performs one authenticated upstream call and reports the
	// outcome without touching the cache.
	TestConnection(ctx context.Context, slug string) (result TestResult, err error)
	app.ComponentRunnable
}

type cacheEntry struct {
	snapshot Snapshot
}

type statusService struct {
	conf   Config
	repo   releaserepo.ReleaseRepo
	client Client
	ticker periodicsync.PeriodicSync

	mu      sync.Mutex
	entries map[string]*cacheEntry
	group   singleflight.Group
	ttl     time.Duration
	now     func() time.Time
}

func (s *statusService) Init(a *app.App) (err error) {
	s.conf = a.MustComponent("config").(configGetter).GetStatus()
	s.repo = a.MustComponent(releaserepo.CName).(releaserepo.ReleaseRepo)
	s.client = a.MustComponent(ClientCName).(Client)
	s.entries = make(map[string]*cacheEntry)
	s.ttl = s.conf.Ttl()
	if s.now == nil {
		s.now = time.Now
	}
	s.ticker = periodicsync.NewPeriodicSync(gcPeriodSecs, 0, s.sweep, log)
	return
}

func (s *statusService) Name() (name string) {
	return CName
}

func (s *statusService) Run(ctx context.Context) (err error) {
	s.ticker.Run()
	return
}

func (s *statusService) GetStatuses(ctx context.Context, slug string) (snapshot Snapshot, err error) {
	if snapshot, ok := s.fresh(slug); ok {
		return snapshot, nil
	}
	return s.fetch(ctx, slug)
}

func (s *statusService) RefreshStatuses(ctx context.Context, slug string) (snapshot Snapshot, err error) {
	s.mu.Lock()
	delete(s.entries, slug)
	s.mu.Unlock()
	return s.fetch(ctx, slug)
}

// fetch collapses concurrent upstream calls per project: every caller for the
// same stale or missing slug awaits one in-flight load. The load rechecks
// freshness because an entry may have been committed while this caller was
// queueing on the flight group. The load runs detached from the triggering
// caller's lifetime: the flight is shared, so one disconnecting client must
// not cancel the upstream call the co-waiters depend on (the client's own
// timeout still bounds it).
func (s *statusService) fetch(ctx context.Context, slug string) (snapshot Snapshot, err error) {
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(slug, func() (any, error) {
		if snapshot, ok := s.fresh(slug); ok {
			return snapshot, nil
		}
		return s.load(loadCtx, slug), nil
	})
	if err != nil {
		return
	}
	return v.(Snapshot), nil
}

func (s *statusService) load(ctx context.Context, slug string) (snapshot Snapshot) {
	conf, err := s.repo.IntegrationConfigGet(ctx, slug)
	if err != nil {
		if !errors.Is(err, releaseapi.ErrProjectNotFound) {
			log.WarnCtx(ctx, "integration config load failed", zap.String("project", slug), zap.Error(err))
			return s.degrade(slug)
		}
		// no integration configured: commit an empty snapshot so viewers
		// degrade to "no status known" without hitting the db every call
		return s.commit(slug, map[string]domain.CanonicalStatus{})
	}
	raw, err := s.client.FetchStatuses(ctx, conf)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return s.commit(slug, map[string]domain.CanonicalStatus{})
		}
		log.InfoCtx(ctx, "upstream fetch failed", zap.String("project", slug), zap.Error(err))
		return s.degrade(slug)
	}
	return s.commit(slug, NormalizeAll(raw, Mapping(conf.StatusMapping)))
}

// commit atomically replaces the project's cache entry. Committed status maps
// are never mutated afterwards, so snapshots can share them safely.
func (s *statusService) commit(slug string, statuses map[string]domain.CanonicalStatus) Snapshot {
	snapshot := Snapshot{
		ProjectSlug: slug,
		Statuses:    statuses,
		FetchedAt:   s.now(),
	}
	s.mu.Lock()
	s.entries[slug] = &cacheEntry{snapshot: snapshot}
	s.mu.Unlock()
	return snapshot
}

// degrade implements serve-stale-on-error: the previous entry is returned
// unchanged but marked stale; with no previous entry the caller gets an empty
// uncached snapshot so the next read retries upstream.
func (s *statusService) degrade(slug string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[slug]; ok {
		e.snapshot.Stale = true
		return e.snapshot
	}
	return Snapshot{
		ProjectSlug: slug,
		Statuses:    map[string]domain.CanonicalStatus{},
		FetchedAt:   s.now(),
		Stale:       true,
	}
}

func (s *statusService) fresh(slug string) (snapshot Snapshot, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[slug]
	if !ok {
		return
	}
	if s.now().Sub(e.snapshot.FetchedAt) >= s.ttl {
		return Snapshot{}, false
	}
	return e.snapshot, true
}

func (s *statusService) TestConnection(ctx context.Context, slug string) (result TestResult, err error) {
	conf, err := s.repo.IntegrationConfigGet(ctx, slug)
	if err != nil {
		return
	}
	start := s.now()
	raw, err := s.client.FetchStatuses(ctx, conf)
	elapsed := s.now().Sub(start).Milliseconds()
	if err != nil {
		return TestResult{Success: false, ResponseTimeMs: elapsed, Error: err.Error()}, nil
	}
	sample := make(map[string]string, 5)
	for ref, vendorStatus := range raw {
		if len(sample) == 5 {
			break
		}
		sample[ref] = vendorStatus
	}
	return TestResult{Success: true, ResponseTimeMs: elapsed, SampleData: sample}, nil
}

// sweep drops entries that have not been refreshed for many TTL windows,
// i.e. projects nobody is watching anymore.
func (s *statusService) sweep(ctx context.Context) error {
	horizon := s.now().Add(-10 * s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for slug, e := range s.entries {
		if e.snapshot.FetchedAt.Before(horizon) {
			delete(s.entries, slug)
		}
	}
	return nil
}

func (s *statusService) Close(ctx context.Context) (err error) {
	s.ticker.Close()
	return
}
