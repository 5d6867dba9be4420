package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masterplanhq/masterplan-server/domain"
	"github.com/masterplanhq/masterplan-server/release/releaseapi"
	"github.com/masterplanhq/masterplan-server/release/releaselock"
	"github.com/masterplanhq/masterplan-server/release/releaserepo"
	"github.com/masterplanhq/masterplan-server/resolver"
	"github.com/masterplanhq/masterplan-server/store"
)

var ctx = context.Background()

func TestReleaseService_Publish(t *testing.T) {
	t.Run("publish writes the manifest and flips the current pointer", func(t *testing.T) {
		fx := newFixture(t)
		defer fx.finish(t)
		fx.repo.addProject(domain.Project{Slug: "acme", Name: "Acme Hills", IsActive: true})
		fx.repo.addVersion(newTestDraftVersion())
		fx.store.add("builds/acme/v1/tiles/0/0_0.webp", []byte("t0"))
		fx.store.add("builds/acme/v1/tiles/1/0_0.webp", []byte("t1"))

		release, err := fx.service.Publish(ctx, "acme", 1, "op@acme.dev")
		require.NoError(t, err)
		assert.NotEmpty(t, release.ReleaseId)
		assert.NotEmpty(t, release.Checksum)

		data := fx.store.get(t, domain.ManifestKey("acme", release.ReleaseId))
		var stored domain.Release
		require.NoError(t, json.Unmarshal(data, &stored))
		assert.Equal(t, release.ReleaseId, stored.ReleaseId)
		assert.Len(t, stored.Overlays, 3)

		tilesPrefix := domain.ReleaseTilesPrefix("acme", release.ReleaseId)
		assert.Equal(t, []byte("t0"), fx.store.get(t, tilesPrefix+"0/0_0.webp"))
		assert.Equal(t, []byte("t1"), fx.store.get(t, tilesPrefix+"1/0_0.webp"))

		// promoted draft tiles are cleaned up from the build prefix
		remaining, err := fx.store.List(ctx, domain.DraftTilesPrefix("acme", 1))
		require.NoError(t, err)
		assert.Empty(t, remaining)

		project, err := fx.repo.ProjectGet(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, release.ReleaseId, project.CurrentReleaseId)
		version, err := fx.repo.VersionGet(ctx, "acme", 1)
		require.NoError(t, err)
		assert.Equal(t, domain.VersionStatusPublished, version.Status)
		assert.Equal(t, []string{"acme"}, fx.resolver.invalidated())
	})

	t.Run("only drafts can be published", func(t *testing.T) {
		fx := newFixture(t)
		defer fx.finish(t)
		fx.repo.addProject(domain.Project{Slug: "acme", IsActive: true, CurrentReleaseId: "rel_prev"})
		version := newTestDraftVersion()
		version.Status = domain.VersionStatusPublished
		fx.repo.addVersion(version)

		_, err := fx.service.Publish(ctx, "acme", 1, "op@acme.dev")
		assert.ErrorIs(t, err, releaseapi.ErrValidationFailed)

		// the failed publish altered nothing: pointer untouched, no artifact
		project, err := fx.repo.ProjectGet(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "rel_prev", project.CurrentReleaseId)
		keys, err := fx.store.List(ctx, "releases/")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("inactive project resolves as missing", func(t *testing.T) {
		fx := newFixture(t)
		defer fx.finish(t)
		fx.repo.addProject(domain.Project{Slug: "acme", IsActive: false})
		fx.repo.addVersion(newTestDraftVersion())

		_, err := fx.service.Publish(ctx, "acme", 1, "op@acme.dev")
		assert.ErrorIs(t, err, releaseapi.ErrProjectNotFound)
	})

	t.Run("unknown version", func(t *testing.T) {
		fx := newFixture(t)
		defer fx.finish(t)
		fx.repo.addProject(domain.Project{Slug: "acme", IsActive: true})

		_, err := fx.service.Publish(ctx, "acme", 7, "op@acme.dev")
		assert.ErrorIs(t, err, releaseapi.ErrVersionNotFound)
	})

	t.Run("storage failure leaves the version a draft", func(t *testing.T) {
		fx := newFixture(t)
		defer fx.finish(t)
		fx.repo.addProject(domain.Project{Slug: "acme", IsActive: true})
		fx.repo.addVersion(newTestDraftVersion())
		fx.store.setPutErr(fmt.Errorf("bucket gone"))

		_, err := fx.service.Publish(ctx, "acme", 1, "op@acme.dev")
		assert.ErrorIs(t, err, releaseapi.ErrStorageFailed)

		version, err := fx.repo.VersionGet(ctx, "acme", 1)
		require.NoError(t, err)
		assert.Equal(t, domain.VersionStatusDraft, version.Status)
		project, err := fx.repo.ProjectGet(ctx, "acme")
		require.NoError(t, err)
		assert.Empty(t, project.CurrentReleaseId)
		assert.Empty(t, fx.resolver.invalidated())
	})

	t.Run("concurrent publish produces exactly one release", func(t *testing.T) {
		fx := newFixture(t)
		defer fx.finish(t)
		fx.repo.addProject(domain.Project{Slug: "acme", IsActive: true})
		fx.repo.addVersion(newTestDraftVersion())
		fx.store.setPutDelay(50 * time.Millisecond)

		start := make(chan struct{})
		results := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() {
				<-start
				_, err := fx.service.Publish(ctx, "acme", 1, "op@acme.dev")
				results <- err
			}()
		}
		close(start)

		var succeeded, conflicted int
		for i := 0; i < 2; i++ {
			err := <-results
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, releaseapi.ErrConcurrencyConflict)
				conflicted++
			}
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, conflicted)

		version, err := fx.repo.VersionGet(ctx, "acme", 1)
		require.NoError(t, err)
		assert.Equal(t, domain.VersionStatusPublished, version.Status)
	})
}

func TestReleaseService_VersionHistory(t *testing.T) {
	fx := newFixture(t)
	defer fx.finish(t)
	fx.repo.addProject(domain.Project{Slug: "acme", IsActive: true, CurrentReleaseId: "rel_x"})
	v1 := newTestDraftVersion()
	v1.Status = domain.VersionStatusArchived
	v2 := newTestDraftVersion()
	v2.VersionNumber = 2
	fx.repo.addVersion(v1)
	fx.repo.addVersion(v2)

	history, err := fx.service.VersionHistory(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "rel_x", history.CurrentReleaseId)
	require.Len(t, history.Versions, 2)
	assert.Equal(t, 2, history.Versions[0].VersionNumber)
}

type fixture struct {
	a        *app.App
	repo     *fakeRepo
	store    *fakeStore
	resolver *fakeResolver
	service  Service
}

func newFixture(t *testing.T) *fixture {
	fx := &fixture{
		a: new(app.App),
		repo: &fakeRepo{
			projects: map[string]domain.Project{},
			versions: map[string]domain.ReleaseVersion{},
		},
		store:    &fakeStore{objects: map[string][]byte{}},
		resolver: &fakeResolver{},
		service:  New(),
	}
	fx.a.Register(fx.repo).
		Register(fx.store).
		Register(&fakeLocker{held: map[string]bool{}}).
		Register(fx.resolver).
		Register(fx.service)
	require.NoError(t, fx.a.Start(ctx))
	return fx
}

func (fx *fixture) finish(t *testing.T) {
	require.NoError(t, fx.a.Close(ctx))
}

type fakeRepo struct {
	releaserepo.ReleaseRepo
	mu       sync.Mutex
	projects map[string]domain.Project
	versions map[string]domain.ReleaseVersion
}

func versionKey(slug string, versionNumber int) string {
	return fmt.Sprintf("%s/%d", slug, versionNumber)
}

func (r *fakeRepo) Init(a *app.App) (err error)     { return }
func (r *fakeRepo) Name() (name string)             { return releaserepo.CName }
func (r *fakeRepo) Run(ctx context.Context) error   { return nil }
func (r *fakeRepo) Close(ctx context.Context) error { return nil }

func (r *fakeRepo) addProject(project domain.Project) {
	r.mu.Lock()
	r.projects[project.Slug] = project
	r.mu.Unlock()
}

func (r *fakeRepo) addVersion(version domain.ReleaseVersion) {
	r.mu.Lock()
	r.versions[versionKey(version.ProjectSlug, version.VersionNumber)] = version
	r.mu.Unlock()
}

func (r *fakeRepo) ProjectGet(ctx context.Context, slug string) (domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	project, ok := r.projects[slug]
	if !ok {
		return domain.Project{}, releaseapi.ErrProjectNotFound
	}
	return project, nil
}

func (r *fakeRepo) VersionGet(ctx context.Context, slug string, versionNumber int) (domain.ReleaseVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	version, ok := r.versions[versionKey(slug, versionNumber)]
	if !ok {
		return domain.ReleaseVersion{}, releaseapi.ErrVersionNotFound
	}
	return version, nil
}

func (r *fakeRepo) VersionList(ctx context.Context, slug string) (versions []domain.ReleaseVersion, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for number := len(r.versions); number > 0; number-- {
		if version, ok := r.versions[versionKey(slug, number)]; ok {
			versions = append(versions, version)
		}
	}
	return versions, nil
}

func (r *fakeRepo) FinalizePublish(ctx context.Context, version domain.ReleaseVersion, releaseId string, publishedAt int64, publishedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := versionKey(version.ProjectSlug, version.VersionNumber)
	stored := r.versions[key]
	if stored.Status != domain.VersionStatusDraft {
		return releaseapi.ErrConcurrencyConflict
	}
	stored.Status = domain.VersionStatusPublished
	stored.ReleaseId = releaseId
	stored.PublishedAt = publishedAt
	stored.PublishedBy = publishedBy
	r.versions[key] = stored

	project := r.projects[version.ProjectSlug]
	project.CurrentReleaseId = releaseId
	r.projects[version.ProjectSlug] = project
	return nil
}

type fakeStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	putErr   error
	putDelay time.Duration
}

func (s *fakeStore) Init(a *app.App) (err error) { return }
func (s *fakeStore) Name() (name string)         { return store.CName }

func (s *fakeStore) add(key string, data []byte) {
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
}

func (s *fakeStore) get(t *testing.T, key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	require.True(t, ok, "object %s not in store", key)
	return data
}

func (s *fakeStore) setPutErr(err error) {
	s.mu.Lock()
	s.putErr = err
	s.mu.Unlock()
}

func (s *fakeStore) setPutDelay(d time.Duration) {
	s.mu.Lock()
	s.putDelay = d
	s.mu.Unlock()
}

func (s *fakeStore) Put(ctx context.Context, key string, reader io.Reader) error {
	s.mu.Lock()
	delay, err := s.putDelay, s.putErr
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.add(key, data)
	return nil
}

func (s *fakeStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[srcKey]
	if !ok {
		return store.ErrNotFound
	}
	s.objects[dstKey] = data
	return nil
}

func (s *fakeStore) List(ctx context.Context, prefix string) (keys []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *fakeStore) DeletePath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.objects {
		if strings.HasPrefix(key, path) {
			delete(s.objects, key)
		}
	}
	return nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocker) Init(a *app.App) (err error) { return }
func (l *fakeLocker) Name() (name string)         { return releaselock.CName }

func (l *fakeLocker) TryLock(ctx context.Context, slug string, versionNumber int) (unlock func(), err error) {
	key := versionKey(slug, versionNumber)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, releaseapi.ErrConcurrencyConflict
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

type fakeResolver struct {
	mu    sync.Mutex
	slugs []string
}

func (r *fakeResolver) Init(a *app.App) (err error)     { return }
func (r *fakeResolver) Name() (name string)             { return resolver.CName }
func (r *fakeResolver) Run(ctx context.Context) error   { return nil }
func (r *fakeResolver) Close(ctx context.Context) error { return nil }

func (r *fakeResolver) ResolveCurrent(ctx context.Context, slug string) (info resolver.Info, err error) {
	return resolver.Info{}, releaseapi.ErrNoPublishedVersion
}

func (r *fakeResolver) InvalidateProject(ctx context.Context, slug string) {
	r.mu.Lock()
	r.slugs = append(r.slugs, slug)
	r.mu.Unlock()
}

func (r *fakeResolver) invalidated() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slugs
}
