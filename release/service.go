package release

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.uber.org/zap"

	"github.com/masterplanhq/masterplan-server/domain"
	"github.com/masterplanhq/masterplan-server/release/releaseapi"
	"github.com/masterplanhq/masterplan-server/release/releaselock"
	"github.com/masterplanhq/masterplan-server/release/releaserepo"
	"github.com/masterplanhq/masterplan-server/resolver"
	"github.com/masterplanhq/masterplan-server/store"
)

const CName = "release.service"

var log = logger.NewNamed(CName)

func New() Service {
	return new(releaseService)
}

type History struct {
	ProjectSlug      string                  `json:"projectSlug"`
	CurrentReleaseId string                  `json:"currentReleaseId,omitempty"`
	Versions         []domain.ReleaseVersion `json:"versions"`
}

type Service interface {
	CreateDraft(ctx context.Context, slug string) (version domain.ReleaseVersion, err error)
	UpdateDraft(ctx context.Context, slug string, versionNumber int, draft domain.DraftContent) (err error)
	// Publish turns a draft into an immutable release: build manifest,
	// promote tiles, write the artifact, then flip version status and the
	// project pointer transactionally. Serialized per (project, version).
	Publish(ctx context.Context, slug string, versionNumber int, publishedBy string) (release domain.Release, err error)
	// Archive marks a superseded published version archived. The underlying
	// release artifact is never deleted; it stays resolvable by explicit id.
	Archive(ctx context.Context, slug string, versionNumber int) (err error)
	VersionHistory(ctx context.Context, slug string) (history History, err error)
	app.ComponentRunnable
}

type releaseService struct {
	repo     releaserepo.ReleaseRepo
	store    store.Store
	lock     releaselock.Locker
	resolver resolver.Resolver
}

func (r *releaseService) Init(a *app.App) (err error) {
	r.repo = a.MustComponent(releaserepo.CName).(releaserepo.ReleaseRepo)
	r.store = a.MustComponent(store.CName).(store.Store)
	r.lock = a.MustComponent(releaselock.CName).(releaselock.Locker)
	r.resolver = a.MustComponent(resolver.CName).(resolver.Resolver)
	return
}

func (r *releaseService) Name() (name string) {
	return CName
}

func (r *releaseService) Run(ctx context.Context) (err error) {
	return
}

func (r *releaseService) CreateDraft(ctx context.Context, slug string) (version domain.ReleaseVersion, err error) {
	return r.repo.VersionCreateDraft(ctx, slug)
}

func (r *releaseService) UpdateDraft(ctx context.Context, slug string, versionNumber int, draft domain.DraftContent) (err error) {
	return r.repo.VersionUpdateDraft(ctx, slug, versionNumber, draft)
}

func (r *releaseService) Publish(ctx context.Context, slug string, versionNumber int, publishedBy string) (release domain.Release, err error) {
	project, err := r.repo.ProjectGet(ctx, slug)
	if err != nil {
		return
	}
	if !project.IsActive {
		return domain.Release{}, releaseapi.ErrProjectNotFound
	}
	unlock, err := r.lock.TryLock(ctx, slug, versionNumber)
	if err != nil {
		return
	}
	defer unlock()

	version, err := r.repo.VersionGet(ctx, slug, versionNumber)
	if err != nil {
		return
	}
	if version.Status != domain.VersionStatusDraft {
		return domain.Release{}, fmt.Errorf("%w: only draft versions can be published", releaseapi.ErrValidationFailed)
	}

	now := time.Now()
	releaseId := NewReleaseId(now)
	if version.Draft.Config == nil {
		log.WarnCtx(ctx, "draft has no stored config, publishing with defaults",
			zap.String("project", slug), zap.Int("version", versionNumber))
	}
	if release, err = BuildManifest(version, releaseId, now, publishedBy); err != nil {
		return
	}
	copied, err := r.promoteTiles(ctx, slug, versionNumber, releaseId)
	if err != nil {
		return domain.Release{}, fmt.Errorf("%w: tile promotion: %v", releaseapi.ErrBuildFailed, err)
	}
	data, err := json.Marshal(release)
	if err != nil {
		return domain.Release{}, fmt.Errorf("%w: manifest serialization: %v", releaseapi.ErrBuildFailed, err)
	}
	if err = r.store.Put(ctx, domain.ManifestKey(slug, releaseId), bytes.NewReader(data)); err != nil {
		return domain.Release{}, fmt.Errorf("%w: manifest upload: %v", releaseapi.ErrStorageFailed, err)
	}
	if err = r.repo.FinalizePublish(ctx, version, releaseId, now.Unix(), publishedBy); err != nil {
		if errors.Is(err, releaseapi.ErrConcurrencyConflict) {
			return domain.Release{}, err
		}
		return domain.Release{}, fmt.Errorf("%w: finalize: %v", releaseapi.ErrStorageFailed, err)
	}
	// the draft build prefix is no longer needed once its tiles live under the
	// release path; cleanup is best-effort and never fails the publish
	if delErr := r.store.DeletePath(ctx, domain.DraftTilesPrefix(slug, versionNumber)); delErr != nil {
		log.WarnCtx(ctx, "draft tile cleanup failed",
			zap.String("project", slug), zap.Int("version", versionNumber), zap.Error(delErr))
	}
	r.resolver.InvalidateProject(ctx, slug)
	log.InfoCtx(ctx, "version published",
		zap.String("project", slug),
		zap.Int("version", versionNumber),
		zap.String("releaseId", releaseId),
		zap.String("checksum", release.Checksum),
		zap.Int("tilesCopied", copied),
	)
	return release, nil
}

// promoteTiles copies tiles from the draft build prefix beneath the release
// prefix so the release path is self-contained and permanently cacheable.
func (r *releaseService) promoteTiles(ctx context.Context, slug string, versionNumber int, releaseId string) (copied int, err error) {
	srcPrefix := domain.DraftTilesPrefix(slug, versionNumber)
	dstPrefix := domain.ReleaseTilesPrefix(slug, releaseId)
	keys, err := r.store.List(ctx, srcPrefix)
	if err != nil {
		return
	}
	for _, key := range keys {
		dstKey := dstPrefix + strings.TrimPrefix(key, srcPrefix)
		if err = r.store.Copy(ctx, key, dstKey); err != nil {
			return
		}
		copied++
	}
	return
}

func (r *releaseService) Archive(ctx context.Context, slug string, versionNumber int) (err error) {
	return r.repo.VersionArchive(ctx, slug, versionNumber)
}

func (r *releaseService) VersionHistory(ctx context.Context, slug string) (history History, err error) {
	project, err := r.repo.ProjectGet(ctx, slug)
	if err != nil {
		return
	}
	versions, err := r.repo.VersionList(ctx, slug)
	if err != nil {
		return
	}
	return History{
		ProjectSlug:      slug,
		CurrentReleaseId: project.CurrentReleaseId,
		Versions:         versions,
	}, nil
}

func (r *releaseService) Close(ctx context.Context) (err error) {
	return
}
