package resolver

import (
	"context"
	"net/url"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/anyproto/any-sync/app/ocache"

	"github.com/masterplanhq/masterplan-server/domain"
	"github.com/masterplanhq/masterplan-server/gateway/gatewayconfig"
	"github.com/masterplanhq/masterplan-server/release/releaseapi"
	"github.com/masterplanhq/masterplan-server/release/releaserepo"
)

const CName = "release.resolver"

func New() Resolver {
	return new(releaseResolver)
}

var log = logger.NewNamed(CName)

// cacheTTL is deliberately short: the resolution endpoint is no-cache for
// clients, so the server-side copy must stay very-short-lived too.
const cacheTTL = 5 * time.Second

// Info points a client at the current immutable release location.
type Info struct {
	ReleaseId string `json:"releaseId"`
	CdnUrl    string `json:"cdnUrl"`
	TilesBase string `json:"tilesBase"`
}

type Resolver interface {
	ResolveCurrent(ctx context.Context, slug string) (info Info, err error)
	InvalidateProject(ctx context.Context, slug string)
	app.ComponentRunnable
}

type releaseResolver struct {
	repo         releaserepo.ReleaseRepo
	conf         gatewayconfig.Config
	projectCache ocache.OCache
}

func (r *releaseResolver) Init(a *app.App) (err error) {
	r.repo = a.MustComponent(releaserepo.CName).(releaserepo.ReleaseRepo)
	r.conf = a.MustComponent("config").(gatewayconfig.ConfigGetter).GetGateway()
	r.projectCache = ocache.New(r.loadProject, ocache.WithLogger(log.Sugar()), ocache.WithGCPeriod(time.Minute), ocache.WithTTL(cacheTTL))
	return
}

func (r *releaseResolver) Name() (name string) {
	return CName
}

func (r *releaseResolver) Run(ctx context.Context) (err error) {
	return
}

func (r *releaseResolver) ResolveCurrent(ctx context.Context, slug string) (info Info, err error) {
	obj, err := r.projectCache.Get(ctx, slug)
	if err != nil {
		return
	}
	project := obj.(*projectObject).project
	if project.CurrentReleaseId == "" {
		return Info{}, releaseapi.ErrNoPublishedVersion
	}
	cdnUrl, err := url.JoinPath(r.conf.CdnUrl, domain.ManifestKey(slug, project.CurrentReleaseId))
	if err != nil {
		return
	}
	tilesBase, err := url.JoinPath(r.conf.CdnUrl, domain.ReleaseTilesPrefix(slug, project.CurrentReleaseId))
	if err != nil {
		return
	}
	return Info{
		ReleaseId: project.CurrentReleaseId,
		CdnUrl:    cdnUrl,
		TilesBase: tilesBase,
	}, nil
}

func (r *releaseResolver) InvalidateProject(ctx context.Context, slug string) {
	if _, err := r.projectCache.Remove(ctx, slug); err != nil {
		log.WarnCtx(ctx, "project cache invalidation failed")
	}
}

func (r *releaseResolver) loadProject(ctx context.Context, slug string) (object ocache.Object, err error) {
	project, err := r.repo.ProjectGet(ctx, slug)
	if err != nil {
		return nil, err
	}
	// inactive projects resolve as missing regardless of pointer state
	if !project.IsActive {
		return nil, releaseapi.ErrProjectNotFound
	}
	return &projectObject{project: project}, nil
}

type projectObject struct {
	project domain.Project
}

func (p *projectObject) Close() (err error) {
	return nil
}

func (p *projectObject) TryClose(objectTTL time.Duration) (res bool, err error) {
	return true, nil
}

func (r *releaseResolver) Close(ctx context.Context) (err error) {
	return r.projectCache.Close()
}
