package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.uber.org/zap"

	"github.com/masterplanhq/masterplan-server/domain"
	"github.com/masterplanhq/masterplan-server/gateway/gatewayconfig"
	"github.com/masterplanhq/masterplan-server/release/releaseapi"
	"github.com/masterplanhq/masterplan-server/resolver"
	"github.com/masterplanhq/masterplan-server/status"
)

func New() Gateway {
	return new(gateway)
}

const CName = "gateway"

var log = logger.NewNamed(CName)

type Gateway interface {
	app.ComponentRunnable
}

type statusConfigGetter interface {
	GetStatus() status.Config
}

type gateway struct {
	mux        *http.ServeMux
	server     *http.Server
	resolver   resolver.Resolver
	status     status.Service
	config     gatewayconfig.Config
	statusConf status.Config
}

func (g *gateway) Name() (name string) {
	return CName
}

func (g *gateway) Init(a *app.App) (err error) {
	g.resolver = a.MustComponent(resolver.CName).(resolver.Resolver)
	g.status = a.MustComponent(status.CName).(status.Service)
	g.config = a.MustComponent("config").(gatewayconfig.ConfigGetter).GetGateway()
	g.statusConf = a.MustComponent("config").(statusConfigGetter).GetStatus()
	g.mux = http.NewServeMux()

	g.mux.HandleFunc("GET /releases/{slug}/current", g.resolveCurrentHandler)
	g.mux.HandleFunc("GET /releases/{slug}/info", g.resolveInfoHandler)
	g.mux.HandleFunc("GET /status/{slug}", g.statusHandler)
	g.mux.HandleFunc("GET /status/{slug}/stream", g.statusStreamHandler)
	g.mux.HandleFunc("POST /status/{slug}/refresh", g.statusRefreshHandler)
	g.mux.HandleFunc("POST /status/{slug}/test", g.statusTestHandler)

	g.server = &http.Server{Addr: g.config.Addr, Handler: g.mux}
	return
}

func (g *gateway) Run(ctx context.Context) (err error) {
	var errCh = make(chan error)
	go func() {
		errCh <- g.server.ListenAndServe()
	}()
	select {
	case err = <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		log.Info("gateway server started", zap.String("addr", g.config.Addr))
		return
	}
}

// resolveCurrentHandler redirects to the immutable release path. The redirect
// itself must revalidate (no-cache) while the target is cacheable forever.
func (g *gateway) resolveCurrentHandler(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	info, err := g.resolver.ResolveCurrent(r.Context(), slug)
	if err != nil {
		writeResolveErr(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Release-Id", info.ReleaseId)
	http.Redirect(w, r, info.CdnUrl, http.StatusTemporaryRedirect)
}

func (g *gateway) resolveInfoHandler(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	info, err := g.resolver.ResolveCurrent(r.Context(), slug)
	if err != nil {
		writeResolveErr(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJson(w, http.StatusOK, info)
}

type statusResponse struct {
	Project     string                            `json:"project"`
	Statuses    map[string]domain.CanonicalStatus `json:"statuses"`
	Count       int                               `json:"count"`
	Stale       bool                              `json:"stale,omitempty"`
	RefreshedAt string                            `json:"refreshedAt,omitempty"`
}

func (g *gateway) statusHandler(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	snapshot, err := g.status.GetStatuses(r.Context(), slug)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "Internal")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJson(w, http.StatusOK, statusResponse{
		Project:  slug,
		Statuses: snapshot.Statuses,
		Count:    len(snapshot.Statuses),
		Stale:    snapshot.Stale,
	})
}

func (g *gateway) statusRefreshHandler(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	snapshot, err := g.status.RefreshStatuses(r.Context(), slug)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "Internal")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJson(w, http.StatusOK, statusResponse{
		Project:     slug,
		Statuses:    snapshot.Statuses,
		Count:       len(snapshot.Statuses),
		Stale:       snapshot.Stale,
		RefreshedAt: snapshot.FetchedAt.UTC().Format(time.RFC3339),
	})
}

// statusTestHandler backs the operator "test connection" action: one
// authenticated upstream call, reported without touching the cache.
func (g *gateway) statusTestHandler(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	result, err := g.status.TestConnection(r.Context(), slug)
	if err != nil {
		writeResolveErr(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJson(w, http.StatusOK, result)
}

func writeResolveErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, releaseapi.ErrProjectNotFound):
		writeErr(w, http.StatusNotFound, "ProjectNotFound")
	case errors.Is(err, releaseapi.ErrNoPublishedVersion):
		writeErr(w, http.StatusNotFound, "NoPublishedVersion")
	default:
		writeErr(w, http.StatusInternalServerError, "Internal")
	}
}

func writeJson(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	data, _ := json.Marshal(body)
	_, _ = w.Write(data)
}

func writeErr(w http.ResponseWriter, statusCode int, code string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJson(w, statusCode, errResp{Error: code})
}

func (g *gateway) Close(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return g.server.Shutdown(ctx)
}
