package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anyproto/any-sync/app"

	"github.com/masterplanhq/masterplan-server/domain"
)

const ClientCName = "status.client"

const defaultTimeout = 10 * time.Second

var (
	ErrNotConfigured       = errors.New("status source not configured")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrUpstreamBadResponse = errors.New("upstream bad response")
)

func NewClient() Client {
	return new(client)
}

// Client performs the outbound call to the external system of record and
// returns the raw vendor status map. Transport failures are classified so
// that callers can tell "no data available" apart from "nothing changed".
type Client interface {
	FetchStatuses(ctx context.Context, conf domain.IntegrationConfig) (raw map[string]string, err error)
	app.Component
}

type client struct {
	http *http.Client
}

func (c *client) Init(a *app.App) (err error) {
	c.http = &http.Client{}
	return
}

func (c *client) Name() (name string) {
	return ClientCName
}

func (c *client) FetchStatuses(ctx context.Context, conf domain.IntegrationConfig) (raw map[string]string, err error) {
	if conf.ApiBaseUrl == "" || conf.StatusEndpoint == "" {
		return nil, ErrNotConfigured
	}
	strategy, err := StrategyFor(conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}

	timeout := defaultTimeout
	if conf.TimeoutSeconds > 0 {
		timeout = time.Duration(conf.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqUrl := strings.TrimRight(conf.ApiBaseUrl, "/") + conf.StatusEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqUrl, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	req.Header.Set("Accept", "application/json")
	for header, value := range strategy.Headers() {
		req.Header.Set(header, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrUpstreamTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: http %d", ErrUpstreamBadResponse, resp.StatusCode)
	}
	if err = json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamBadResponse, err)
	}
	return raw, nil
}
