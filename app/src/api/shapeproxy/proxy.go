// Package shapeproxy forwards shape subscriptions to Electric, adding the
// credentials the browser must not see.
package shapeproxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"electric-ping/app/src/api/contract"
	"electric-ping/app/src/infra"
)

const shapePath = "v1/shape"

type Config struct {
	ElectricURL string
	Token       string
	DatabaseID  string
	Table       string
	Timeout     time.Duration
	Transport   http.RoundTripper
}

// Proxy is an http.Handler serving GET /shape-proxy/<table>.
type Proxy struct {
	target  *url.URL
	token   string
	dbID    string
	table   string
	timeout time.Duration
	logger  *infra.Logger
	reverse *httputil.ReverseProxy
}

func New(cfg Config, logger *infra.Logger) (*Proxy, error) {
	base := strings.TrimSpace(cfg.ElectricURL)
	if base == "" {
		return nil, errors.New("shape proxy: electric url is required")
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	parsed, err := url.Parse(base + shapePath)
	if err != nil {
		return nil, fmt.Errorf("shape proxy: parse electric url: %w", err)
	}
	if cfg.Table == "" {
		return nil, errors.New("shape proxy: table is required")
	}

	p := &Proxy{
		target:  parsed,
		token:   cfg.Token,
		dbID:    cfg.DatabaseID,
		table:   cfg.Table,
		timeout: cfg.Timeout,
		logger:  logger,
	}
	p.reverse = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		Transport:      cfg.Transport,
		FlushInterval:  -1,
		ModifyResponse: p.modifyResponse,
		ErrorHandler:   p.handleError,
	}
	return p, nil
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.timeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
		defer cancel()
		r = r.WithContext(ctx)
	}
	p.reverse.ServeHTTP(w, r)
}

// UpstreamURL returns the Electric URL for the inbound query: every inbound
// parameter is kept, then token, database_id and table are set.
func (p *Proxy) UpstreamURL(inbound url.Values) *url.URL {
	out := *p.target
	query := url.Values{}
	for key, values := range inbound {
		query[key] = append([]string(nil), values...)
	}
	if p.token != "" {
		query.Set("token", p.token)
	}
	if p.dbID != "" {
		query.Set("database_id", p.dbID)
	}
	query.Set("table", p.table)
	out.RawQuery = query.Encode()
	return &out
}

func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	pr.Out.URL = p.UpstreamURL(pr.In.URL.Query())
	pr.Out.Host = ""
}

func (p *Proxy) modifyResponse(resp *http.Response) error {
	infra.RecordShapeProxy(resp.StatusCode)
	if resp.StatusCode >= http.StatusBadRequest {
		p.logger.Warnf(resp.Request.Context(), "shape proxy: upstream %s answered %d", redact(resp.Request.URL), resp.StatusCode)
	}
	return nil
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	infra.RecordShapeProxy(0)
	p.logger.Errorf(r.Context(), "shape proxy: upstream unreachable: %v", redactError(err, p.token))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(contract.ErrorResponse{Error: "shape upstream unreachable"})
}

func redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	clone := *u
	query := clone.Query()
	if query.Has("token") {
		query.Set("token", "***")
	}
	clone.RawQuery = query.Encode()
	return clone.String()
}

func redactError(err error, token string) string {
	message := err.Error()
	if token != "" {
		message = strings.ReplaceAll(message, url.QueryEscape(token), "***")
		message = strings.ReplaceAll(message, token, "***")
	}
	return message
}
