// Package client talks to the ping recorder over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"electric-ping/app/src/api/contract"
	"electric-ping/app/src/domain"
	"electric-ping/app/src/infra"
)

const defaultTimeout = 30 * time.Second

// Client implements domain.PingAPI against a running recorder.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *infra.Logger
}

// New builds a client for baseURL. A nil httpClient gets a 30s timeout.
func New(baseURL string, httpClient *http.Client, logger *infra.Logger) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("client: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", base.Scheme)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{base: base, http: httpClient, logger: logger}, nil
}

// ShapeURL is the recorder's shape proxy endpoint for the ping table.
func (c *Client) ShapeURL() string {
	return c.endpoint(contract.PathShapeProxy, nil)
}

// StartPing records the ping and returns the server-side insert duration.
func (c *Client) StartPing(ctx context.Context, record domain.PingRecord) (float64, error) {
	var resp contract.InsertResponse
	if err := c.do(ctx, http.MethodPost, contract.PathPing, nil, contract.NewPingRequest(record), http.StatusOK, &resp); err != nil {
		return 0, err
	}
	return resp.DBInsertTime, nil
}

// SubmitResult records the final offsets of a ping.
func (c *Client) SubmitResult(ctx context.Context, result domain.PingResult) (float64, error) {
	var resp contract.InsertResponse
	if err := c.do(ctx, http.MethodPost, contract.PathPingResult, nil, contract.NewPingResultRequest(result), http.StatusCreated, &resp); err != nil {
		return 0, err
	}
	return resp.DBInsertTime, nil
}

// IncompletePings lists pings that never received a result.
func (c *Client) IncompletePings(ctx context.Context, limit int) ([]domain.PingRecord, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var list []contract.IncompletePing
	if err := c.do(ctx, http.MethodGet, contract.PathIncompletePing, query, nil, http.StatusOK, &list); err != nil {
		return nil, err
	}

	records := make([]domain.PingRecord, 0, len(list))
	for _, item := range list {
		record, err := item.Record()
		if err != nil {
			return nil, fmt.Errorf("client: decode incomplete ping: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, expected int, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if id := infra.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != expected {
		apiErr := &domain.APIError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		c.logger.Warnf(ctx, "client: %s %s answered %d: %s", method, path, apiErr.Status, apiErr.Message)
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s response: %w", path, err)
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var payload contract.ErrorResponse
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}

var _ domain.PingAPI = (*Client)(nil)
