// Package stream consumes an Electric shape log over HTTP long-polling.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"electric-ping/app/src/domain"
	"electric-ping/app/src/infra"
)

const (
	headerHandle = "electric-handle"
	headerOffset = "electric-offset"
	headerCursor = "electric-cursor"

	initialOffset = "-1"

	defaultMinBackoff = 100 * time.Millisecond
	defaultMaxBackoff = 5 * time.Second
)

// Config describes where the shape lives. URL points either at the Electric
// /v1/shape endpoint or at a proxy that injects credentials and table.
type Config struct {
	URL        string
	Table      string
	Client     *http.Client
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// ShapeStream follows one shape from the beginning of its log, then in live
// mode. It implements domain.ChangeFeed.
type ShapeStream struct {
	base       *url.URL
	table      string
	client     *http.Client
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     *infra.Logger
}

type position struct {
	handle string
	offset string
	cursor string
	live   bool
}

type wireMessage struct {
	Key     string         `json:"key"`
	Value   map[string]any `json:"value"`
	Headers struct {
		Operation string `json:"operation"`
		Control   string `json:"control"`
	} `json:"headers"`
}

func New(cfg Config, logger *infra.Logger) (*ShapeStream, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("shape stream: url is required")
	}
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("shape stream: parse url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("shape stream: unsupported scheme %q", base.Scheme)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	minBackoff := cfg.MinBackoff
	if minBackoff <= 0 {
		minBackoff = defaultMinBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < minBackoff {
		maxBackoff = defaultMaxBackoff
		if maxBackoff < minBackoff {
			maxBackoff = minBackoff
		}
	}

	return &ShapeStream{
		base:       base,
		table:      cfg.Table,
		client:     client,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		logger:     logger,
	}, nil
}

// Subscribe polls the shape until ctx ends and hands every non-empty batch to
// handle, in log order. Transient failures are retried with backoff; a client
// error other than 409 ends the subscription.
func (s *ShapeStream) Subscribe(ctx context.Context, handle func([]domain.ChangeMessage)) error {
	pos := position{offset: initialOffset}
	backoff := s.minBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, next, err := s.poll(ctx, pos)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var apiErr *domain.APIError
			if errors.As(err, &apiErr) && !retryable(apiErr.Status) {
				return &domain.UpstreamError{URL: s.base.Redacted(), Err: err}
			}

			s.logger.Warnf(ctx, "shape stream: %v, retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
			continue
		}

		backoff = s.minBackoff
		pos = next
		if len(batch) > 0 {
			infra.IncStreamBatches()
			handle(batch)
		}
	}
}

func (s *ShapeStream) poll(ctx context.Context, pos position) ([]domain.ChangeMessage, position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.requestURL(pos), nil)
	if err != nil {
		return nil, pos, fmt.Errorf("shape stream: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, pos, &domain.UpstreamError{URL: s.base.Redacted(), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		_, _ = io.Copy(io.Discard, resp.Body)
		s.logger.Printf(ctx, "shape stream: handle %s must be refetched", pos.handle)
		return []domain.ChangeMessage{{Control: domain.ControlMustRefetch}}, position{offset: initialOffset}, nil
	case resp.StatusCode == http.StatusNoContent:
		return nil, advance(pos, resp.Header), nil
	case resp.StatusCode >= http.StatusBadRequest:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, pos, &domain.APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var wire []wireMessage
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil && !errors.Is(err, io.EOF) {
		return nil, pos, &domain.UpstreamError{URL: s.base.Redacted(), Err: fmt.Errorf("decode batch: %w", err)}
	}

	next := advance(pos, resp.Header)
	batch := make([]domain.ChangeMessage, 0, len(wire))
	for _, m := range wire {
		msg := domain.ChangeMessage{
			Key:       m.Key,
			Operation: m.Headers.Operation,
			Control:   m.Headers.Control,
			Value:     m.Value,
		}
		if msg.Control == domain.ControlUpToDate {
			next.live = true
		}
		batch = append(batch, msg)
	}
	return batch, next, nil
}

func (s *ShapeStream) requestURL(pos position) string {
	u := *s.base
	query := u.Query()
	if s.table != "" {
		query.Set("table", s.table)
	}
	query.Set("offset", pos.offset)
	if pos.handle != "" {
		query.Set("handle", pos.handle)
	}
	if pos.live {
		query.Set("live", "true")
		if pos.cursor != "" {
			query.Set("cursor", pos.cursor)
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func advance(pos position, header http.Header) position {
	next := pos
	if handle := header.Get(headerHandle); handle != "" {
		next.handle = handle
	}
	if offset := header.Get(headerOffset); offset != "" {
		next.offset = offset
	}
	if cursor := header.Get(headerCursor); cursor != "" {
		next.cursor = cursor
	}
	return next
}

func retryable(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var _ domain.ChangeFeed = (*ShapeStream)(nil)
