package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360/tiercache"
	"github.com/c360/tiercache/errors"
	"github.com/c360/tiercache/monitor"
	"github.com/c360/tiercache/pkg/retry"
)

// upstreamFetcher retrieves values from the origin over HTTP. Transient
// upstream failures are retried with backoff; client errors are not.
type upstreamFetcher struct {
	baseURL string
	client  *http.Client
}

func newUpstreamFetcher(baseURL string) *upstreamFetcher {
	return &upstreamFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *upstreamFetcher) fetch(ctx context.Context, key string) ([]byte, error) {
	target := f.baseURL + "/" + url.PathEscape(key)

	return retry.DoWithResult(ctx, retry.DefaultConfig(), func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, retry.NonRetryable(err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, retry.NonRetryable(errors.WrapInvalid(errors.ErrKeyNotFound,
				"upstream", "fetch", fmt.Sprintf("key %q", key)))
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, retry.NonRetryable(errors.WrapInvalid(errors.ErrNetworkFetch,
				"upstream", "fetch", fmt.Sprintf("status %d", resp.StatusCode)))
		default:
			return nil, errors.WrapTransient(errors.ErrNetworkFetch,
				"upstream", "fetch", fmt.Sprintf("status %d", resp.StatusCode))
		}
	})
}

// apiServer exposes the cache over HTTP.
type apiServer struct {
	cache  *tiercache.TieredCache[string, []byte]
	mon    *monitor.Monitor
	logger *slog.Logger
}

func newAPIServer(cache *tiercache.TieredCache[string, []byte], mon *monitor.Monitor, logger *slog.Logger) *apiServer {
	return &apiServer{cache: cache, mon: mon, logger: logger}
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cache/{key}", s.handleGet)
	mux.HandleFunc("DELETE /cache", s.handleClear)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}

	var opts []tiercache.GetOption
	if r.URL.Query().Get("refresh") == "true" {
		opts = append(opts, tiercache.WithForceRefresh())
	}

	res, err := s.cache.Get(r.Context(), key, opts...)
	if err != nil {
		if errors.Is(err, errors.ErrKeyNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		s.logger.Warn("cache get failed", "key", key, "error", err)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Tiercache-Stale", fmt.Sprintf("%t", res.Stale))
	_, _ = w.Write(res.Value)
}

func (s *apiServer) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		s.logger.Error("cache clear failed", "error", err)
		http.Error(w, "clear failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats collection failed", "error", err)
		http.Error(w, "stats failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, stats)
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.mon.Export())
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encoding failed", "error", err)
	}
}
