package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/keyword-crawler/internal/domain"
)

const maxRequestBody = 1 << 20

// crawlRequest also accepts the comma separated "url" field older clients send.
type crawlRequest struct {
	URL string `json:"url"`
	domain.CrawlRequest
}

func (c crawlRequest) toDomain() domain.CrawlRequest {
	req := c.CrawlRequest
	urls := domain.SplitURLs(c.URL)
	for _, u := range req.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	req.URLs = urls
	return req
}

func (s *Server) handleCrawlRequest(w http.ResponseWriter, r *http.Request) {
	var body crawlRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req := body.toDomain()
	if len(req.URLs) == 0 {
		s.respondWithError(w, http.StatusBadRequest, "URLs list cannot be empty")
		return
	}
	if len(domain.NormalizeKeywords(req.Keywords)) == 0 {
		s.respondWithError(w, http.StatusBadRequest, "Keywords list cannot be empty")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.HTTPTimeoutDuration())
	defer cancel()

	result, err := s.engine.Execute(ctx, req)
	switch {
	case err == nil:
		s.respondWithJSON(w, http.StatusOK, result)
	case errors.Is(err, domain.ErrInvalidRequest):
		s.respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("crawl request timed out", zap.Strings("urls", req.URLs))
		s.respondWithError(w, http.StatusGatewayTimeout, "Crawl did not finish in time")
	default:
		s.logger.Error("crawl request failed", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not complete crawl")
	}
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	healthStatus := map[string]string{"status": "ok"}
	if s.redis == nil {
		s.respondWithJSON(w, http.StatusOK, healthStatus)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.redis.Ping(ctx); err != nil {
		s.logger.Error("health check failed for redis", zap.Error(err))
		healthStatus["status"] = "degraded"
		healthStatus["redis"] = "unhealthy"
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	healthStatus["redis"] = "healthy"
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		code = http.StatusInternalServerError
		response = []byte(`{"error":"Could not encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
