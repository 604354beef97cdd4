package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/cutout/internal/ratelimit"
)

type RateLimiter interface {
	AllowN(ctx context.Context, subject string, cost int) (ratelimit.Decision, error)
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cost := requestCost(r)
		if cost == 0 {
			next.ServeHTTP(w, r)
			return
		}

		route := routeLabel(r.URL.Path)
		subject := strings.TrimSpace(r.Header.Get(s.rateLimitUserIDHeader))
		if subject == "" {
			subject = "anonymous"
		}
		subject = subject + ":" + route

		decision, err := s.rateLimiter.AllowN(r.Context(), subject, cost)
		if err != nil {
			s.logger.Printf("rate limiter check failed subject=%s err=%v", subject, err)
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		if decision.Limit > 0 {
			h.Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		}
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		h.Set("X-RateLimit-Reset", strconv.Itoa(ceilSeconds(decision.ResetAfter)))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		h.Set("Retry-After", strconv.Itoa(max(1, ceilSeconds(decision.RetryAfter))))
		s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "rate limit exceeded",
		})
	})
}

// requestCost is the number of tokens a request takes. Reads are free;
// starting a job costs more than creating one since it schedules image work.
func requestCost(r *http.Request) int {
	if r.Method == http.MethodGet || !strings.HasPrefix(r.URL.Path, "/v1/jobs") {
		return 0
	}
	if strings.HasSuffix(r.URL.Path, "/start") {
		return 2
	}
	return 1
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
