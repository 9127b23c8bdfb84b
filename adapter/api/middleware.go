package api

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
	"github.com/vorluno/planilla/pkg/observability"
)

type ctxKey int

const tenantContextKey ctxKey = iota

func withTenantContext(ctx context.Context, tc tenancy.TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey, tc)
}

// tenantContext returns the caller resolved by authenticate. Routes outside
// the authenticated group get the zero value, which every service rejects.
func tenantContext(r *http.Request) tenancy.TenantContext {
	tc, _ := r.Context().Value(tenantContextKey).(tenancy.TenantContext)
	return tc
}

// requestContext copies the request and correlation ids and the client
// address into the context used by loggers and audit entries.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := middleware.GetReqID(ctx)
		ctx = observability.WithRequestID(ctx, requestID)
		ctx = observability.WithCorrelationID(ctx, r.Header.Get("X-Correlation-ID"))
		ctx = observability.WithClientIP(ctx, clientIP(r))
		w.Header().Set("X-Request-ID", observability.RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.deps.Metrics.HTTPRequest(r.Method, route, status, elapsed)
		s.logger.DebugContext(r.Context(), "request served",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// authenticate verifies the bearer credential and stores the resolved
// tenant context on the request.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, ErrUnauthenticated)
			return
		}
		claims, err := s.deps.Tokens.Verify(raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		tc, err := s.deps.Resolver.Resolve(claims)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ctx := withTenantContext(r.Context(), tc)
		if tc.IsAuthenticated() {
			ctx = observability.WithTenantID(ctx, tc.TenantID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantGate rejects requests for tenants that are missing or inactive
// (403) and for subscriptions that no longer grant access (402). It reads
// fresh state on every request.
func (s *Server) tenantGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := tenantContext(r)
		current, err := s.deps.Resolver.CurrentTenant(r.Context(), tc)
		if errors.Is(err, tenancy.ErrTenantNotFound) {
			s.fail(w, r, tenancy.ErrForbidden)
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !current.Tenant.IsActive {
			s.fail(w, r, tenancy.ErrTenantInactive)
			return
		}
		if sub := current.Subscription; sub != nil {
			if !sub.IsActiveOrTrialing() {
				s.logger.WarnContext(r.Context(), "subscription does not grant access", "status", sub.Status)
				writeJSON(w, http.StatusPaymentRequired, &APIError{
					Code:    "subscription_inactive",
					Message: "subscription is " + string(sub.Status) + "; renew it to continue",
				})
				return
			}
			if sub.IsTrialExpired(s.now()) {
				s.logger.WarnContext(r.Context(), "trial expired")
				writeJSON(w, http.StatusPaymentRequired, &APIError{
					Code:    "trial_expired",
					Message: "the trial period has ended; choose a plan to continue",
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit throttles the public auth routes per client address and path.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r) + ":" + r.URL.Path
		d, err := s.deps.AuthLimiter.Allow(r.Context(), key)
		if err != nil {
			s.logger.WarnContext(r.Context(), "rate limiter unavailable, admitting request", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			s.logger.WarnContext(r.Context(), "rate limit exceeded", "path", r.URL.Path)
			writeJSON(w, http.StatusTooManyRequests, &APIError{Code: "rate_limited", Message: "too many requests, try again later"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// clientIP returns the caller's address without port. RealIP has already
// applied proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
