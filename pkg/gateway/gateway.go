package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/nodetick/mail-gateway/pkg/brevo"
	"github.com/nodetick/mail-gateway/pkg/db"
	"github.com/nodetick/mail-gateway/pkg/handlerutils"
	"github.com/nodetick/mail-gateway/pkg/metrics"
	"github.com/nodetick/mail-gateway/pkg/ratelimit"
	"github.com/nodetick/mail-gateway/pkg/types"
	"github.com/nodetick/mail-gateway/pkg/validation"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultAllowedOrigin = "https://nodetick.com"

	SuccessMessage = "Email added to mailing list successfully!"
)

// Submitter hands a validated email to the mailing-list provider.
type Submitter interface {
	Submit(ctx context.Context, email string) error
}

// SignupRecorder persists submissions that reached the provider.
type SignupRecorder interface {
	RecordSignup(signup *types.Signup) error
	Close() error
}

type Gateway struct {
	config      *types.Config
	rateLimiter *ratelimit.RateLimiter
	submitter   Submitter
	signups     SignupRecorder
	clock       ratelimit.Clock
	registry    *prometheus.Registry
	metrics     *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Gateway)

// WithSubmitter replaces the Brevo client built from the config.
func WithSubmitter(s Submitter) Option {
	return func(g *Gateway) {
		g.submitter = s
	}
}

// WithSignupRecorder replaces the signup log opened from DatabaseDSN.
func WithSignupRecorder(r SignupRecorder) Option {
	return func(g *Gateway) {
		g.signups = r
	}
}

func WithClock(clock ratelimit.Clock) Option {
	return func(g *Gateway) {
		g.clock = clock
	}
}

func New(config *types.Config, opts ...Option) (*Gateway, error) {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.AllowedOrigin == "" {
		config.AllowedOrigin = DefaultAllowedOrigin
	}
	if u, err := url.Parse(config.AllowedOrigin); err != nil || u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid allowed origin: %q", config.AllowedOrigin)
	}
	if config.RateLimitWindow <= 0 {
		config.RateLimitWindow = ratelimit.DefaultWindow
	}
	if config.RateLimitMax <= 0 {
		config.RateLimitMax = ratelimit.DefaultThreshold
	}
	if config.BrevoListID <= 0 {
		config.BrevoListID = brevo.DefaultListID
	}

	g := &Gateway{
		config:   config,
		clock:    ratelimit.SystemClock,
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.metrics = metrics.New(g.registry)
	g.rateLimiter = ratelimit.NewRateLimiter(
		config.RateLimitWindow,
		config.RateLimitMax,
		ratelimit.WithClock(g.clock),
	)

	if g.submitter == nil {
		if config.BrevoAPIKey == "" {
			log.Println("BREVO_API_KEY not set, every signup will fail until it is configured")
		}
		g.submitter = newBrevoClient(config)
	}

	if g.signups == nil && config.DatabaseDSN != "" {
		store, err := db.New(config.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize signup log: %w", err)
		}
		log.Printf("Recording signups to %s database", store.Type())
		g.signups = store
	}

	return g, nil
}

func newBrevoClient(config *types.Config) *brevo.Client {
	opts := []brevo.Option{
		brevo.WithListIDs(int64(config.BrevoListID)),
	}
	if config.BrevoURL != "" {
		opts = append(opts, brevo.WithURL(config.BrevoURL))
	}
	if config.BrevoTimeout > 0 {
		opts = append(opts, brevo.WithTimeout(config.BrevoTimeout))
	}
	if config.BrevoRPS > 0 {
		opts = append(opts, brevo.WithLimiter(brevo.NewTokenBucketLimiter(float64(config.BrevoRPS), config.BrevoRPS)))
	}
	return brevo.NewClient(config.BrevoAPIKey, opts...)
}

// RateLimiter exposes the limiter shared by all requests.
func (g *Gateway) RateLimiter() *ratelimit.RateLimiter {
	return g.rateLimiter
}

func (g *Gateway) Close() error {
	if g.cancel != nil {
		g.cancel()
	}
	if g.signups != nil {
		return g.signups.Close()
	}
	return nil
}

// Start launches the janitor that evicts addresses whose history has
// expired. It runs once per window until ctx is done or Close is called.
func (g *Gateway) Start(ctx context.Context) error {
	g.ctx, g.cancel = context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(g.rateLimiter.Window())
		defer ticker.Stop()
		for {
			select {
			case <-g.ctx.Done():
				return
			case <-ticker.C:
				g.rateLimiter.Sweep(g.clock.Now())
				g.metrics.TrackedAddresses.Set(float64(g.rateLimiter.Len()))
			}
		}
	}()

	return nil
}

func (g *Gateway) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", g.healthHandler)
	mux.Handle("GET /metrics", metrics.Handler(g.registry))
	mux.HandleFunc("GET /mail", g.mailHandler)
}

// GetHandler returns an http.Handler for the gateway
func (g *Gateway) GetHandler() http.Handler {
	mux := http.NewServeMux()
	g.SetupRoutes(mux)

	return handlers.LoggingHandler(os.Stdout, g.withCORS(mux))
}

// withCORS rejects cross-origin requests from anywhere but the allowed
// origin and answers preflights for it.
func (g *Gateway) withCORS(next http.Handler) http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{g.config.AllowedOrigin}),
		handlers.AllowedMethods([]string{http.MethodGet}),
		handlers.AllowedHeaders([]string{"Authorization", "Accept"}),
		handlers.AllowCredentials(),
		handlers.OptionStatusCode(http.StatusNoContent),
	)(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && origin != g.config.AllowedOrigin {
			handlerutils.JSON(w, http.StatusForbidden, types.ErrorResponse{
				Error:            "origin_not_allowed",
				ErrorDescription: "Cross-origin requests are not allowed from this origin",
			})
			return
		}
		cors.ServeHTTP(w, r)
	})
}

func (g *Gateway) healthHandler(w http.ResponseWriter, r *http.Request) {
	handlerutils.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) mailHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := handlerutils.GetClientAddr(r, g.config.TrustProxyHeaders)
	if err != nil {
		handlerutils.JSON(w, http.StatusBadRequest, types.ErrorResponse{
			Error:            "invalid_client_address",
			ErrorDescription: "Could not determine client address",
		})
		return
	}

	decision := g.rateLimiter.CheckAndRecord(addr, g.clock.Now())
	if !decision.Allowed {
		g.metrics.RateLimitDecisions.WithLabelValues("reject").Inc()
		handlerutils.SetRetryAfter(w, decision.RetryAfter)
		handlerutils.JSON(w, http.StatusTooManyRequests, types.ErrorResponse{
			Error:            "too_many_requests",
			ErrorDescription: "Rate limit exceeded",
		})
		return
	}
	g.metrics.RateLimitDecisions.WithLabelValues("admit").Inc()

	email := r.URL.Query().Get("email")
	if err := validation.ValidateEmail(email); err != nil {
		g.metrics.Signups.WithLabelValues("invalid_email").Inc()
		handlerutils.JSON(w, http.StatusBadRequest, types.ErrorResponse{
			Error:            "invalid_email",
			ErrorDescription: "The email parameter is not a valid email address",
		})
		return
	}

	start := time.Now()
	err = g.submitter.Submit(r.Context(), email)
	g.metrics.OutboundDuration.Observe(time.Since(start).Seconds())
	g.recordSignup(email, addr, err)

	if err != nil {
		log.Printf("Failed to add email to mailing list for %s: %v", addr, err)
		g.metrics.Signups.WithLabelValues("failure").Inc()
		handlerutils.JSON(w, http.StatusInternalServerError, types.ErrorResponse{
			Error:            "server_error",
			ErrorDescription: "Failed to add email to mailing list",
		})
		return
	}

	g.metrics.Signups.WithLabelValues("success").Inc()
	handlerutils.Text(w, http.StatusOK, SuccessMessage)
}

// recordSignup writes to the signup log if one is configured. Failures are
// logged and never change the response.
func (g *Gateway) recordSignup(email string, addr netip.Addr, submitErr error) {
	if g.signups == nil {
		return
	}

	signup := &types.Signup{
		Email:      email,
		ListIDs:    types.Int64Slice{int64(g.config.BrevoListID)},
		ClientAddr: addr.String(),
		Status:     types.SignupSubscribed,
	}
	if submitErr != nil {
		signup.Status = types.SignupFailed
		signup.Error = submitErr.Error()
	}

	if err := g.signups.RecordSignup(signup); err != nil {
		log.Printf("Failed to record signup: %v", err)
	}
}
