package api

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/freelancehub/internal/chat"
	"github.com/onnwee/freelancehub/internal/idempotency"
	"github.com/onnwee/freelancehub/internal/listing"
	"github.com/onnwee/freelancehub/internal/middleware"
	"github.com/onnwee/freelancehub/internal/payment"
	"github.com/onnwee/freelancehub/internal/upload"
	"github.com/onnwee/freelancehub/internal/user"
)

// ServiceName names the API in traces.
const ServiceName = "freelancehub-api"

// RateLimitStoreFunc returns the store for one limit scope ("global", "auth" or "search").
// Scopes must not share counters.
type RateLimitStoreFunc func(scope string) middleware.RateLimitStore

// RouterConfig holds every dependency of the HTTP API.
type RouterConfig struct {
	Users       user.Repository
	Services    listing.Repository
	Listings    listing.Store
	Chat        *chat.Service
	Hub         *chat.Hub
	Payments    payment.Repository
	Webhooks    payment.WebhookRepository
	Idempotency idempotency.Repository
	Stripe      payment.Client
	Ranker      Ranker
	Images      ImageSanitizer
	Storage     upload.Store
	Tokens      interface {
		TokenIssuer
		middleware.TokenValidator
	}

	Health HealthHandlersConfig

	PublicBaseURL       string
	StripeWebhookSecret string
	AllowedOrigins      []string
	SecureCookies       bool

	Logger          *slog.Logger
	RateLimitStores RateLimitStoreFunc
	Metrics         *middleware.Metrics
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// UploadsHandler serves /uploads/ when objects are kept in memory.
	UploadsHandler http.Handler
}

// NewRouter builds the API handler with its middleware chain:
// RequestID, Tracing, Logging, HTTPMetrics, CORS, NoCache and the global rate limit.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	requireAuth := middleware.RequireAuth(cfg.Tokens, cfg.Metrics)
	authed := func(h http.HandlerFunc) http.Handler { return requireAuth(h) }

	authLimit := middleware.RateLimiter(cfg.RateLimitStores("auth"), middleware.DefaultAuthLimit(), middleware.IPKeyFunc(), cfg.Metrics)
	searchLimit := middleware.RateLimiter(cfg.RateLimitStores("search"), middleware.DefaultSearchLimit(), middleware.UserKeyFunc(), cfg.Metrics)
	idempotent := middleware.Idempotency(cfg.Idempotency)

	health := NewHealthHandlers(cfg.Health)
	mux.HandleFunc("GET /health", health.Health)
	mux.HandleFunc("GET /ready", health.Ready)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}
	if cfg.UploadsHandler != nil {
		mux.Handle("GET /uploads/", cfg.UploadsHandler)
	}

	authH := NewAuthHandlers(cfg.Users, cfg.Tokens, cfg.SecureCookies)
	mux.Handle("POST /register", authLimit(http.HandlerFunc(authH.Register)))
	mux.Handle("POST /login", authLimit(http.HandlerFunc(authH.Login)))
	mux.HandleFunc("POST /logout", authH.Logout)

	buyer := NewBuyerHandlers(cfg.Listings, cfg.Users, cfg.Ranker)
	mux.Handle("GET /buyer", authed(buyer.Dashboard))
	mux.Handle("POST /set_preferences", authed(buyer.SetPreferences))
	mux.Handle("GET /search", requireAuth(searchLimit(http.HandlerFunc(buyer.Search))))

	seller := NewSellerHandlers(cfg.Services, cfg.Chat, cfg.Images, cfg.Storage)
	mux.Handle("GET /seller", authed(seller.Dashboard))
	mux.Handle("GET /seller/inbox", authed(seller.Inbox))
	mux.Handle("POST /services", authed(seller.Create))
	mux.Handle("PUT /services/{id}", authed(seller.Update))
	mux.Handle("DELETE /services/{id}", authed(seller.Delete))

	services := NewServiceHandlers(cfg.Services, cfg.Payments, cfg.Stripe, cfg.PublicBaseURL)
	mux.Handle("GET /services/{id}", authed(services.Detail))
	mux.Handle("POST /services/{id}/checkout", requireAuth(idempotent(http.HandlerFunc(services.Checkout))))
	mux.Handle("GET /success", authed(services.Success))
	mux.Handle("GET /cancel", authed(services.Cancel))

	chatH := NewChatHandlers(cfg.Chat, cfg.Hub, cfg.AllowedOrigins)
	mux.Handle("POST /chat/{serviceID}", authed(chatH.Open))
	mux.Handle("GET /conversations/{id}/messages", authed(chatH.Messages))
	mux.Handle("POST /conversations/{id}/messages", authed(chatH.Send))
	mux.Handle("GET /conversations/{id}/ws", authed(chatH.Subscribe))
	mux.Handle("GET /inbox", authed(chatH.Inbox))
	mux.Handle("GET /api/conversations", authed(chatH.Recent))
	mux.Handle("GET /notifications", authed(chatH.Notifications))

	resumeH := NewResumeHandlers(cfg.Users, cfg.Storage)
	mux.Handle("GET /resume", authed(resumeH.Get))
	mux.Handle("POST /resume", authed(resumeH.Upload))

	webhooks := NewWebhookHandlers(cfg.StripeWebhookSecret, cfg.Payments, cfg.Webhooks)
	mux.HandleFunc("POST /internal/stripe", webhooks.HandleStripeWebhook)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Not found")
	})

	var handler http.Handler = mux
	handler = middleware.RateLimiter(cfg.RateLimitStores("global"), middleware.DefaultGlobalLimit(), middleware.IPKeyFunc(), cfg.Metrics)(handler)
	handler = middleware.NoCache(handler)
	handler = middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins))(handler)
	if cfg.Metrics != nil {
		handler = middleware.HTTPMetrics(cfg.Metrics)(handler)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing(ServiceName)(handler)
	return middleware.RequestID(handler)
}
