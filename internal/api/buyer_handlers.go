package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/onnwee/freelancehub/internal/listing"
	"github.com/onnwee/freelancehub/internal/middleware"
	"github.com/onnwee/freelancehub/internal/ranking"
)

// Ranker orders listings by semantic similarity.
type Ranker interface {
	Search(ctx context.Context, listings []listing.Listing, query string) ([]ranking.Result, error)
	Recommend(ctx context.Context, listings []listing.Listing, tags []string) ([]listing.Listing, error)
}

// PreferenceWriter stores a user's ordered preference tags.
type PreferenceWriter interface {
	UpdatePreferences(ctx context.Context, id int64, prefs []string) error
}

// warningUnranked is returned when listings are served without ranking.
const warningUnranked = "Ranking is temporarily unavailable; showing listings unranked"

// BuyerHandlers serves the buyer dashboard, preferences and search.
type BuyerHandlers struct {
	store  listing.Store
	prefs  PreferenceWriter
	ranker Ranker
}

// NewBuyerHandlers creates the buyer handlers.
func NewBuyerHandlers(store listing.Store, prefs PreferenceWriter, ranker Ranker) *BuyerHandlers {
	return &BuyerHandlers{store: store, prefs: prefs, ranker: ranker}
}

// BuyerResponse is the body of GET /buyer.
type BuyerResponse struct {
	Services         []listing.Listing `json:"services"`
	Tags             []string          `json:"tags"`
	SelectedCategory *string           `json:"selected_category"`
	Ranked           bool              `json:"ranked"`
	Warning          string            `json:"warning,omitempty"`
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Query            string           `json:"query"`
	Results          []ranking.Result `json:"results"`
	Tags             []string         `json:"tags"`
	SelectedCategory *string          `json:"selected_category"`
	Ranked           bool             `json:"ranked"`
	Warning          string           `json:"warning,omitempty"`
}

// PreferencesRequest is the body of POST /set_preferences.
type PreferencesRequest struct {
	SelectedTags []string `json:"selected_tags"`
}

// Dashboard handles GET /buyer: other sellers' listings ordered by the caller's preferences.
// If ranking fails the listings are returned in store order with a warning.
func (h *BuyerHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	listings, err := h.store.FetchListingsExcludingOwner(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch listings", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load services")
		return
	}
	prefs, err := h.store.FetchUserPreferences(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch preferences", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load preferences")
		return
	}

	resp := BuyerResponse{Services: listings, Ranked: len(prefs) > 0}
	var active string
	if len(prefs) > 0 {
		active = prefs[0]
		resp.SelectedCategory = &active
	}
	resp.Tags = ranking.ReorderCategories(listing.ServiceTags, active)

	if len(prefs) > 0 {
		ranked, err := h.ranker.Recommend(ctx, listings, prefs)
		switch {
		case err == nil:
			resp.Services = ranked
		case errors.Is(err, ranking.ErrEmbeddingUnavailable):
			slog.WarnContext(ctx, "recommendation unavailable, serving unranked", "error", err)
			resp.Ranked = false
			resp.Warning = warningUnranked
		default:
			slog.ErrorContext(ctx, "failed to rank listings", "error", err)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to rank services")
			return
		}
	}
	if resp.Services == nil {
		resp.Services = []listing.Listing{}
	}

	writeJSON(w, ctx, http.StatusOK, resp)
}

// SetPreferences handles POST /set_preferences. Unknown tags are dropped and a
// malformed body stores an empty list.
func (h *BuyerHandlers) SetPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req PreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.WarnContext(ctx, "malformed preferences, clearing", "error", err)
		req.SelectedTags = nil
	}
	tags := listing.FilterKnownTags(req.SelectedTags)

	if err := h.prefs.UpdatePreferences(ctx, userID, tags); err != nil {
		slog.ErrorContext(ctx, "failed to store preferences", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to save preferences")
		return
	}
	writeJSON(w, ctx, http.StatusOK, map[string]any{"preferences": tags})
}

// MaxSearchQueryLength caps the search box input, in runes.
const MaxSearchQueryLength = 1024

// Search handles GET /search?query=. Without a query every listing is returned unranked.
func (h *BuyerHandlers) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if utf8.RuneCountInString(query) > MaxSearchQueryLength {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidQuery, "Search query is too long")
		return
	}

	listings, err := h.store.FetchAllListings(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch listings", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load services")
		return
	}

	resp := SearchResponse{
		Query: query,
		Tags:  append([]string(nil), listing.ServiceTags...),
	}
	if listing.IsKnownTag(query) {
		selected := query
		resp.SelectedCategory = &selected
	}

	if query != "" {
		results, err := h.ranker.Search(ctx, listings, query)
		switch {
		case err == nil:
			resp.Results = results
			resp.Ranked = true
		case errors.Is(err, ranking.ErrInvalidQuery):
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidQuery, "Invalid search query")
			return
		case errors.Is(err, ranking.ErrEmbeddingUnavailable):
			slog.WarnContext(ctx, "search ranking unavailable, serving unranked", "error", err)
			resp.Warning = warningUnranked
		default:
			slog.ErrorContext(ctx, "failed to rank listings", "error", err)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Search failed")
			return
		}
	}

	if !resp.Ranked {
		resp.Results = make([]ranking.Result, len(listings))
		for i, l := range listings {
			resp.Results[i] = ranking.Result{Listing: l}
		}
	}
	writeJSON(w, ctx, http.StatusOK, resp)
}
