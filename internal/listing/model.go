// Package listing provides the service listing model and its persistence.
package listing

import (
	"errors"
	"time"
)

// DefaultImageURL is shown for services without an uploaded image.
const DefaultImageURL = "/static/default_image.png"

// DefaultTag is applied when a seller does not pick a category.
const DefaultTag = "Other"

// ServiceTags is the canonical category menu, in display order.
var ServiceTags = []string{
	"Web Development",
	"Graphic Design",
	"Tutoring",
	"Electrical",
	"Translation",
	"Writing",
	"Photography",
	"Video Editing",
	"Marketing",
	"AI & Data",
}

var (
	// ErrServiceNotFound is returned when a service does not exist or is not owned by the caller.
	ErrServiceNotFound = errors.New("service not found")

	// ErrInvalidPrice is returned when a price is not positive.
	ErrInvalidPrice = errors.New("price must be greater than zero")
)

// Service is a seller-posted offering as stored.
type Service struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Tag         string    `json:"tag"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Listing is the read view of a service joined with its seller.
// Rankers receive listings by value and never modify them.
type Listing struct {
	ID             int64   `json:"id"`
	OwnerID        int64   `json:"owner_id"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Price          float64 `json:"price"`
	Tag            string  `json:"tag"`
	Resume         string  `json:"-"`
	SellerUsername string  `json:"seller_username"`
	ImageURL       string  `json:"image_url"`
}

// IsKnownTag reports whether tag is one of ServiceTags.
func IsKnownTag(tag string) bool {
	for _, t := range ServiceTags {
		if t == tag {
			return true
		}
	}
	return false
}

// FilterKnownTags keeps the canonical tags from tags, in their given order, without duplicates.
func FilterKnownTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if IsKnownTag(t) && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// imageOrDefault returns url, or DefaultImageURL when url is empty.
func imageOrDefault(url string) string {
	if url == "" {
		return DefaultImageURL
	}
	return url
}
