package listing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository persists services for their owners.
type Repository interface {
	Insert(ctx context.Context, svc *Service) error
	GetByID(ctx context.Context, id int64) (*Service, error)
	GetListing(ctx context.Context, id int64) (*Listing, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*Service, error)
	// Update changes title, description and price. Only the owner may update.
	Update(ctx context.Context, svc *Service) error
	// Delete removes a service. Only the owner may delete.
	Delete(ctx context.Context, id, ownerID int64) error
}

// Store is the read side consumed by ranking and recommendation.
type Store interface {
	FetchAllListings(ctx context.Context) ([]Listing, error)
	FetchListingsExcludingOwner(ctx context.Context, userID int64) ([]Listing, error)
	FetchUserPreferences(ctx context.Context, userID int64) ([]string, error)
}

// SellerDirectory resolves seller details for the in-memory repository.
type SellerDirectory interface {
	SellerProfile(ctx context.Context, userID int64) (username, resume string, err error)
	Preferences(ctx context.Context, userID int64) ([]string, error)
}

// InMemoryRepository implements Repository and Store with in-memory storage.
type InMemoryRepository struct {
	mu       sync.RWMutex
	services map[int64]*Service
	nextID   int64
	sellers  SellerDirectory
}

// NewInMemoryRepository creates an in-memory repository that joins sellers through dir.
func NewInMemoryRepository(dir SellerDirectory) *InMemoryRepository {
	return &InMemoryRepository{
		services: make(map[int64]*Service),
		nextID:   1,
		sellers:  dir,
	}
}

// Insert stores a new service and assigns its ID.
func (r *InMemoryRepository) Insert(ctx context.Context, svc *Service) error {
	if svc.Price <= 0 {
		return ErrInvalidPrice
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if svc.Tag == "" {
		svc.Tag = DefaultTag
	}
	now := time.Now()
	svc.ID = r.nextID
	svc.CreatedAt = now
	svc.UpdatedAt = now
	r.nextID++

	copied := *svc
	r.services[svc.ID] = &copied
	return nil
}

// GetByID returns a copy of the service with the given ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id int64) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	copied := *svc
	return &copied, nil
}

// GetListing returns the service joined with its seller.
func (r *InMemoryRepository) GetListing(ctx context.Context, id int64) (*Listing, error) {
	svc, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	l, err := r.toListing(ctx, svc)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListByOwner returns the owner's services ordered by ID.
func (r *InMemoryRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Service
	for _, svc := range r.sorted() {
		if svc.OwnerID == ownerID {
			copied := *svc
			out = append(out, &copied)
		}
	}
	return out, nil
}

// Update applies an owner's edit.
func (r *InMemoryRepository) Update(ctx context.Context, svc *Service) error {
	if svc.Price <= 0 {
		return ErrInvalidPrice
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.services[svc.ID]
	if !ok || existing.OwnerID != svc.OwnerID {
		return ErrServiceNotFound
	}
	existing.Title = svc.Title
	existing.Description = svc.Description
	existing.Price = svc.Price
	existing.UpdatedAt = time.Now()

	*svc = *existing
	return nil
}

// Delete removes a service owned by ownerID.
func (r *InMemoryRepository) Delete(ctx context.Context, id, ownerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.services[id]
	if !ok || existing.OwnerID != ownerID {
		return ErrServiceNotFound
	}
	delete(r.services, id)
	return nil
}

// FetchAllListings returns every listing in ID order.
func (r *InMemoryRepository) FetchAllListings(ctx context.Context) ([]Listing, error) {
	return r.fetch(ctx, func(*Service) bool { return true })
}

// FetchListingsExcludingOwner returns listings not owned by userID, in ID order.
func (r *InMemoryRepository) FetchListingsExcludingOwner(ctx context.Context, userID int64) ([]Listing, error) {
	return r.fetch(ctx, func(s *Service) bool { return s.OwnerID != userID })
}

// FetchUserPreferences returns the user's saved tags in order.
func (r *InMemoryRepository) FetchUserPreferences(ctx context.Context, userID int64) ([]string, error) {
	return r.sellers.Preferences(ctx, userID)
}

func (r *InMemoryRepository) fetch(ctx context.Context, keep func(*Service) bool) ([]Listing, error) {
	r.mu.RLock()
	var services []Service
	for _, svc := range r.sorted() {
		if keep(svc) {
			services = append(services, *svc)
		}
	}
	r.mu.RUnlock()

	out := make([]Listing, 0, len(services))
	for i := range services {
		l, err := r.toListing(ctx, &services[i])
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// sorted returns services ordered by ID. Caller must hold the lock.
func (r *InMemoryRepository) sorted() []*Service {
	out := make([]*Service, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *InMemoryRepository) toListing(ctx context.Context, svc *Service) (Listing, error) {
	username, resume, err := r.sellers.SellerProfile(ctx, svc.OwnerID)
	if err != nil {
		return Listing{}, err
	}
	return Listing{
		ID:             svc.ID,
		OwnerID:        svc.OwnerID,
		Title:          svc.Title,
		Description:    svc.Description,
		Price:          svc.Price,
		Tag:            svc.Tag,
		Resume:         resume,
		SellerUsername: username,
		ImageURL:       imageOrDefault(svc.ImageURL),
	}, nil
}
