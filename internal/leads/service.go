// internal/leads/service.go
package leads

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"leadcrm/internal/activity"
	"leadcrm/internal/metrics"
	"leadcrm/internal/model"
	"leadcrm/internal/query"
	"leadcrm/internal/storage"
)

// ErrValidation marks input that was rejected before touching the store.
var ErrValidation = errors.New("invalid input")

// Store is the slice of the record store the service needs.
type Store interface {
	CountLeads(p query.Predicate) (int, error)
	SelectLeads(p query.Predicate, limit, offset int) ([]model.Lead, error)
	CreateLead(l *model.Lead) error
	GetLead(id, userID uuid.UUID) (model.Lead, error)
	UpdateLead(l *model.Lead) error
	DeleteLead(id, userID uuid.UUID) error
	LeadEmailTaken(userID uuid.UUID, email string, exclude uuid.UUID) (bool, error)
}

// Publisher emits lead activity events. May be nil when the event pipeline is
// disabled (e.g. in tests).
type Publisher interface {
	PublishEvent(ev activity.Event) error
}

// Envelope is the paginated list response.
type Envelope struct {
	Data       []model.Lead `json:"data"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	Total      int          `json:"total"`
	TotalPages int          `json:"totalPages"`
}

type Service struct {
	store     Store
	publisher Publisher
}

func NewService(store Store, publisher Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// List compiles the filter document into a tenant-scoped predicate and runs
// the two-step count + fetch. The two reads are not transactional; a
// concurrent writer may skew total against the returned rows by one
// page-worth, which is accepted.
func (s *Service) List(userID uuid.UUID, f query.Filters, page query.Page) (*Envelope, error) {
	filtered := "no"
	if len(f) > 0 {
		filtered = "yes"
	}
	timer := time.Now()
	defer func() {
		metrics.ListQueries.WithLabelValues(filtered).Observe(time.Since(timer).Seconds())
	}()

	pred := query.Compile(userID.String(), f)

	total, err := s.store.CountLeads(pred)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.SelectLeads(pred, page.Limit, page.Offset())
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Data:       rows,
		Page:       page.Number,
		Limit:      page.Limit,
		Total:      total,
		TotalPages: query.TotalPages(total, page.Limit),
	}, nil
}

// Create validates and inserts a new lead for the tenant. The duplicate-email
// pre-check only exists to answer with a friendly conflict before the
// (user_id, email) unique index would; the index remains the real guarantee
// against concurrent creators.
func (s *Service) Create(userID uuid.UUID, l model.Lead) (*model.Lead, error) {
	l.ID = uuid.New()
	l.UserID = userID
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	taken, err := s.store.LeadEmailTaken(userID, l.Email, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, storage.ErrDuplicateEmail
	}

	if err := s.store.CreateLead(&l); err != nil {
		metrics.LeadOperations.WithLabelValues("create", "error").Inc()
		return nil, err
	}
	metrics.LeadOperations.WithLabelValues("create", "ok").Inc()

	s.publish(l.ID, userID, model.ActivityCreated)
	return &l, nil
}

func (s *Service) Get(userID, id uuid.UUID) (*model.Lead, error) {
	l, err := s.store.GetLead(id, userID)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Update replaces a lead's mutable fields. Order matters: ownership first so
// a foreign tenant sees not-found, then the duplicate-email check excluding
// the lead itself.
func (s *Service) Update(userID, id uuid.UUID, in model.Lead) (*model.Lead, error) {
	existing, err := s.store.GetLead(id, userID)
	if err != nil {
		return nil, err
	}

	in.ID = existing.ID
	in.UserID = userID
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	taken, err := s.store.LeadEmailTaken(userID, in.Email, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, storage.ErrDuplicateEmail
	}

	in.CreatedAt = existing.CreatedAt
	in.LastActivityAt = existing.LastActivityAt
	if err := s.store.UpdateLead(&in); err != nil {
		metrics.LeadOperations.WithLabelValues("update", "error").Inc()
		return nil, err
	}
	metrics.LeadOperations.WithLabelValues("update", "ok").Inc()

	s.publish(id, userID, model.ActivityUpdated)
	return &in, nil
}

func (s *Service) Delete(userID, id uuid.UUID) error {
	if err := s.store.DeleteLead(id, userID); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			metrics.LeadOperations.WithLabelValues("delete", "error").Inc()
		}
		return err
	}
	metrics.LeadOperations.WithLabelValues("delete", "ok").Inc()

	s.publish(id, userID, model.ActivityDeleted)
	return nil
}

// publish never fails the originating request; a dead broker costs the
// activity record, not the mutation.
func (s *Service) publish(leadID, userID uuid.UUID, kind string) {
	if s.publisher == nil {
		return
	}
	ev := activity.Event{LeadID: leadID, UserID: userID, Kind: kind, At: time.Now().UTC()}
	if err := s.publisher.PublishEvent(ev); err != nil {
		log.Printf("Failed to publish %s event for lead %s: %v", kind, leadID, err)
	}
}
