package bookingstore

import (
	"sort"
	"sync"
	"time"

	"flightdesk/app/model"

	"github.com/google/uuid"
)

type record struct {
	booking model.BookingSummary
	seq     uint64
	key     string
}

// Store keeps bookings in memory. Idempotency keys map to the booking they
// created until that booking is deleted.
type Store struct {
	now func() time.Time

	mu       sync.RWMutex
	seq      uint64
	bookings map[string]*record
	byKey    map[string]string
}

func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}

	return &Store{
		now:      now,
		bookings: make(map[string]*record),
		byKey:    make(map[string]string),
	}
}

// Create stores a new booking. When key was already used the existing booking
// is returned with created set to false.
func (s *Store) Create(req model.BookingRequest, key string) (model.BookingSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if id, ok := s.byKey[key]; ok {
			if rec, ok := s.bookings[id]; ok {
				return rec.booking, false
			}
		}
	}

	status := req.Status
	if status == "" {
		status = model.BookingStatusActive
	}

	s.seq++
	rec := &record{
		booking: model.BookingSummary{
			ID:        uuid.NewString(),
			UserID:    req.UserID,
			TripID:    req.TripID,
			Price:     req.Price,
			Status:    status,
			CreatedAt: s.now().UTC(),
		},
		seq: s.seq,
		key: key,
	}

	s.bookings[rec.booking.ID] = rec
	if key != "" {
		s.byKey[key] = rec.booking.ID
	}

	return rec.booking, true
}

func (s *Store) Get(id string) (model.BookingSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.bookings[id]
	if !ok {
		return model.BookingSummary{}, false
	}

	return rec.booking, true
}

// List returns every booking, newest first.
func (s *Store) List() []model.BookingSummary {
	s.mu.RLock()
	records := make([]*record, 0, len(s.bookings))
	for _, rec := range s.bookings {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].seq > records[j].seq
	})

	result := make([]model.BookingSummary, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.booking)
	}

	return result
}

func (s *Store) Update(id string, req model.BookingRequest) (model.BookingSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.bookings[id]
	if !ok {
		return model.BookingSummary{}, false
	}

	rec.booking.UserID = req.UserID
	rec.booking.TripID = req.TripID
	rec.booking.Price = req.Price
	if req.Status != "" {
		rec.booking.Status = req.Status
	}

	return rec.booking, true
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.bookings[id]
	if !ok {
		return false
	}

	delete(s.bookings, id)
	if rec.key != "" && s.byKey[rec.key] == id {
		delete(s.byKey, rec.key)
	}

	return true
}
