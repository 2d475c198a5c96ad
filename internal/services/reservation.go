package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/libroteca/apiserver/internal/store"
	"github.com/libroteca/apiserver/types"
)

// Date validation failures surfaced to the handler as bad requests.
var (
	ErrStartInPast      = errors.New("reservation start date is in the past")
	ErrEndNotAfterStart = errors.New("reservation end date must be after the start date")
)

const (
	eventReserved  = "reservada"
	eventCancelled = "cancelada"
)

// ReservationRepository defines the persistence operations the reservation
// manager relies on. The two write operations are conditional at the store
// boundary so concurrent mutations of the same book cannot be lost.
type ReservationRepository interface {
	Get(ctx context.Context, id string) (types.Book, error)
	AppendReservation(ctx context.Context, bookID string, res types.Reservation) error
	ReplaceReservations(ctx context.Context, bookID string, prev, next []types.Reservation) error
	ListByReservationUser(ctx context.Context, userID string) ([]types.Book, error)
}

// EventPublisher sends reservation lifecycle events to a broker.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// ReservationEvent is the payload published on reserve and cancel.
type ReservationEvent struct {
	BookID    string    `json:"libroId"`
	UserID    string    `json:"usuarioId"`
	Action    string    `json:"accion"`
	StartDate time.Time `json:"fechaReserva"`
	EndDate   time.Time `json:"fechaEntrega"`
}

// ReservationService enforces the reservation state machine: a book holds
// at most one active reservation, availability mirrors list emptiness, and
// dates must be ordered and not start in the past.
type ReservationService struct {
	repo    ReservationRepository
	events  EventPublisher
	channel string
	now     func() time.Time
}

func NewReservationService(repo ReservationRepository, events EventPublisher, channel string) *ReservationService {
	return &ReservationService{
		repo:    repo,
		events:  events,
		channel: channel,
		now:     time.Now,
	}
}

// Reserve books the given date range for the user. The Available -> Reserved
// transition happens in one conditional write; if another request wins the
// race the write affects no rows and surfaces as store.ErrNotAvailable.
func (s *ReservationService) Reserve(ctx context.Context, bookID, userID, userName string, start, end time.Time) (types.Reservation, error) {
	book, err := s.repo.Get(ctx, bookID)
	if err != nil {
		return types.Reservation{}, err
	}
	if book.Disabled {
		return types.Reservation{}, store.ErrNotFound
	}
	if !book.Available || len(book.Reservations) > 0 {
		return types.Reservation{}, store.ErrNotAvailable
	}

	now := s.now()
	if start.Before(now) {
		return types.Reservation{}, ErrStartInPast
	}
	if !end.After(start) {
		return types.Reservation{}, ErrEndNotAfterStart
	}

	res := types.Reservation{
		UserID:    userID,
		UserName:  userName,
		StartDate: start,
		EndDate:   end,
		CreatedAt: now,
	}
	if err := s.repo.AppendReservation(ctx, bookID, res); err != nil {
		return types.Reservation{}, err
	}

	s.publish(ctx, eventReserved, bookID, res)
	return res, nil
}

// ListForBook returns the reservations embedded in the book. Under correct
// usage the list holds at most one entry, but it is returned whole.
func (s *ReservationService) ListForBook(ctx context.Context, bookID string) ([]types.Reservation, error) {
	book, err := s.repo.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.Disabled {
		return nil, store.ErrNotFound
	}
	if book.Reservations == nil {
		return []types.Reservation{}, nil
	}
	return book.Reservations, nil
}

// Cancel removes the first reservation made by the user and, when the list
// empties, flips the book back to Available. The write is guarded by the
// list that was read, so a concurrent mutation surfaces as
// store.ErrConflict instead of silently dropping someone else's entry.
func (s *ReservationService) Cancel(ctx context.Context, bookID, userID string) (types.Book, error) {
	book, err := s.repo.Get(ctx, bookID)
	if err != nil {
		return types.Book{}, err
	}
	if book.Disabled {
		return types.Book{}, store.ErrNotFound
	}

	idx := -1
	for i, res := range book.Reservations {
		if res.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return types.Book{}, store.ErrNotFound
	}

	cancelled := book.Reservations[idx]
	next := make([]types.Reservation, 0, len(book.Reservations)-1)
	next = append(next, book.Reservations[:idx]...)
	next = append(next, book.Reservations[idx+1:]...)

	if err := s.repo.ReplaceReservations(ctx, bookID, book.Reservations, next); err != nil {
		return types.Book{}, err
	}

	book.Reservations = next
	book.Available = len(next) == 0

	s.publish(ctx, eventCancelled, bookID, cancelled)
	return book, nil
}

// ListForUser returns every reservation the user holds across the catalog,
// projected with the owning book's title and author.
func (s *ReservationService) ListForUser(ctx context.Context, userID string) ([]types.UserReservation, error) {
	books, err := s.repo.ListByReservationUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	reservations := make([]types.UserReservation, 0, len(books))
	for _, book := range books {
		for _, res := range book.Reservations {
			if res.UserID != userID {
				continue
			}
			reservations = append(reservations, types.UserReservation{
				BookID: book.ID,
				Title:  book.Title,
				Author: book.Author,
				Reservation: types.ReservationDates{
					StartDate: res.StartDate,
					EndDate:   res.EndDate,
				},
			})
		}
	}
	return reservations, nil
}

// publish sends the lifecycle event best-effort; a broker failure never
// fails the request.
func (s *ReservationService) publish(ctx context.Context, action, bookID string, res types.Reservation) {
	if s.events == nil {
		return
	}

	event := ReservationEvent{
		BookID:    bookID,
		UserID:    res.UserID,
		Action:    action,
		StartDate: res.StartDate,
		EndDate:   res.EndDate,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if _, err := s.events.Publish(ctx, s.channel, data, map[string]string{"accion": action}); err != nil {
		log.Printf("publishing reservation event: %v", err)
	}
}
