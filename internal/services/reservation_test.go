package services

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/libroteca/apiserver/internal/store"
	"github.com/libroteca/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReservationRepo mirrors the store's conditional-write semantics in
// memory.
type fakeReservationRepo struct {
	books map[string]types.Book
}

func newFakeReservationRepo(books ...types.Book) *fakeReservationRepo {
	repo := &fakeReservationRepo{books: make(map[string]types.Book)}
	for _, book := range books {
		repo.books[book.ID] = book
	}
	return repo
}

func (r *fakeReservationRepo) Get(_ context.Context, id string) (types.Book, error) {
	book, ok := r.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	return book, nil
}

func (r *fakeReservationRepo) AppendReservation(_ context.Context, bookID string, res types.Reservation) error {
	book, ok := r.books[bookID]
	if !ok || book.Disabled || !book.Available || len(book.Reservations) > 0 {
		return store.ErrNotAvailable
	}
	book.Reservations = append(book.Reservations, res)
	book.Available = false
	r.books[bookID] = book
	return nil
}

func (r *fakeReservationRepo) ReplaceReservations(_ context.Context, bookID string, prev, next []types.Reservation) error {
	book, ok := r.books[bookID]
	if !ok || !reflect.DeepEqual(book.Reservations, prev) {
		return store.ErrConflict
	}
	book.Reservations = next
	book.Available = len(next) == 0
	r.books[bookID] = book
	return nil
}

func (r *fakeReservationRepo) ListByReservationUser(_ context.Context, userID string) ([]types.Book, error) {
	var matched []types.Book
	for _, book := range r.books {
		for _, res := range book.Reservations {
			if res.UserID == userID {
				matched = append(matched, book)
				break
			}
		}
	}
	return matched, nil
}

type fakePublisher struct {
	channels []string
	payloads [][]byte
	attrs    []map[string]string
}

func (p *fakePublisher) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, data)
	p.attrs = append(p.attrs, attrs)
	return "msg-1", nil
}

func availableBook(id string) types.Book {
	return types.Book{
		ID:           id,
		Title:        "Cien años de soledad",
		Author:       "Gabriel García Márquez",
		Genre:        "Realismo mágico",
		Publisher:    "Sudamericana",
		Available:    true,
		Reservations: []types.Reservation{},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestReserveTransitionsBookToReserved(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeReservationRepo(availableBook("b1"))
	publisher := &fakePublisher{}
	svc := NewReservationService(repo, publisher, "reservas")
	svc.now = fixedClock(now)

	res, err := svc.Reserve(context.Background(), "b1", "u1", "Ana", now.Add(24*time.Hour), now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, "Ana", res.UserName)

	book := repo.books["b1"]
	assert.False(t, book.Available)
	require.Len(t, book.Reservations, 1)
	assert.Equal(t, book.Available, len(book.Reservations) == 0)

	require.Len(t, publisher.channels, 1)
	assert.Equal(t, "reservas", publisher.channels[0])
	assert.Equal(t, "reservada", publisher.attrs[0]["accion"])
}

func TestReserveUnknownBook(t *testing.T) {
	svc := NewReservationService(newFakeReservationRepo(), nil, "reservas")

	_, err := svc.Reserve(context.Background(), "missing", "u1", "Ana", time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReserveDisabledBookLooksAbsent(t *testing.T) {
	book := availableBook("b1")
	book.Disabled = true
	svc := NewReservationService(newFakeReservationRepo(book), nil, "reservas")

	_, err := svc.Reserve(context.Background(), "b1", "u1", "Ana", time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReserveConflictDoesNotMutate(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeReservationRepo(availableBook("b1"))
	svc := NewReservationService(repo, nil, "reservas")
	svc.now = fixedClock(now)

	_, err := svc.Reserve(context.Background(), "b1", "u1", "Ana", now.Add(24*time.Hour), now.Add(48*time.Hour))
	require.NoError(t, err)
	before := repo.books["b1"]

	_, err = svc.Reserve(context.Background(), "b1", "u2", "Berta", now.Add(24*time.Hour), now.Add(48*time.Hour))
	assert.ErrorIs(t, err, store.ErrNotAvailable)
	assert.Equal(t, before, repo.books["b1"])
}

func TestReserveDateValidation(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeReservationRepo(availableBook("b1"))
	svc := NewReservationService(repo, nil, "reservas")
	svc.now = fixedClock(now)

	_, err := svc.Reserve(context.Background(), "b1", "u1", "Ana", now.Add(-time.Minute), now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrStartInPast)

	// end == start fails: the bound is strict.
	_, err = svc.Reserve(context.Background(), "b1", "u1", "Ana", now.Add(time.Hour), now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrEndNotAfterStart)

	_, err = svc.Reserve(context.Background(), "b1", "u1", "Ana", now.Add(2*time.Hour), now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrEndNotAfterStart)

	// Validation failures leave the book untouched.
	book := repo.books["b1"]
	assert.True(t, book.Available)
	assert.Empty(t, book.Reservations)

	// start == now is the non-strict lower bound.
	_, err = svc.Reserve(context.Background(), "b1", "u1", "Ana", now, now.Add(time.Hour))
	assert.NoError(t, err)
}

func TestCancelRestoresAvailability(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeReservationRepo(availableBook("b1"))
	publisher := &fakePublisher{}
	svc := NewReservationService(repo, publisher, "reservas")
	svc.now = fixedClock(now)

	_, err := svc.Reserve(context.Background(), "b1", "u1", "Ana", now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)

	book, err := svc.Cancel(context.Background(), "b1", "u1")
	require.NoError(t, err)
	assert.True(t, book.Available)
	assert.Empty(t, book.Reservations)

	stored := repo.books["b1"]
	assert.True(t, stored.Available)
	assert.Empty(t, stored.Reservations)

	require.Len(t, publisher.attrs, 2)
	assert.Equal(t, "cancelada", publisher.attrs[1]["accion"])
}

func TestCancelWithoutReservationLeavesBookUnmodified(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeReservationRepo(availableBook("b1"))
	svc := NewReservationService(repo, nil, "reservas")
	svc.now = fixedClock(now)

	_, err := svc.Reserve(context.Background(), "b1", "u1", "Ana", now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)
	before := repo.books["b1"]

	_, err = svc.Cancel(context.Background(), "b1", "u2")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, before, repo.books["b1"])
}

func TestCancelRemovesOnlyFirstMatch(t *testing.T) {
	// The invariant keeps the list at one entry, but cancellation is
	// defined to remove only the first match if it were ever violated.
	book := availableBook("b1")
	book.Available = false
	book.Reservations = []types.Reservation{
		{UserID: "u1", UserName: "Ana", StartDate: time.Now(), EndDate: time.Now().Add(time.Hour)},
		{UserID: "u1", UserName: "Ana", StartDate: time.Now().Add(2 * time.Hour), EndDate: time.Now().Add(3 * time.Hour)},
	}
	repo := newFakeReservationRepo(book)
	svc := NewReservationService(repo, nil, "reservas")

	updated, err := svc.Cancel(context.Background(), "b1", "u1")
	require.NoError(t, err)
	require.Len(t, updated.Reservations, 1)
	assert.False(t, updated.Available)
	assert.Equal(t, book.Reservations[1], updated.Reservations[0])
}

func TestListForBook(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeReservationRepo(availableBook("b1"))
	svc := NewReservationService(repo, nil, "reservas")
	svc.now = fixedClock(now)

	reservations, err := svc.ListForBook(context.Background(), "b1")
	require.NoError(t, err)
	assert.Empty(t, reservations)

	_, err = svc.Reserve(context.Background(), "b1", "u1", "Ana", now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)

	reservations, err = svc.ListForBook(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, "u1", reservations[0].UserID)

	_, err = svc.ListForBook(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListForUserProjectsBookFields(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	first := availableBook("b1")
	second := availableBook("b2")
	second.Title = "El otoño del patriarca"
	repo := newFakeReservationRepo(first, second)
	svc := NewReservationService(repo, nil, "reservas")
	svc.now = fixedClock(now)

	_, err := svc.Reserve(context.Background(), "b1", "u1", "Ana", now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = svc.Reserve(context.Background(), "b2", "u2", "Berta", now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)

	reservations, err := svc.ListForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, "b1", reservations[0].BookID)
	assert.Equal(t, "Cien años de soledad", reservations[0].Title)
	assert.Equal(t, "Gabriel García Márquez", reservations[0].Author)
	assert.Equal(t, now.Add(time.Hour), reservations[0].Reservation.StartDate)
}

func TestPublisherFailureDoesNotFailReserve(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeReservationRepo(availableBook("b1"))
	svc := NewReservationService(repo, failingPublisher{}, "reservas")
	svc.now = fixedClock(now)

	_, err := svc.Reserve(context.Background(), "b1", "u1", "Ana", now.Add(time.Hour), now.Add(2*time.Hour))
	assert.NoError(t, err)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, []byte, map[string]string) (string, error) {
	return "", context.DeadlineExceeded
}
