package handlers

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/libroteca/apiserver/internal/services"
	"github.com/libroteca/apiserver/internal/store"
	"github.com/libroteca/apiserver/types"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeUserRepo struct {
	users map[string]types.User
}

func newFakeUserRepo(users ...types.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]types.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	for _, existing := range r.users {
		if existing.ID != user.ID && existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Disable(_ context.Context, id string) error {
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Disabled = true
	r.users[id] = user
	return nil
}

type fakeBookRepo struct {
	books map[string]types.Book
}

func newFakeBookRepo(books ...types.Book) *fakeBookRepo {
	repo := &fakeBookRepo{books: make(map[string]types.Book)}
	for _, book := range books {
		repo.books[book.ID] = book
	}
	return repo
}

func (r *fakeBookRepo) List(_ context.Context, filter store.BookFilter) ([]types.Book, error) {
	var matched []types.Book
	for _, book := range r.books {
		if book.Disabled {
			continue
		}
		if filter.Title != "" && !containsFold(book.Title, filter.Title) {
			continue
		}
		if filter.Author != "" && !containsFold(book.Author, filter.Author) {
			continue
		}
		if filter.Genre != "" && !containsFold(book.Genre, filter.Genre) {
			continue
		}
		if filter.Publisher != "" && !containsFold(book.Publisher, filter.Publisher) {
			continue
		}
		if filter.PublicationDate != nil && !book.PublicationDate.Equal(*filter.PublicationDate) {
			continue
		}
		if filter.Available != nil && book.Available != *filter.Available {
			continue
		}
		matched = append(matched, book)
	}
	return matched, nil
}

func (r *fakeBookRepo) ListDisabled(_ context.Context) ([]types.Book, error) {
	var matched []types.Book
	for _, book := range r.books {
		if book.Disabled {
			matched = append(matched, book)
		}
	}
	return matched, nil
}

func (r *fakeBookRepo) Get(_ context.Context, id string) (types.Book, error) {
	book, ok := r.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	return book, nil
}

func (r *fakeBookRepo) Create(_ context.Context, book types.Book) (types.Book, error) {
	book.CreatedAt = time.Now()
	book.UpdatedAt = book.CreatedAt
	r.books[book.ID] = book
	return book, nil
}

func (r *fakeBookRepo) Update(_ context.Context, book types.Book) (types.Book, error) {
	stored, ok := r.books[book.ID]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	book.Reservations = stored.Reservations
	book.Available = stored.Available
	book.Disabled = stored.Disabled
	book.UpdatedAt = time.Now()
	r.books[book.ID] = book
	return book, nil
}

func (r *fakeBookRepo) Disable(_ context.Context, id string) error {
	book, ok := r.books[id]
	if !ok {
		return store.ErrNotFound
	}
	book.Disabled = true
	r.books[id] = book
	return nil
}

func (r *fakeBookRepo) AppendReservation(_ context.Context, bookID string, res types.Reservation) error {
	book, ok := r.books[bookID]
	if !ok || book.Disabled || !book.Available || len(book.Reservations) > 0 {
		return store.ErrNotAvailable
	}
	book.Reservations = append(book.Reservations, res)
	book.Available = false
	r.books[bookID] = book
	return nil
}

func (r *fakeBookRepo) ReplaceReservations(_ context.Context, bookID string, prev, next []types.Reservation) error {
	book, ok := r.books[bookID]
	if !ok || !reflect.DeepEqual(book.Reservations, prev) {
		return store.ErrConflict
	}
	book.Reservations = next
	book.Available = len(next) == 0
	r.books[bookID] = book
	return nil
}

func (r *fakeBookRepo) ListByReservationUser(_ context.Context, userID string) ([]types.Book, error) {
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

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// newTestRouter wires the handlers exactly like the server does, on top of
// the in-memory repositories.
func newTestRouter(userRepo *fakeUserRepo, bookRepo *fakeBookRepo) *chi.Mux {
	userService := services.NewUserService(userRepo)
	bookService := services.NewBookService(bookRepo)
	reservationService := services.NewReservationService(bookRepo, nil, "reservas")

	authMiddleware := RequireAuth(userService, testSecret)

	router := chi.NewRouter()
	UserRouter(router, userService, testSecret, authMiddleware)
	BookRouter(router, bookService, authMiddleware)
	ReservationRouter(router, reservationService, authMiddleware)
	return router
}

func tokenFor(t *testing.T, user types.User) string {
	t.Helper()
	token, err := issueToken(user, []byte(testSecret))
	require.NoError(t, err)
	return token
}
