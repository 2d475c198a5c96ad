package services

import (
	"context"

	"github.com/libroteca/apiserver/internal/store"
	"github.com/libroteca/apiserver/types"
)

// BookRepository defines persistence operations for catalog records.
type BookRepository interface {
	List(ctx context.Context, filter store.BookFilter) ([]types.Book, error)
	ListDisabled(ctx context.Context) ([]types.Book, error)
	Get(ctx context.Context, id string) (types.Book, error)
	Create(ctx context.Context, book types.Book) (types.Book, error)
	Update(ctx context.Context, book types.Book) (types.Book, error)
	Disable(ctx context.Context, id string) error
}

// BookService encapsulates catalog use-cases.
type BookService struct {
	repo BookRepository
}

func NewBookService(repo BookRepository) *BookService {
	return &BookService{repo: repo}
}

func (s *BookService) List(ctx context.Context, filter store.BookFilter) ([]types.Book, error) {
	return s.repo.List(ctx, filter)
}

func (s *BookService) ListDisabled(ctx context.Context) ([]types.Book, error) {
	return s.repo.ListDisabled(ctx)
}

// Get returns the book regardless of its disabled flag.
func (s *BookService) Get(ctx context.Context, id string) (types.Book, error) {
	return s.repo.Get(ctx, id)
}

// Lookup returns the book only while it is active; disabled books are
// indistinguishable from absent ones.
func (s *BookService) Lookup(ctx context.Context, id string) (types.Book, error) {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Book{}, err
	}
	if book.Disabled {
		return types.Book{}, store.ErrNotFound
	}
	return book, nil
}

func (s *BookService) Create(ctx context.Context, book types.Book) (types.Book, error) {
	return s.repo.Create(ctx, book)
}

func (s *BookService) Update(ctx context.Context, book types.Book) (types.Book, error) {
	return s.repo.Update(ctx, book)
}

// Disable soft-deletes the book and returns the updated record.
func (s *BookService) Disable(ctx context.Context, id string) (types.Book, error) {
	if err := s.repo.Disable(ctx, id); err != nil {
		return types.Book{}, err
	}
	return s.repo.Get(ctx, id)
}
