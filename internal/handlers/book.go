package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/libroteca/apiserver/internal/authz"
	"github.com/libroteca/apiserver/internal/services"
	"github.com/libroteca/apiserver/internal/store"
	"github.com/libroteca/apiserver/types"
)

// BookHandler provides the catalog endpoints.
type BookHandler struct {
	bookService *services.BookService
}

// NewBookHandler constructs a handler with the provided service.
func NewBookHandler(bookService *services.BookService) *BookHandler {
	return &BookHandler{bookService: bookService}
}

// BookRouter registers the catalog routes on the given router.
func BookRouter(r chi.Router, bookService *services.BookService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewBookHandler(bookService)

	r.With(authMiddleware, requirePermission(authz.PermCreateBooks)).Post("/libros/create", handler.CreateBook)
	r.Get("/libros", handler.ListBooks)
	r.Get("/libros-inhabilitados", handler.ListDisabledBooks)
	r.Get("/libros/{bookID}", handler.GetBook)
	r.With(authMiddleware, requirePermission(authz.PermModifyBooks)).Put("/libros/{bookID}", handler.UpdateBook)
	r.With(authMiddleware, requirePermission(authz.PermModifyBooks)).Delete("/libros/{bookID}", handler.DisableBook)
}

type BookUpsertRequest struct {
	Title           string `json:"titulo"`
	Author          string `json:"autor"`
	Genre           string `json:"genero"`
	PublicationDate string `json:"fechaPublicacion"`
	Publisher       string `json:"editorial"`
}

type BookResponse struct {
	Message string     `json:"mensaje"`
	Book    types.Book `json:"libro"`
}

// CreateBook adds a record to the catalog. All five descriptive fields are
// required.
func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req BookUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	req.Genre = strings.TrimSpace(req.Genre)
	req.Publisher = strings.TrimSpace(req.Publisher)
	if req.Title == "" || req.Author == "" || req.Genre == "" || req.PublicationDate == "" || req.Publisher == "" {
		writeError(w, http.StatusBadRequest, "Faltan campos obligatorios")
		return
	}

	publicationDate, err := parseDate(req.PublicationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Fecha de publicación inválida")
		return
	}

	book, err := h.bookService.Create(r.Context(), types.Book{
		ID:              uuid.NewString(),
		Title:           req.Title,
		Author:          req.Author,
		Genre:           req.Genre,
		PublicationDate: publicationDate,
		Publisher:       req.Publisher,
		Available:       true,
		Reservations:    []types.Reservation{},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	writeJSON(w, http.StatusCreated, BookResponse{Message: "Libro creado", Book: book})
}

// ListBooks returns active books matching the combinable query filters.
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseBookFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	books, err := h.bookService.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	writeJSON(w, http.StatusOK, books)
}

// ListDisabledBooks returns only soft-deleted books.
func (h *BookHandler) ListDisabledBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.bookService.ListDisabled(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	writeJSON(w, http.StatusOK, books)
}

// GetBook returns a book while it is active.
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bookID")

	book, err := h.bookService.Lookup(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Libro no encontrado o inhabilitado")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	writeJSON(w, http.StatusOK, book)
}

// UpdateBook applies a partial update; only the provided fields change.
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bookID")

	var req BookUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}

	book, err := h.bookService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Libro no encontrado")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	if title := strings.TrimSpace(req.Title); title != "" {
		book.Title = title
	}
	if author := strings.TrimSpace(req.Author); author != "" {
		book.Author = author
	}
	if genre := strings.TrimSpace(req.Genre); genre != "" {
		book.Genre = genre
	}
	if req.PublicationDate != "" {
		publicationDate, err := parseDate(req.PublicationDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Fecha de publicación inválida")
			return
		}
		book.PublicationDate = publicationDate
	}
	if publisher := strings.TrimSpace(req.Publisher); publisher != "" {
		book.Publisher = publisher
	}

	updated, err := h.bookService.Update(r.Context(), book)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Libro no encontrado")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	writeJSON(w, http.StatusOK, BookResponse{Message: "Libro modificado", Book: updated})
}

// DisableBook soft-deletes a book; it remains reachable only through the
// disabled listing.
func (h *BookHandler) DisableBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bookID")

	book, err := h.bookService.Disable(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Libro no encontrado")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	writeJSON(w, http.StatusOK, BookResponse{Message: "Libro inhabilitado", Book: book})
}

func parseBookFilter(r *http.Request) (store.BookFilter, error) {
	query := r.URL.Query()
	filter := store.BookFilter{
		Title:     strings.TrimSpace(query.Get("titulo")),
		Author:    strings.TrimSpace(query.Get("autor")),
		Genre:     strings.TrimSpace(query.Get("genero")),
		Publisher: strings.TrimSpace(query.Get("editorial")),
	}

	if raw := strings.TrimSpace(query.Get("fechaPublicacion")); raw != "" {
		date, err := parseDate(raw)
		if err != nil {
			return store.BookFilter{}, errors.New("Fecha de publicación inválida")
		}
		filter.PublicationDate = &date
	}

	if raw := strings.TrimSpace(query.Get("disponibilidad")); raw != "" {
		available := raw == "true"
		filter.Available = &available
	}

	return filter, nil
}
