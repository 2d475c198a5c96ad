package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/libroteca/apiserver/internal/authz"
	"github.com/libroteca/apiserver/internal/services"
	"github.com/libroteca/apiserver/internal/storage"
	"github.com/libroteca/apiserver/internal/store"
)

const (
	maxCoverMemory = 8 << 20
	maxCoverBytes  = 16 << 20
	formFieldCover = "portada"
)

// CoverHandler serves book cover images backed by object storage.
type CoverHandler struct {
	bookService *services.BookService
	storage     *storage.Storage
}

// NewCoverHandler constructs a handler with the provided dependencies.
// storage may be nil when no backend is configured.
func NewCoverHandler(bookService *services.BookService, st *storage.Storage) *CoverHandler {
	return &CoverHandler{bookService: bookService, storage: st}
}

// CoverRouter registers the cover routes on the given router.
func CoverRouter(r chi.Router, bookService *services.BookService, st *storage.Storage, authMiddleware func(http.Handler) http.Handler) {
	handler := NewCoverHandler(bookService, st)

	r.With(authMiddleware, requirePermission(authz.PermModifyBooks)).Put("/libros/{bookID}/portada", handler.UploadCover)
	r.Get("/libros/{bookID}/portada", handler.GetCover)
}

// UploadCover stores the book's cover image.
func (h *CoverHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, http.StatusServiceUnavailable, "Almacenamiento no configurado")
		return
	}

	bookID := chi.URLParam(r, "bookID")
	if _, err := h.bookService.Lookup(r.Context(), bookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Libro no encontrado o inhabilitado")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	if err := r.ParseMultipartForm(maxCoverMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Formulario multipart inválido")
		return
	}

	files := r.MultipartForm.File[formFieldCover]
	if len(files) != 1 {
		writeError(w, http.StatusBadRequest, "Se requiere exactamente un archivo de portada")
		return
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		writeError(w, http.StatusBadRequest, "No se pudo leer el archivo de portada")
		return
	}

	data, err := readFileLimited(file, maxCoverBytes)
	_ = file.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	key := storage.CoverKey(bookID)
	if err := h.storage.Put(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		writeError(w, http.StatusInternalServerError, "Error al guardar la portada")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Portada actualizada"})
}

// GetCover streams the book's cover image.
func (h *CoverHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, http.StatusServiceUnavailable, "Almacenamiento no configurado")
		return
	}

	bookID := chi.URLParam(r, "bookID")
	if _, err := h.bookService.Lookup(r.Context(), bookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Libro no encontrado o inhabilitado")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	object, err := h.storage.Get(r.Context(), storage.CoverKey(bookID))
	if err != nil {
		writeError(w, http.StatusNotFound, "Portada no encontrada")
		return
	}
	defer object.Close()

	buf := make([]byte, 512)
	n, _ := io.ReadFull(object, buf)
	if n == 0 {
		writeError(w, http.StatusNotFound, "Portada no encontrada")
		return
	}
	buf = buf[:n]

	w.Header().Set("Content-Type", http.DetectContentType(buf))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf)
	_, _ = io.Copy(w, object)
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("No se pudo leer el archivo")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("El archivo es demasiado grande")
	}
	return data, nil
}
