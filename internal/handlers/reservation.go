package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/libroteca/apiserver/internal/authz"
	"github.com/libroteca/apiserver/internal/services"
	"github.com/libroteca/apiserver/internal/store"
	"github.com/libroteca/apiserver/types"
)

// ReservationHandler provides the reservation endpoints.
type ReservationHandler struct {
	reservationService *services.ReservationService
}

// NewReservationHandler constructs a handler with the provided service.
func NewReservationHandler(reservationService *services.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservationService: reservationService}
}

// ReservationRouter registers the reservation routes on the given router.
func ReservationRouter(r chi.Router, reservationService *services.ReservationService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewReservationHandler(reservationService)

	r.With(authMiddleware).Post("/libros/{bookID}/reservar", handler.Reserve)
	r.With(authMiddleware, requirePermission(authz.PermViewHistory)).Get("/libros/{bookID}/reservas", handler.ListForBook)
	r.With(authMiddleware).Delete("/libros/{bookID}/cancelar", handler.Cancel)
	r.With(authMiddleware).Get("/usuarios/{userID}/reservas", handler.ListForUser)
}

type ReserveRequest struct {
	StartDate string `json:"fechaReserva"`
	EndDate   string `json:"fechaEntrega"`
}

type ReserveResponse struct {
	Message     string            `json:"mensaje"`
	Reservation types.Reservation `json:"reserva"`
}

// Reserve books the date range for the authenticated caller.
func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	caller, err := authUserFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Token no proporcionado")
		return
	}

	bookID := chi.URLParam(r, "bookID")

	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Fecha de reserva inválida")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Fecha de entrega inválida")
		return
	}

	reservation, err := h.reservationService.Reserve(r.Context(), bookID, caller.ID, caller.Name, start, end)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "Libro no encontrado")
		case errors.Is(err, store.ErrNotAvailable):
			writeError(w, http.StatusConflict, "El libro no está disponible para reserva")
		case errors.Is(err, services.ErrStartInPast):
			writeError(w, http.StatusBadRequest, "La fecha de reserva no puede ser en el pasado")
		case errors.Is(err, services.ErrEndNotAfterStart):
			writeError(w, http.StatusBadRequest, "La fecha de entrega debe ser posterior a la fecha de reserva")
		default:
			writeError(w, http.StatusInternalServerError, "Error al realizar la reserva")
		}
		return
	}

	writeJSON(w, http.StatusCreated, ReserveResponse{Message: "Reserva realizada correctamente", Reservation: reservation})
}

// ListForBook returns the reservations embedded in a book.
func (h *ReservationHandler) ListForBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")

	reservations, err := h.reservationService.ListForBook(r.Context(), bookID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Libro no encontrado")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error al obtener las reservas")
		return
	}

	writeJSON(w, http.StatusOK, reservations)
}

// Cancel removes the caller's reservation on the book.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, err := authUserFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Token no proporcionado")
		return
	}

	bookID := chi.URLParam(r, "bookID")

	book, err := h.reservationService.Cancel(r.Context(), bookID, caller.ID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "Reserva no encontrada para este usuario")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "El libro fue modificado, intenta de nuevo")
		default:
			writeError(w, http.StatusInternalServerError, "Error al cancelar la reserva")
		}
		return
	}

	writeJSON(w, http.StatusOK, BookResponse{Message: "Reserva cancelada correctamente", Book: book})
}

// ListForUser returns every reservation the target user holds. Only the
// user themselves or a caller holding modify-users may read them.
func (h *ReservationHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	caller, err := authUserFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Token no proporcionado")
		return
	}

	userID := chi.URLParam(r, "userID")
	if caller.ID != userID && !authz.Authorize(caller.Permissions, authz.PermModifyUsers).Allowed {
		writeError(w, http.StatusForbidden, "No tienes permiso para ver estas reservas")
		return
	}

	reservations, err := h.reservationService.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error al obtener las reservas del usuario")
		return
	}

	writeJSON(w, http.StatusOK, reservations)
}
