package types

import "time"

// Book represents a catalog record. Each book owns its list of embedded
// reservations; the list is stored as a JSON column alongside the record.
type Book struct {
	// ID is the unique identifier of the book.
	ID string `json:"id" db:"id"`

	// Title is the book's title.
	Title string `json:"titulo" db:"titulo"`

	// Author is the book's author.
	Author string `json:"autor" db:"autor"`

	// Genre is the book's genre.
	Genre string `json:"genero" db:"genero"`

	// PublicationDate is the date the book was published.
	PublicationDate time.Time `json:"fechaPublicacion" db:"fecha_publicacion"`

	// Publisher is the publishing house.
	Publisher string `json:"editorial" db:"editorial"`

	// Available reports whether the book can be reserved. It is kept in
	// lockstep with the reservation list on every mutation:
	// Available == (len(Reservations) == 0).
	Available bool `json:"disponible" db:"disponible"`

	// Disabled marks the book as soft-deleted. Disabled books only appear
	// in the disabled-books listing.
	Disabled bool `json:"inhabilitado" db:"inhabilitado"`

	// Reservations is the ordered list of reservations embedded in the
	// book. Under the availability invariant it holds at most one entry.
	Reservations []Reservation `json:"reservas" db:"reservas"`

	// CreatedAt is the timestamp at which the book was created.
	CreatedAt time.Time `json:"creado_en" db:"creado_en"`

	// UpdatedAt is the timestamp of the most recent update to the book.
	UpdatedAt time.Time `json:"actualizado_en" db:"actualizado_en"`
}

// Reservation is a booking embedded in a Book. It snapshots the reserving
// user's id and display name at booking time and is never mutated in place;
// a date change requires cancel-then-reserve.
type Reservation struct {
	// UserID references the user who made the reservation.
	UserID string `json:"usuarioId"`

	// UserName is the user's display name at the time of booking.
	UserName string `json:"nombreUsuario"`

	// StartDate is the first day of the reservation.
	StartDate time.Time `json:"fechaReserva"`

	// EndDate is the day the book is due back. Always strictly after
	// StartDate.
	EndDate time.Time `json:"fechaEntrega"`

	// CreatedAt is the timestamp at which the reservation was made.
	CreatedAt time.Time `json:"creado_en"`
}

// UserReservation is the projection returned when listing all reservations
// made by one user across the catalog.
type UserReservation struct {
	BookID      string           `json:"libroId"`
	Title       string           `json:"titulo"`
	Author      string           `json:"autor"`
	Reservation ReservationDates `json:"reserva"`
}

// ReservationDates carries just the date range of a reservation.
type ReservationDates struct {
	StartDate time.Time `json:"fechaReserva"`
	EndDate   time.Time `json:"fechaEntrega"`
}
