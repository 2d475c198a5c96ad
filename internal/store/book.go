package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/libroteca/apiserver/types"
)

const bookColumns = `id, titulo, autor, genero, fecha_publicacion, editorial, disponible, inhabilitado, reservas, creado_en, actualizado_en`

const dialectPostgres = "postgres"

// BookFilter holds the combinable catalog filters. String fields match as
// case-insensitive substrings; nil pointer fields are not applied.
type BookFilter struct {
	Title           string
	Author          string
	Genre           string
	Publisher       string
	PublicationDate *time.Time
	Available       *bool
}

// BookRepository handles persistence for books and their embedded
// reservation lists.
type BookRepository struct {
	db *sql.DB
}

func NewBookRepository(db *sql.DB) *BookRepository {
	return &BookRepository{db: db}
}

// List returns non-disabled books matching the filter.
func (r *BookRepository) List(ctx context.Context, filter BookFilter) ([]types.Book, error) {
	ds := goqu.Dialect(dialectPostgres).
		From("libros").
		Select(
			"id", "titulo", "autor", "genero", "fecha_publicacion", "editorial",
			"disponible", "inhabilitado", "reservas", "creado_en", "actualizado_en",
		).
		Where(goqu.Ex{"inhabilitado": false}).
		Order(goqu.I("creado_en").Asc())

	if filter.Title != "" {
		ds = ds.Where(goqu.C("titulo").ILike("%" + filter.Title + "%"))
	}
	if filter.Author != "" {
		ds = ds.Where(goqu.C("autor").ILike("%" + filter.Author + "%"))
	}
	if filter.Genre != "" {
		ds = ds.Where(goqu.C("genero").ILike("%" + filter.Genre + "%"))
	}
	if filter.Publisher != "" {
		ds = ds.Where(goqu.C("editorial").ILike("%" + filter.Publisher + "%"))
	}
	if filter.PublicationDate != nil {
		ds = ds.Where(goqu.Ex{"fecha_publicacion": *filter.PublicationDate})
	}
	if filter.Available != nil {
		ds = ds.Where(goqu.Ex{"disponible": *filter.Available})
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}

	return r.queryBooks(ctx, query, args...)
}

// ListDisabled returns only soft-deleted books, unfiltered by any other
// criteria.
func (r *BookRepository) ListDisabled(ctx context.Context) ([]types.Book, error) {
	const query = `
		SELECT ` + bookColumns + `
		FROM libros
		WHERE inhabilitado
		ORDER BY creado_en`
	return r.queryBooks(ctx, query)
}

// ListByReservationUser returns every book whose reservation list contains
// an entry for the given user.
func (r *BookRepository) ListByReservationUser(ctx context.Context, userID string) ([]types.Book, error) {
	match, err := json.Marshal([]map[string]string{{"usuarioId": userID}})
	if err != nil {
		return nil, err
	}

	const query = `
		SELECT ` + bookColumns + `
		FROM libros
		WHERE reservas @> $1
		ORDER BY creado_en`
	return r.queryBooks(ctx, query, match)
}

func (r *BookRepository) Get(ctx context.Context, id string) (types.Book, error) {
	const query = `
		SELECT ` + bookColumns + `
		FROM libros
		WHERE id = $1`
	rows, err := r.queryBooks(ctx, query, id)
	if err != nil {
		return types.Book{}, err
	}
	if len(rows) == 0 {
		return types.Book{}, ErrNotFound
	}
	return rows[0], nil
}

func (r *BookRepository) Create(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now

	reservasJSON, err := json.Marshal(reservationsOrEmpty(book.Reservations))
	if err != nil {
		return types.Book{}, err
	}

	const query = `
		INSERT INTO libros (id, titulo, autor, genero, fecha_publicacion, editorial, disponible, inhabilitado, reservas, creado_en, actualizado_en)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		book.ID,
		book.Title,
		book.Author,
		book.Genre,
		book.PublicationDate,
		book.Publisher,
		book.Available,
		book.Disabled,
		reservasJSON,
		book.CreatedAt,
		book.UpdatedAt,
	); err != nil {
		return types.Book{}, err
	}
	return book, nil
}

// Update rewrites the book's descriptive fields. The reservation list is
// untouched; it only changes through AppendReservation and
// ReplaceReservations.
func (r *BookRepository) Update(ctx context.Context, book types.Book) (types.Book, error) {
	book.UpdatedAt = time.Now()

	const query = `
		UPDATE libros
		SET titulo = $1,
			autor = $2,
			genero = $3,
			fecha_publicacion = $4,
			editorial = $5,
			actualizado_en = $6
		WHERE id = $7`
	result, err := r.db.ExecContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.Genre,
		book.PublicationDate,
		book.Publisher,
		book.UpdatedAt,
		book.ID,
	)
	if err != nil {
		return types.Book{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Book{}, err
	}
	if affected == 0 {
		return types.Book{}, ErrNotFound
	}
	return book, nil
}

// Disable soft-deletes the book.
func (r *BookRepository) Disable(ctx context.Context, id string) error {
	const query = `
		UPDATE libros
		SET inhabilitado = TRUE, actualizado_en = $1
		WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendReservation performs the Available -> Reserved transition as a
// single conditional write: the reservation is appended and the book marked
// unavailable only if the list is still empty at write time. A concurrent
// reservation therefore surfaces as ErrNotAvailable instead of a lost
// update.
func (r *BookRepository) AppendReservation(ctx context.Context, bookID string, res types.Reservation) error {
	resJSON, err := json.Marshal(res)
	if err != nil {
		return err
	}

	const query = `
		UPDATE libros
		SET reservas = reservas || jsonb_build_array($1::jsonb),
			disponible = FALSE,
			actualizado_en = $2
		WHERE id = $3
			AND NOT inhabilitado
			AND disponible
			AND jsonb_array_length(reservas) = 0`
	result, err := r.db.ExecContext(ctx, query, resJSON, time.Now(), bookID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotAvailable
	}
	return nil
}

// ReplaceReservations writes the new reservation list, guarded by equality
// with the list previously read. The availability flag is recomputed from
// the new list so the two stay in lockstep. Zero rows affected means the
// book changed underneath the caller (or vanished) and surfaces as
// ErrConflict.
func (r *BookRepository) ReplaceReservations(ctx context.Context, bookID string, prev, next []types.Reservation) error {
	prevJSON, err := json.Marshal(reservationsOrEmpty(prev))
	if err != nil {
		return err
	}
	nextJSON, err := json.Marshal(reservationsOrEmpty(next))
	if err != nil {
		return err
	}

	const query = `
		UPDATE libros
		SET reservas = $1::jsonb,
			disponible = (jsonb_array_length($1::jsonb) = 0),
			actualizado_en = $2
		WHERE id = $3 AND reservas = $4::jsonb`
	result, err := r.db.ExecContext(ctx, query, nextJSON, time.Now(), bookID, prevJSON)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *BookRepository) queryBooks(ctx context.Context, query string, args ...any) ([]types.Book, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]types.Book, 0)
	for rows.Next() {
		var book types.Book
		var reservasJSON []byte
		if err := rows.Scan(
			&book.ID,
			&book.Title,
			&book.Author,
			&book.Genre,
			&book.PublicationDate,
			&book.Publisher,
			&book.Available,
			&book.Disabled,
			&reservasJSON,
			&book.CreatedAt,
			&book.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(reservasJSON, &book.Reservations); err != nil {
			return nil, err
		}
		books = append(books, book)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return books, nil
}

// reservationsOrEmpty keeps nil slices marshaling as [] rather than null,
// which the JSON column comparisons rely on.
func reservationsOrEmpty(reservations []types.Reservation) []types.Reservation {
	if reservations == nil {
		return []types.Reservation{}
	}
	return reservations
}
