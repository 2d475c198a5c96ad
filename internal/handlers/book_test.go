package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/libroteca/apiserver/internal/authz"
	"github.com/libroteca/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func editorUser(id, name, email string, t *testing.T) types.User {
	perms, _ := authz.RolePermissions("editor")
	user := standardUser(id, name, email, "secreta", t)
	user.Permissions = perms
	return user
}

func TestCreateBookRequiresPermission(t *testing.T) {
	standard := standardUser("u1", "Ana", "ana@example.com", "secreta", t)
	editor := editorUser("u2", "Berta", "berta@example.com", t)
	router := newTestRouter(newFakeUserRepo(standard, editor), newFakeBookRepo())

	payload := map[string]string{
		"titulo":           "Rayuela",
		"autor":            "Julio Cortázar",
		"genero":           "Novela",
		"fechaPublicacion": "1963-06-28",
		"editorial":        "Sudamericana",
	}

	resp := doRequest(router, http.MethodPost, "/libros/create", tokenFor(t, standard), jsonBody(t, payload))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = doRequest(router, http.MethodPost, "/libros/create", tokenFor(t, editor), jsonBody(t, payload))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var created BookResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Book.ID)
	assert.True(t, created.Book.Available)
	assert.Empty(t, created.Book.Reservations)
}

func TestCreateBookMissingFields(t *testing.T) {
	editor := editorUser("u1", "Ana", "ana@example.com", t)
	router := newTestRouter(newFakeUserRepo(editor), newFakeBookRepo())

	resp := doRequest(router, http.MethodPost, "/libros/create", tokenFor(t, editor), jsonBody(t, map[string]string{
		"titulo": "Rayuela",
		"autor":  "Julio Cortázar",
	}))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestListBooksFilters(t *testing.T) {
	rayuela := types.Book{
		ID: "b1", Title: "Rayuela", Author: "Julio Cortázar", Genre: "Novela",
		PublicationDate: time.Date(1963, 6, 28, 0, 0, 0, 0, time.UTC),
		Publisher:       "Sudamericana", Available: true,
	}
	ficciones := types.Book{
		ID: "b2", Title: "Ficciones", Author: "Jorge Luis Borges", Genre: "Cuento",
		PublicationDate: time.Date(1944, 1, 1, 0, 0, 0, 0, time.UTC),
		Publisher:       "Sur", Available: false,
	}
	hidden := types.Book{ID: "b3", Title: "Oculto", Disabled: true}
	router := newTestRouter(newFakeUserRepo(), newFakeBookRepo(rayuela, ficciones, hidden))

	listBooks := func(query url.Values) []types.Book {
		t.Helper()
		resp := doRequest(router, http.MethodGet, "/libros?"+query.Encode(), "", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		var books []types.Book
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &books))
		return books
	}

	// No filters: every active book, never the disabled one.
	books := listBooks(url.Values{})
	assert.Len(t, books, 2)

	// Substring match is case-insensitive.
	books = listBooks(url.Values{"autor": {"borges"}})
	require.Len(t, books, 1)
	assert.Equal(t, "b2", books[0].ID)

	// Filters combine with AND.
	books = listBooks(url.Values{"genero": {"Novela"}, "disponibilidad": {"true"}})
	require.Len(t, books, 1)
	assert.Equal(t, "b1", books[0].ID)

	books = listBooks(url.Values{"genero": {"Cuento"}, "disponibilidad": {"true"}})
	assert.Empty(t, books)
}

func TestGetBookExcludesDisabled(t *testing.T) {
	book := types.Book{ID: "b1", Title: "Oculto", Disabled: true}
	router := newTestRouter(newFakeUserRepo(), newFakeBookRepo(book))

	resp := doRequest(router, http.MethodGet, "/libros/b1", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	// The disabled listing still returns it.
	resp = doRequest(router, http.MethodGet, "/libros-inhabilitados", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var books []types.Book
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &books))
	require.Len(t, books, 1)
	assert.Equal(t, "b1", books[0].ID)
}

func TestUpdateBookPartial(t *testing.T) {
	editor := editorUser("u1", "Ana", "ana@example.com", t)
	book := types.Book{
		ID: "b1", Title: "Rayuela", Author: "Julio Cortázar", Genre: "Novela",
		PublicationDate: time.Date(1963, 6, 28, 0, 0, 0, 0, time.UTC),
		Publisher:       "Sudamericana", Available: true,
	}
	bookRepo := newFakeBookRepo(book)
	router := newTestRouter(newFakeUserRepo(editor), bookRepo)

	resp := doRequest(router, http.MethodPut, "/libros/b1", tokenFor(t, editor), jsonBody(t, map[string]string{
		"editorial": "Alfaguara",
	}))
	require.Equal(t, http.StatusOK, resp.Code)

	var updated BookResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &updated))
	assert.Equal(t, "Alfaguara", updated.Book.Publisher)
	assert.Equal(t, "Rayuela", updated.Book.Title)
	assert.Equal(t, "Julio Cortázar", updated.Book.Author)
}

func TestDisableBook(t *testing.T) {
	standard := standardUser("u1", "Ana", "ana@example.com", "secreta", t)
	editor := editorUser("u2", "Berta", "berta@example.com", t)
	book := types.Book{ID: "b1", Title: "Rayuela", Available: true}
	bookRepo := newFakeBookRepo(book)
	router := newTestRouter(newFakeUserRepo(standard, editor), bookRepo)

	resp := doRequest(router, http.MethodDelete, "/libros/b1", tokenFor(t, standard), nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.False(t, bookRepo.books["b1"].Disabled)

	resp = doRequest(router, http.MethodDelete, "/libros/b1", tokenFor(t, editor), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, bookRepo.books["b1"].Disabled)

	resp = doRequest(router, http.MethodDelete, "/libros/missing", tokenFor(t, editor), nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
