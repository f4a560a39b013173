package todos

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const (
	msgTitleRequired    = "title is required"
	msgTitleNotString   = "title must be a string"
	msgInvalidJSON      = "invalid JSON"
	msgNotFound         = "not found"
	msgMethodNotAllowed = "method not allowed"
	msgInternal         = "internal server error"

	maxBodyBytes = 1 << 20
)

type errResponse struct {
	Error string `json:"error"`
}

type deleteResponse struct {
	Deleted bool  `json:"deleted"`
	ID      int64 `json:"id"`
}

// RegisterRoutes mounts the todo routes. Ids that are not decimal integers
// do not match and fall through to the router's NotFound handler.
func RegisterRoutes(r chi.Router, repo Repository, logger *slog.Logger) {
	r.Get("/todos", listTodos(repo, logger))
	r.Post("/todos", createTodo(repo, logger))
	r.Patch("/todos/{id:[0-9]+}", updateTodo(repo, logger))
	r.Delete("/todos/{id:[0-9]+}", deleteTodo(repo, logger))
}

// NotFound writes the JSON 404 used for unknown routes and ids.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errResponse{Error: msgNotFound})
}

func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errResponse{Error: msgMethodNotAllowed})
}

func listTodos(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		todos, err := repo.List(r.Context())
		if err != nil {
			internalError(w, r, logger, err)
			return
		}
		if todos == nil {
			todos = []Todo{}
		}
		writeJSON(w, http.StatusOK, todos)
	}
}

func createTodo(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, ok := decodeObject(w, r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: msgTitleRequired})
			return
		}

		var title string
		if err := json.Unmarshal(fields["title"], &title); err != nil || title == "" {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: msgTitleRequired})
			return
		}
		done := false
		if raw, ok := fields["done"]; ok {
			done = truthyJSON(raw)
		}

		t, err := repo.Create(r.Context(), title, done)
		if err != nil {
			internalError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func updateTodo(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := todoID(r)
		if !ok {
			NotFound(w, r)
			return
		}

		if _, found, err := repo.Find(r.Context(), id); err != nil {
			internalError(w, r, logger, err)
			return
		} else if !found {
			NotFound(w, r)
			return
		}

		fields, ok := decodeObject(w, r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: msgInvalidJSON})
			return
		}

		var p Patch
		if raw, ok := fields["title"]; ok {
			var title string
			if isNull(raw) || json.Unmarshal(raw, &title) != nil {
				writeJSON(w, http.StatusBadRequest, errResponse{Error: msgTitleNotString})
				return
			}
			p.Title = &title
		}
		if raw, ok := fields["done"]; ok {
			done := truthyJSON(raw)
			p.Done = &done
		}

		t, found, err := repo.Update(r.Context(), id, p)
		if err != nil {
			internalError(w, r, logger, err)
			return
		}
		if !found {
			NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func deleteTodo(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := todoID(r)
		if !ok {
			NotFound(w, r)
			return
		}

		deleted, err := repo.Delete(r.Context(), id)
		if err != nil {
			internalError(w, r, logger, err)
			return
		}
		if !deleted {
			NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, deleteResponse{Deleted: true, ID: id})
	}
}

// todoID parses the {id} segment; values that overflow int64 count as unknown.
func todoID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// decodeObject reads the body as a single JSON object. Absent bodies,
// malformed JSON, trailing data and non-object values all report false.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, false
	}
	if fields == nil {
		return nil, false
	}
	return fields, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func internalError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	logger.ErrorContext(r.Context(), "store_error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("req_id", chimw.GetReqID(r.Context())),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, errResponse{Error: msgInternal})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
