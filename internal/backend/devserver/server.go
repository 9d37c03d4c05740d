// Package devserver is an in-memory stand-in for the herd registry service.
// It speaks the same REST surface the backend client consumes and exists
// for local trials (herdsync devserver) and tests. Nothing is persisted.
package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/herdsync/internal/backend"
	"github.com/roach88/herdsync/internal/record"
)

// Options configures a Server.
type Options struct {
	// Token, when set, must be presented as a bearer token on every request.
	Token string

	Logger *slog.Logger
	Now    func() time.Time
}

// Server keeps one tenant's records in memory.
type Server struct {
	mu     sync.Mutex
	rows   []record.Cached
	nextID int64
	faults map[string][]int
	calls  map[string]int

	opts Options
}

// New creates an empty server. Ids start at 1.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		nextID: 1,
		faults: make(map[string][]int),
		calls:  make(map[string]int),
		opts:   opts,
	}
}

// Handler returns the chi router serving the REST surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Head("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.countAndFault)
		r.Use(s.requireToken)

		r.Post(backend.PathRegister, s.create)
		r.Put(backend.PathRegisterUpdate, s.update)
		r.Delete(backend.PathRegister, s.remove)
		r.Get(backend.PathSnapshot, s.snapshot)
	})
	return r
}

// Seed replaces the stored rows. Ids of seeded rows are kept; new ids
// continue after the highest one.
func (s *Server) Seed(rows ...record.Cached) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append([]record.Cached(nil), rows...)
	s.nextID = 1
	for _, r := range rows {
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
	}
}

// Rows returns a copy of the stored rows in insertion order.
func (s *Server) Rows() []record.Cached {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]record.Cached(nil), s.rows...)
}

// Calls returns how many requests reached "METHOD /path", faults included.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// FailNext makes the next len(statuses) requests to "METHOD /path" answer
// with the given statuses, in order, without touching any row.
func (s *Server) FailNext(method, path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.faults[key] = append(s.faults[key], statuses...)
}

func (s *Server) countAndFault(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.calls[key]++
		var status int
		if q := s.faults[key]; len(q) > 0 {
			status, s.faults[key] = q[0], q[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if bearerToken(r.Header.Get("Authorization")) != s.opts.Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var body backend.RecordBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.AnimalNumber) == "" {
		http.Error(w, "animalNumber required", http.StatusBadRequest)
		return
	}
	if body.CreatedAt == "" {
		body.CreatedAt = record.FormatTimestamp(s.opts.Now())
	}

	s.mu.Lock()
	row := record.Cached{ID: s.nextID, CreatedAt: body.CreatedAt, Fields: body.Fields}
	s.nextID++
	s.rows = append(s.rows, row)
	s.mu.Unlock()

	s.opts.Logger.Info("record registered", "id", row.ID, "animal_number", row.AnimalNumber)
	writeJSON(w, http.StatusCreated, backend.RowFromCached(row))
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var body backend.RecordBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	key := record.DedupKey{AnimalNumber: body.AnimalNumber, CreatedAt: body.CreatedAt}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.Key() == key {
			s.rows[i].Fields = body.Fields
			writeJSON(w, http.StatusOK, backend.RowFromCached(s.rows[i]))
			return
		}
	}
	http.Error(w, "record not found", http.StatusNotFound)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	var body backend.KeyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	key := record.DedupKey{AnimalNumber: body.AnimalNumber, CreatedAt: body.CreatedAt}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.Key() == key {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
			return
		}
	}
	http.Error(w, "record not found", http.StatusNotFound)
}

func (s *Server) snapshot(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	items := make([]backend.Row, 0, len(s.rows))
	for _, row := range s.rows {
		items = append(items, backend.RowFromCached(row))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, backend.Snapshot{Count: len(items), Items: items})
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
