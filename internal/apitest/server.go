// Package apitest runs an in-process fake of the Glowbook backend for
// tests: a chi router with a seeded catalog, stateful cart, favorites
// and bookings, a counting refresh endpoint, and failure injection.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Test account and seed data.
const (
	Email    = "mia@example.com"
	Password = "hunter2"
	UserID   = "usr-1"

	SalonID   = "sal-1"
	ServiceID = "svc-1"
	// ServicePrice is the authoritative price the cart reconciles to.
	ServicePrice = 500
)

type cartItem struct {
	ServiceID string `json:"service_id"`
	SalonID   string `json:"salon_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     int    `json:"price,omitempty"`
}

type booking struct {
	ID        string `json:"id"`
	SalonID   string `json:"salon_id"`
	ServiceID string `json:"service_id"`
	StartsAt  string `json:"starts_at,omitempty"`
	Status    string `json:"status"`
	Price     int    `json:"price"`
}

// Server is the fake backend. Create one with New and Close it when the
// test is done.
type Server struct {
	HTTP *httptest.Server

	mu            sync.Mutex
	access        string
	refresh       string
	tokenSeq      int
	refreshCalls  int
	rejectRefresh bool
	failOnce      map[string]int // "METHOD path" -> pending 500s
	hits          map[string]int

	cart      []cartItem
	favorites []string
	bookings  []booking
	draft     json.RawMessage
	nextID    int
}

// New starts the fake backend with one seeded account and salon.
func New() *Server {
	s := &Server{
		failOnce: make(map[string]int),
		hits:     make(map[string]int),
	}
	s.rotateTokens()

	r := chi.NewRouter()
	r.Use(s.counting)

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/signup", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		r.Get("/auth/me", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, userBody())
		})

		r.Get("/salons", s.handleSalons)
		r.Get("/salons/search", s.handleSalons)
		r.Get("/salons/{id}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, salonBody())
		})
		r.Get("/salons/{id}/reviews", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []map[string]any{{
				"id": "rev-1", "salon_id": chi.URLParam(r, "id"),
				"author": "Mia", "rating": 5, "comment": "lovely",
			}})
		})
		r.Post("/salons/{id}/reviews", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			body["id"] = s.newID("rev")
			body["salon_id"] = chi.URLParam(r, "id")
			writeJSON(w, http.StatusCreated, body)
		})

		r.Get("/cart", s.handleGetCart)
		r.Post("/cart/items", s.handleAddCartItem)
		r.Put("/cart/items/{serviceID}", s.handleUpdateCartItem)
		r.Delete("/cart/items/{serviceID}", s.handleRemoveCartItem)
		r.Post("/cart/checkout", s.handleCheckout)

		r.Get("/favorites", s.handleListFavorites)
		r.Post("/favorites", s.handleAddFavorite)
		r.Delete("/favorites/{salonID}", s.handleRemoveFavorite)

		r.Get("/bookings", s.handleListBookings)
		r.Post("/bookings", s.handleCreateBooking)
		r.Post("/bookings/{id}/cancel", s.handleCancelBooking)

		r.Get("/vendor/salon-draft", s.handleGetDraft)
		r.Put("/vendor/salon-draft", s.handlePutDraft)
		r.Post("/vendor/salons", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusCreated, salonBody())
		})
		r.Post("/vendor/salons/{id}/staff", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			body["id"] = s.newID("stf")
			writeJSON(w, http.StatusCreated, body)
		})
		r.Get("/vendor/salons", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, []map[string]any{salonBody()})
		})
		r.Get("/leaderboard", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []map[string]any{{
				"rank": 1, "user_id": UserID,
				"name": "Mia", "bookings": 7, "revenue": 3500,
				"role": r.URL.Query().Get("role"),
			}})
		})

		r.Post("/files", func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				writeJSON(w, http.StatusBadRequest, errBody("bad multipart"))
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"path": "uploads/cover.jpg"})
		})
		r.Get("/files/signed-url", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"url": "https://cdn.glowbook.test/" + r.URL.Query().Get("path") + "?sig=abc",
			})
		})
	})

	s.HTTP = httptest.NewServer(r)
	return s
}

// Close shuts the fake down.
func (s *Server) Close() { s.HTTP.Close() }

// URL returns the base URL tests hand to glowbook.New.
func (s *Server) URL() string { return s.HTTP.URL }

// ExpireAccess invalidates the current access token (but not the
// refresh token), so the next authorized request gets a 401.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = "expired-" + s.access
}

// RejectRefresh makes the refresh endpoint answer 401 from now on.
func (s *Server) RejectRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectRefresh = true
}

// FailNext makes the next n calls to METHOD path answer 500.
func (s *Server) FailNext(method, path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOnce[method+" "+path] = n
}

// RefreshCalls reports how many refresh calls reached the server.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// Hits reports how many calls reached METHOD path.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// SetCart replaces the server-side cart state.
func (s *Server) SetCart(items []map[string]any) {
	b, _ := json.Marshal(items)
	var cart []cartItem
	_ = json.Unmarshal(b, &cart)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = cart
}

func (s *Server) counting(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.hits[key]++
		if s.failOnce[key] > 0 {
			s.failOnce[key]--
			s.mu.Unlock()
			writeJSON(w, http.StatusInternalServerError, errBody("injected failure"))
			return
		}
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		ok := tok != "" && tok == s.access
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errBody("invalid or expired token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if r.URL.Path == "/auth/login" && (body.Email != Email || body.Password != Password) {
		writeJSON(w, http.StatusUnauthorized, errBody("bad credentials"))
		return
	}
	s.mu.Lock()
	s.rotateTokens()
	access, refresh := s.access, s.refresh
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"user":          userBody(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.refreshCalls++
	if s.rejectRefresh || body.RefreshToken != s.refresh {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, errBody("refresh token rejected"))
		return
	}
	s.rotateTokens()
	access, refresh := s.access, s.refresh
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

func (s *Server) handleSalons(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]any{salonBody()})
}

func (s *Server) handleGetCart(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.cartBody())
}

func (s *Server) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var item cartItem
	_ = json.NewDecoder(r.Body).Decode(&item)
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	// Pricing is server-authoritative.
	if item.ServiceID == ServiceID {
		item.Price = ServicePrice
		item.SalonID = SalonID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cart {
		if s.cart[i].ServiceID == item.ServiceID {
			s.cart[i].Quantity += item.Quantity
			writeJSON(w, http.StatusOK, s.cartBody())
			return
		}
	}
	s.cart = append(s.cart, item)
	writeJSON(w, http.StatusOK, s.cartBody())
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")
	var body struct {
		Quantity int `json:"quantity"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cart {
		if s.cart[i].ServiceID == serviceID {
			s.cart[i].Quantity = body.Quantity
		}
	}
	writeJSON(w, http.StatusOK, s.cartBody())
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.cart[:0]
	for _, it := range s.cart {
		if it.ServiceID != serviceID {
			kept = append(kept, it)
		}
	}
	s.cart = kept
	writeJSON(w, http.StatusOK, s.cartBody())
}

func (s *Server) handleCheckout(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking
	for _, it := range s.cart {
		out = append(out, booking{
			ID: s.newIDLocked("bkg"), SalonID: it.SalonID, ServiceID: it.ServiceID,
			Status: "confirmed", Price: it.Price * it.Quantity,
		})
	}
	s.bookings = append(s.bookings, out...)
	s.cart = nil
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListFavorites(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []map[string]any{}
	for _, id := range s.favorites {
		out = append(out, map[string]any{"salon_id": id})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SalonID string `json:"salon_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.favorites {
		if id == body.SalonID {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	s.favorites = append(s.favorites, body.SalonID)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	salonID := chi.URLParam(r, "salonID")
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.favorites[:0]
	for _, id := range s.favorites {
		if id != salonID {
			kept = append(kept, id)
		}
	}
	s.favorites = kept
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBookings(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.bookings
	if out == nil {
		out = []booking{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SalonID   string `json:"salon_id"`
		ServiceID string `json:"service_id"`
		StartsAt  string `json:"starts_at,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	b := booking{
		ID: s.newIDLocked("bkg"), SalonID: body.SalonID, ServiceID: body.ServiceID,
		StartsAt: body.StartsAt, Status: "confirmed", Price: ServicePrice,
	}
	s.bookings = append(s.bookings, b)
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bookings {
		if s.bookings[i].ID == id {
			s.bookings[i].Status = "cancelled"
			writeJSON(w, http.StatusOK, s.bookings[i])
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errBody("no such booking"))
}

func (s *Server) handleGetDraft(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		writeJSON(w, http.StatusNotFound, errBody("no draft"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.draft)
}

func (s *Server) handlePutDraft(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&raw)
	s.mu.Lock()
	s.draft = raw
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

// rotateTokens issues a fresh pair; callers hold s.mu (or own s).
func (s *Server) rotateTokens() {
	s.tokenSeq++
	s.access = fmt.Sprintf("access-%d", s.tokenSeq)
	s.refresh = fmt.Sprintf("refresh-%d", s.tokenSeq)
}

func (s *Server) newID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newIDLocked(prefix)
}

func (s *Server) newIDLocked(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *Server) cartBody() map[string]any {
	total := 0
	for _, it := range s.cart {
		total += it.Price * it.Quantity
	}
	items := s.cart
	if items == nil {
		items = []cartItem{}
	}
	return map[string]any{"items": items, "total": total}
}

func salonBody() map[string]any {
	return map[string]any{
		"id": SalonID, "name": "Shear Genius", "city": "Melbourne",
		"address": "12 Chapel St", "rating": 4.8, "review_count": 132,
		"services": []map[string]any{{
			"id": ServiceID, "salon_id": SalonID, "name": "Cut & Finish",
			"category": "hair", "duration_min": 45, "price": ServicePrice,
		}},
	}
}

func userBody() map[string]any {
	return map[string]any{"id": UserID, "name": "Mia", "email": Email, "role": "customer"}
}

func errBody(msg string) map[string]any {
	return map[string]any{"message": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
