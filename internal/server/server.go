package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/mkruglov/roomcast/internal/api"
)

type ctxKey int

const userKey ctxKey = 0

// Server is the signaling and room HTTP server.
type Server struct {
	addr  string
	rooms *RoomService
	auth  *Auth
	hub   *Hub
	log   *slog.Logger
}

// New assembles the server over the given room store.
func New(addr, secret string, store RoomStore) *Server {
	rooms := NewRoomService(store)
	auth := NewAuth(secret)
	return &Server{
		addr:  addr,
		rooms: rooms,
		auth:  auth,
		hub:   NewHub(rooms, auth),
		log:   slog.Default().With("component", "server"),
	}
}

// Run starts the hub and serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/auth/login", s.handleLogin)
	r.Get("/ws", s.hub.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/auth/user", s.handleGetUser)
		r.Route("/api/room", func(r chi.Router) {
			r.Get("/", s.handleListRooms)
			r.Post("/", s.handleCreateRoom)
			r.Post("/join/{id}", s.handleJoinRoom)
			r.Delete("/{id}", s.handleRemoveRoom)
		})
	})

	return r
}

// authenticate resolves the bearer token into a user for downstream handlers.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.userFromRequest(r)
		if err != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func requestUser(r *http.Request) api.UserInfo {
	user, _ := r.Context().Value(userKey).(api.UserInfo)
	return user
}

type loginRequest struct {
	Name       string `json:"name"`
	PictureURL string `json:"pictureUrl,omitempty"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// handleLogin issues a session token for a display name. There is no
// password: identity here is a conference nickname, not an account.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.Name == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "name is required"})
		return
	}
	token, err := s.auth.NewToken(req.Name, req.PictureURL)
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "token issuance failed"})
		return
	}
	render.JSON(w, r, loginResponse{Token: token})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, requestUser(r))
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.UserRooms(r.Context(), requestUser(r).ID)
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}
	render.JSON(w, r, rooms)
}

// handleCreateRoom creates an unclaimed room. The first websocket join
// claims ownership, which ties the broadcaster role to a live peer id.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.rooms.CreateEmptyRoom(r.Context())
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, room)
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.rooms.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrRoomNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "room does not exist"})
		return
	}
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}
	// Membership changes happen over the websocket; the REST join only
	// confirms the room exists and hands back its descriptor.
	render.JSON(w, r, room)
}

func (s *Server) handleRemoveRoom(w http.ResponseWriter, r *http.Request) {
	err := s.rooms.RemoveRoomByUser(r.Context(), chi.URLParam(r, "id"), requestUser(r).ID)
	if errors.Is(err, ErrRoomNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "room does not exist"})
		return
	}
	if err != nil {
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}
	render.NoContent(w, r)
}
