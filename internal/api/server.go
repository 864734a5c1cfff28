package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bryanchriswhite/WinWatch/internal/config"
	"github.com/bryanchriswhite/WinWatch/internal/logger"
	"github.com/bryanchriswhite/WinWatch/internal/match"
	"github.com/bryanchriswhite/WinWatch/internal/watchdog"
	"github.com/bryanchriswhite/WinWatch/internal/window"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	resolver  *window.Resolver
	registry  *watchdog.Registry
	configMgr *config.Manager
	upgrader  websocket.Upgrader
}

// NewServer creates a new API server
func NewServer(resolver *window.Resolver, registry *watchdog.Registry, configMgr *config.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		resolver:  resolver,
		registry:  registry,
		configMgr: configMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Window queries
	api.HandleFunc("/windows", s.handleFindWindows).Methods("GET")
	api.HandleFunc("/windows/active", s.handleActiveWindow).Methods("GET")
	api.HandleFunc("/windows/at", s.handleWindowsAt).Methods("GET")

	// Application queries
	api.HandleFunc("/apps", s.handleFindApps).Methods("GET")
	api.HandleFunc("/apps/titles", s.handleAppTitles).Methods("GET")

	// Watches
	api.HandleFunc("/watches", s.handleListWatches).Methods("GET")
	api.HandleFunc("/watches", s.handleAddWatch).Methods("POST")
	api.HandleFunc("/watches/{id}", s.handleRemoveWatch).Methods("DELETE")
	api.HandleFunc("/events", s.handleEvents)

	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS headers
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Run serves on port until ctx is cancelled
func (s *Server) Run(ctx context.Context, port int) error {
	log := logger.WithComponent("api")

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", "http://localhost"+srv.Addr).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WindowView is the JSON form of a window handle
type WindowView struct {
	ID       window.WindowID `json:"id"`
	App      window.App      `json:"app"`
	Snapshot window.Snapshot `json:"snapshot"`
	Frame    window.Rect     `json:"frame"`
	Center   window.Point    `json:"center"`
}

func viewsOf(handles []*window.Handle) []WindowView {
	views := make([]WindowView, 0, len(handles))
	for _, h := range handles {
		snap := h.Snapshot()
		views = append(views, WindowView{
			ID:       h.Identity(),
			App:      h.App(),
			Snapshot: snap,
			Frame:    snap.Rect(),
			Center:   snap.Center(),
		})
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps query errors to 400 and a missing backend to 503
func writeError(w http.ResponseWriter, err error) {
	var patternErr *match.InvalidPatternError
	var flagErr *match.InvalidFlagError
	switch {
	case errors.As(err, &patternErr), errors.As(err, &flagErr), errors.Is(err, errBadRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case window.IsBackendUnavailable(err):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// queryFromRequest builds a match query from pattern, condition, ignore_case
// and threshold parameters. The condition defaults to "is".
func queryFromRequest(r *http.Request, patternParam string) (match.Query, error) {
	params := r.URL.Query()

	condition := match.Is
	if name := params.Get("condition"); name != "" {
		c, err := match.ParseCondition(name)
		if err != nil {
			return match.Query{}, badRequest("%v", err)
		}
		condition = c
	}

	var opts []match.Option
	if v := params.Get("ignore_case"); v != "" {
		ignore, err := strconv.ParseBool(v)
		if err != nil {
			return match.Query{}, badRequest("invalid ignore_case %q", v)
		}
		if ignore {
			opts = append(opts, match.WithIgnoreCase())
		}
	}
	if v := params.Get("threshold"); v != "" {
		threshold, err := strconv.Atoi(v)
		if err != nil {
			return match.Query{}, badRequest("invalid threshold %q", v)
		}
		opts = append(opts, match.WithThreshold(threshold))
	}

	return match.NewQuery(params.Get(patternParam), condition, opts...)
}

// HTTP Handlers

func (s *Server) handleFindWindows(w http.ResponseWriter, r *http.Request) {
	var (
		handles []*window.Handle
		err     error
	)
	if !r.URL.Query().Has("title") {
		handles, err = s.resolver.AllWindows()
	} else {
		q, qerr := queryFromRequest(r, "title")
		if qerr != nil {
			writeError(w, qerr)
			return
		}
		handles, err = s.resolver.FindWindows(q, window.InApps(r.URL.Query()["app"]...))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(handles))
}

func (s *Server) handleActiveWindow(w http.ResponseWriter, r *http.Request) {
	h, err := s.resolver.ActiveWindow()
	if err != nil {
		writeError(w, err)
		return
	}
	if h == nil {
		http.Error(w, "No window active", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf([]*window.Handle{h})[0])
}

func (s *Server) handleWindowsAt(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.Atoi(r.URL.Query().Get("x"))
	y, errY := strconv.Atoi(r.URL.Query().Get("y"))
	if errX != nil || errY != nil {
		writeError(w, badRequest("x and y must be integers"))
		return
	}
	handles, err := s.resolver.WindowsAt(x, y)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(handles))
}

func (s *Server) handleFindApps(w http.ResponseWriter, r *http.Request) {
	var (
		names []string
		err   error
	)
	if !r.URL.Query().Has("name") {
		names, err = s.resolver.AllAppNames()
	} else {
		q, qerr := queryFromRequest(r, "name")
		if qerr != nil {
			writeError(w, qerr)
			return
		}
		names, err = s.resolver.FindApps(q)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleAppTitles(w http.ResponseWriter, r *http.Request) {
	titles, err := s.resolver.AppWindowTitles()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, titles)
}

func (s *Server) handleListWatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

// handleAddWatch starts watches for a rule in the request body. With
// ?persist=true the rule is also saved to the config file.
func (s *Server) handleAddWatch(w http.ResponseWriter, r *http.Request) {
	var rule config.WatchRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rule.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cfg := s.configMgr.Get()
	ids, err := s.registry.WatchRule(rule, cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	if persist, _ := strconv.ParseBool(r.URL.Query().Get("persist")); persist {
		if err := s.configMgr.AddWatch(rule); err != nil {
			for _, id := range ids {
				if err := s.registry.Unwatch(id); err != nil {
					logger.WithComponent("api").Debug().Err(err).Str("watch", id).Msg("Failed to roll back watch")
				}
			}
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}

	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusCreated, map[string][]string{"ids": ids})
}

func (s *Server) handleRemoveWatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.registry.Unwatch(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleEvents streams watch events over a WebSocket
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	// Subscribe before the handshake so no event after it is missed
	updates := s.registry.Subscribe()
	defer s.registry.Unsubscribe(updates)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// Reads only detect the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
		"backend": s.resolver.Backend().Name(),
	})
}
