package devserver

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"

	"github.com/butterchat/butterchat/internal/backend/memstore"
	"github.com/butterchat/butterchat/internal/config"
	"github.com/butterchat/butterchat/internal/telemetry"
)

// Server is the development backend: the document-store wire contract
// over a websocket, an interactive sign-in grant flow, and a password
// login, all against an in-memory store.
type Server struct {
	log        *log.Logger
	store      *memstore.Store
	telemetry  telemetry.Provider
	signingKey []byte
	grantDelay time.Duration
	accounts   []Account
	grants     *grantRegistry
	httpSrv    *http.Server
	upgrader   websocket.Upgrader

	clientsLock sync.Mutex
	clients     map[*client]struct{}
}

func NewServer(logger *log.Logger, store *memstore.Store, tel telemetry.Provider, cfg *config.ServerConfig) (*Server, error) {
	accounts, err := DefaultAccounts()
	if err != nil {
		return nil, fmt.Errorf("seed accounts: %w", err)
	}

	s := &Server{
		log:        logger,
		store:      store,
		telemetry:  tel,
		signingKey: cfg.SigningKey,
		grantDelay: cfg.GrantDelay,
		accounts:   accounts,
		grants:     newGrantRegistry(),
		clients:    make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/signin", s.signIn)
	mux.HandleFunc("GET /api/auth/signin/poll", s.pollSignIn)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))
	mux.HandleFunc("GET /debug/vars", s.expvarHandler)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
	)(mux)
	h = handlers.LoggingHandler(logWriter{logger}, h)

	s.httpSrv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s, nil
}

type logWriter struct {
	log *log.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.log.Print(string(p))
	return len(p), nil
}

func (s *Server) Start() error {
	s.log.Println("listening on", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Handler exposes the HTTP surface for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.clientsLock.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clientsLock.Unlock()

	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("upgrade:", err)
		return
	}

	c := newClient(user, conn, s, s.log)
	s.addClient(c)
	s.log.Printf("adding connection from %q", user.Id)

	go c.write()
	go c.read()
}

func (s *Server) addClient(c *client) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) removeClient(c *client) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	delete(s.clients, c)
	s.log.Printf("removing connection from %q", c.user.Id)
}

func (s *Server) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *Server) expvarHandler(w http.ResponseWriter, _ *http.Request) {
	rec, ok := s.telemetry.(*telemetry.Recorder)
	if !ok {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	data := make(map[string]any)
	rec.Vars().Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		data[kv.Key] = value
	})

	json.NewEncoder(w).Encode(data)
}
