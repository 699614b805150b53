package main

import (
	"flag"
	"io"
	"log"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/butterchat/butterchat/internal/backend"
	"github.com/butterchat/butterchat/internal/backend/memstore"
	"github.com/butterchat/butterchat/internal/backend/remote"
	"github.com/butterchat/butterchat/internal/config"
	"github.com/butterchat/butterchat/internal/directory"
	"github.com/butterchat/butterchat/internal/feed"
	"github.com/butterchat/butterchat/internal/session"
	"github.com/butterchat/butterchat/internal/shell"
	"github.com/butterchat/butterchat/internal/telemetry"
	"github.com/butterchat/butterchat/internal/types"
)

var (
	backendURL string
	provider   string
	local      bool
	logPath    string
)

// wsURL derives the websocket endpoint from the backend's HTTP base
// URL.
func wsURL(baseURL string) string {
	url := strings.Replace(baseURL, "http://", "ws://", 1)
	url = strings.Replace(url, "https://", "wss://", 1)
	return strings.TrimSuffix(url, "/") + "/ws"
}

func main() {
	config.LoadEnv()

	flag.StringVar(&backendURL, "backend-url", config.Getenv("BUTTERCHAT_BACKEND_URL", "http://localhost:8000"), "backend base URL")
	flag.StringVar(&provider, "provider", config.Getenv("BUTTERCHAT_PROVIDER", "google.com"), "identity provider")
	flag.BoolVar(&local, "local", false, "run against an embedded in-memory backend")
	flag.StringVar(&logPath, "log", config.Getenv("BUTTERCHAT_LOG", ""), "debug log file, discarded if empty")
	flag.Parse()

	// The terminal belongs to the UI, so logs go to a file or nowhere.
	var logDst io.Writer = io.Discard
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatal("open log file:", err)
		}
		defer f.Close()
		logDst = f
	}
	logger := log.New(logDst, "[butterchat] ", log.LstdFlags)

	cfg, err := config.NewClientConfig(backendURL, provider, local)
	if err != nil {
		log.Fatal("config:", err)
	}

	recorder := telemetry.NewRecorder(logger)
	recorder.Run()
	defer recorder.Stop()

	var (
		store backend.Store
		auth  backend.Authenticator
	)
	if cfg.Local {
		store = memstore.NewStore(logger)
		auth = memstore.NewStaticAuthenticator(types.User{
			Id:          "local",
			DisplayName: "You",
		})
	} else {
		remoteAuth := remote.NewAuthenticator(cfg.BackendURL, logger)
		connector := remote.NewConnector(wsURL(cfg.BackendURL), remoteAuth, logger)
		defer connector.Close()
		store = connector
		auth = remoteAuth
	}

	sess := session.NewSession(auth, recorder, logger)
	defer sess.Close()

	model := shell.NewModel(shell.Services{
		Session:   sess,
		Directory: directory.NewDirectory(store, recorder, logger),
		Feed:      feed.NewFeed(store, recorder, logger),
		Provider:  cfg.Provider,
		Log:       logger,
	})

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal("ui:", err)
	}
}
