package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/butterchat/butterchat/internal/backend/memstore"
	"github.com/butterchat/butterchat/internal/config"
	"github.com/butterchat/butterchat/internal/devserver"
	"github.com/butterchat/butterchat/internal/telemetry"
)

const defaultSigningKey = "c2VjcmV0LXNpZ25pbmcta2V5LWZvci1sb2NhbC1kZXY="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	signingKey     string
	allowedOrigins stringSliceFlag
	grantDelay     time.Duration
)

func main() {
	config.LoadEnv()

	flag.StringVar(&addr, "addr", config.Getenv("BUTTERCHATD_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&signingKey, "signing-key", config.Getenv("BUTTERCHATD_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.DurationVar(&grantDelay, "grant-delay", 2*time.Second, "delay before a sign-in grant resolves")
	flag.Parse()

	logger := log.New(os.Stderr, "[butterchatd] ", log.LstdFlags)

	cfg, err := config.NewServerConfig(addr, signingKey, allowedOrigins, grantDelay)
	if err != nil {
		logger.Fatal("config:", err)
	}

	recorder := telemetry.NewRecorder(logger)
	recorder.Run()
	defer recorder.Stop()

	store := memstore.NewStore(logger)

	srv, err := devserver.NewServer(logger, store, recorder, cfg)
	if err != nil {
		logger.Fatal("new server:", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
