package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/akarpov/gametrade/internal/api"
	"github.com/akarpov/gametrade/internal/chat"
	"github.com/akarpov/gametrade/internal/config"
	"github.com/akarpov/gametrade/internal/database"
	"github.com/akarpov/gametrade/internal/lockout"
	"github.com/akarpov/gametrade/internal/media"
	"github.com/akarpov/gametrade/internal/presence"
	"github.com/akarpov/gametrade/internal/stats"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	addr           string
	dsn            string
	signingKey     string
	mediaDir       string
	allowedOrigins stringSliceFlag
)

func main() {
	// .env is optional; flags and real env vars win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Println("load .env:", err)
	}

	flag.StringVar(&addr, "addr", envOr("GAMETRADE_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("GAMETRADE_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", envOr("GAMETRADE_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.StringVar(&mediaDir, "media-dir", envOr("GAMETRADE_MEDIA_DIR", "media"), "directory for stored attachments")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[gametrade] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, mediaDir, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	mediaStore, err := media.NewStore(cfg.MediaDir)
	if err != nil {
		logger.Fatal("media store:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	tracker := presence.NewTracker(logger, dbConn, statsUpdater)
	guard := lockout.NewGuard(logger, dbConn, statsUpdater)
	chatService := chat.NewService(logger, dbConn, statsUpdater)
	sweeper := presence.NewSweeper(logger, dbConn, tracker)

	srv := api.NewApp(mux, logger, dbConn, tracker, guard, chatService, mediaStore, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	sweeper.Run()

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
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("stopping presence sweeper...")
	sweeper.Stop()

	logger.Println("shutdown complete")
}
