package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	"github.com/mind-engage/mindengage-quiz/internal/auth"
	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

func main() {
	cfg := config.Load()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	if err := auth.EnsureAdmin(ctx, dbh, cfg.AdminEmail, cfg.AdminName, cfg.AdminPassHash); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}
	cancel()
	if cfg.AdminPassHash == "" {
		log.Printf("ADMIN_PASS_HASH not set; no bootstrap admin")
	}

	// --- Auth ---
	var revoked authmw.Revocations = authmw.NewMemoryRevocations()
	if cfg.RedisAddr != "" {
		pool := authmw.NewRedisPool(cfg.RedisAddr)
		defer pool.Close()
		rr := authmw.NewRedisRevocations(pool)
		if err := rr.Ping(); err != nil {
			log.Fatalf("redis %s: %v", cfg.RedisAddr, err)
		}
		revoked = rr
		log.Printf("token revocation: redis at %s", cfg.RedisAddr)
	}
	tokens := authmw.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL, revoked)
	accounts := auth.NewAccounts(dbh, tokens, auth.NewHub(), cfg.EnableSignup)

	// --- Domain ---
	events := syncx.NewEventRepo(dbh)
	svc := quiz.NewService(quiz.NewSQLStore(dbh, cfg.DBDriver), events, quiz.WithSubmitGrace(cfg.SubmitGrace))

	handler := api.NewRouter(api.Deps{
		DB:          dbh,
		Quizzes:     svc,
		Accounts:    accounts,
		Events:      events,
		CORSOrigins: cfg.CORSOrigins(),
	})

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go svc.RunSweeper(runCtx, cfg.SweepInterval)

	s := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	<-runCtx.Done()
	log.Printf("shutting down")
	shutCtx, cancelShut := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShut()
	if err := s.Shutdown(shutCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if err := dbh.Close(); err != nil {
		log.Printf("db close: %v", err)
	}
}
