package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/loankart/pkg/auth"
	"github.com/mcclellann/loankart/pkg/catalog"
	"github.com/mcclellann/loankart/pkg/config"
	"github.com/mcclellann/loankart/pkg/ledger"
	"github.com/mcclellann/loankart/pkg/logging"
	"github.com/mcclellann/loankart/pkg/metrics"
	"github.com/mcclellann/loankart/pkg/notify"
	"github.com/mcclellann/loankart/pkg/scheduler"
	"github.com/mcclellann/loankart/pkg/store"
)

// Server holds the ledger and its collaborators.
type Server struct {
	ledger   *ledger.Ledger
	auth     *auth.PasswordAuthenticator
	jwt      *auth.JWTManager
	products []catalog.Product
	storage  store.Storage // Keep a reference to the storage to close it
	logger   *logrus.Logger
}

func NewServer(s store.Storage, cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	products, err := catalog.Load(cfg.ProductsFile)
	if err != nil {
		return nil, err
	}
	metrics.Init()
	return &Server{
		ledger:   ledger.NewLedger(s, notify.New(cfg, logger), logger),
		auth:     auth.NewPasswordAuthenticator(s),
		jwt:      auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		products: products,
		storage:  s,
		logger:   logger,
	}, nil
}

const idPattern = "{id:[0-9a-fA-F-]{36}}"

// Router wires every route. Public routes are registered before the
// authenticated subrouters so /loans/options is not shadowed.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.requestLogger)

	router.HandleFunc("/auth/register", s.registerHandler).Methods("POST")
	router.HandleFunc("/auth/login", s.loginHandler).Methods("POST")
	router.HandleFunc("/auth/logout", s.logoutHandler).Methods("POST")
	router.HandleFunc("/loans/options", s.loanOptionsHandler).Methods("GET")
	router.HandleFunc("/calculator", s.calculatorHandler).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(auth.RequireAuth(s.jwt), auth.RequireAdmin)
	admin.HandleFunc("/loans", s.adminLoansHandler).Methods("GET")
	admin.HandleFunc("/loans/"+idPattern, s.adminUpdateLoanHandler).Methods("PUT")
	admin.HandleFunc("/users", s.adminUsersHandler).Methods("GET")

	api := router.NewRoute().Subrouter()
	api.Use(auth.RequireAuth(s.jwt))
	api.HandleFunc("/loans/apply", s.applyLoanHandler).Methods("POST")
	api.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	api.HandleFunc("/loans/"+idPattern, s.getLoanHandler).Methods("GET")
	api.HandleFunc("/loans/"+idPattern+"/payments", s.listPaymentsHandler).Methods("GET")
	api.HandleFunc("/loans/"+idPattern+"/payments/on/{date}", s.paymentOnDateHandler).Methods("GET")
	api.HandleFunc("/loans/"+idPattern+"/summary", s.summaryHandler).Methods("GET")
	api.HandleFunc("/loans/"+idPattern+"/schedule.pdf", s.scheduleExportHandler("pdf")).Methods("GET")
	api.HandleFunc("/loans/"+idPattern+"/schedule.xlsx", s.scheduleExportHandler("xlsx")).Methods("GET")
	api.HandleFunc("/payments/"+idPattern+"/pay", s.payHandler).Methods("POST")
	api.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")

	return router
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, os.Stdout)
	if cfg.InsecureJWTSecret() {
		logger.Warn("JWT_SECRET is not set; tokens are signed with the built-in default key")
	}

	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	server, err := NewServer(sqliteStore, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize server: %v", err)
	}

	if cfg.AdminEmail != "" {
		if _, err := server.auth.EnsureAdmin(context.Background(), cfg.AdminEmail, cfg.AdminPassword); err != nil {
			logger.Fatalf("Failed to ensure admin account: %v", err)
		}
	}

	jobs := scheduler.New(server.ledger, cfg.ReminderDays, logger)
	if err := jobs.Start(cfg.JobSchedule); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
	jobs.Stop(ctx)
}
