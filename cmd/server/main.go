package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Ammarmeer/drowsiness/internal/alerts"
	"github.com/Ammarmeer/drowsiness/internal/classifier"
	"github.com/Ammarmeer/drowsiness/internal/config"
	"github.com/Ammarmeer/drowsiness/internal/credentials"
	"github.com/Ammarmeer/drowsiness/internal/dashboard"
	"github.com/Ammarmeer/drowsiness/internal/database"
	"github.com/Ammarmeer/drowsiness/internal/handlers"
	"github.com/Ammarmeer/drowsiness/internal/ledger"
	"github.com/Ammarmeer/drowsiness/internal/services"
)

var version = "dev"

func main() {
	httpPort := flag.String("http-port", "", "HTTP port (overrides HTTP_PORT)")
	grpcPort := flag.String("grpc-port", "", "gRPC port (overrides GRPC_PORT)")
	classifierAddr := flag.String("classifier-addr", "", "inference service address (overrides CLASSIFIER_ADDR)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if *httpPort != "" {
		cfg.HTTPPort = *httpPort
	}
	if *grpcPort != "" {
		cfg.GRPCPort = *grpcPort
	}
	if *classifierAddr != "" {
		cfg.ClassifierAddr = *classifierAddr
	}

	slog.SetDefault(newLogger(cfg))
	slog.Info("starting",
		"version", version,
		"environment", cfg.Environment,
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"classifier", cfg.ClassifierAddr,
		"database", cfg.DSNForLog(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("goodbye")
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	store := database.NewStore(db, cfg.DBDriver)
	defer store.Close()

	creds := credentials.NewService(
		store,
		credentials.NewHasher(cfg.BcryptCost),
		credentials.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL),
	)
	if err := creds.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}

	metrics := services.NewMetrics()

	var model classifier.Classifier
	grpcClient, err := services.NewGRPCClient(cfg.ClassifierAddr)
	if err != nil {
		slog.Warn("inference service unavailable, predictions will report model_error", "error", err)
	} else {
		defer grpcClient.Close()
		model = grpcClient
	}
	guard := classifier.NewGuard(model, cfg.ClassifierTimeout, classifier.WithErrorHook(metrics.IncrementErrors))

	hub := alerts.NewHub(metrics, nil)
	defer hub.Close()

	var publisher ledger.AlertPublisher = hub
	if cfg.RedisAddr != "" {
		rdb, err := alerts.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer rdb.Close()
		broker := alerts.NewBroker(rdb, "", hub)
		publisher = broker
		go func() {
			if err := broker.Run(ctx); err != nil {
				slog.Error("alert relay stopped", "error", err)
			}
		}()
	}

	led := ledger.New(store, ledger.Options{
		AtomicDetections:    cfg.AtomicDetections,
		SingleActiveSession: cfg.SingleActiveSession,
	}, ledger.WithAlerts(publisher), ledger.WithRecorder(metrics))

	srv := handlers.NewServer(handlers.Deps{
		Ledger:      led,
		Dashboard:   dashboard.New(store),
		Credentials: creds,
		Classifier:  guard,
		Alerts:      hub,
		Metrics:     metrics,
		DB:          store,
	}, handlers.Options{
		AuthRequired:   cfg.AuthRequired,
		CORSOrigins:    splitOrigins(cfg.CORSOrigins),
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		Version:        version,
	})

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(50*1024*1024),
		grpc.MaxSendMsgSize(50*1024*1024),
		grpc.ChainUnaryInterceptor(handlers.UnaryLoggingInterceptor),
	)
	handlers.RegisterPredictionServer(grpcServer, handlers.NewGRPCHandler(guard, metrics))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handlers.PredictionService, healthpb.HealthCheckResponse_SERVING)

	httpServer := &http.Server{
		Addr:         ":" + strings.TrimPrefix(cfg.HTTPPort, ":"),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- startGRPCServer(grpcServer, cfg.GRPCPort) }()
	go func() { errCh <- startHTTPServer(httpServer) }()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		return err
	}

	healthServer.Shutdown()
	shutdown(grpcServer, httpServer)
	return nil
}

func startGRPCServer(s *grpc.Server, port string) error {
	lis, err := net.Listen("tcp", ":"+strings.TrimPrefix(port, ":"))
	if err != nil {
		return err
	}
	slog.Info("gRPC server listening", "addr", lis.Addr().String())
	return s.Serve(lis)
}

func startHTTPServer(s *http.Server) error {
	slog.Info("HTTP server listening", "addr", s.Addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func shutdown(grpcServer *grpc.Server, httpServer *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		slog.Info("gRPC server stopped")
	case <-shutdownCtx.Done():
		slog.Warn("forcing gRPC shutdown")
		grpcServer.Stop()
	}

	httpCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP shutdown", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsDev() {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
