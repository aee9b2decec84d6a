package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"team-chat/auth"
	"team-chat/domain/event"
	"team-chat/httpapi"
	"team-chat/internal"
	"team-chat/moderation"
	"team-chat/observability"
	"team-chat/repositories"
	"team-chat/runtime"
	"team-chat/runtime/workers"
	"team-chat/services"
	"team-chat/sink"
	"team-chat/ws"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpc3 "github.com/mama165/sdk-go/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a fatal error.
// Deferred closes run before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", config.DebugInspectorPort, endpoint))
		database.StartDebugServer(db, config.DebugInspectorPort, endpoint, MessageMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// The repository cap is the largest page a client may ask for,
	// the history service applies the default below it.
	repository := repositories.NewMessageRepository(db, logger, &config.MaxHistoryLimit)
	index := repositories.NewMessageIndex(blugeWriter, logger)

	// 3. Live path: registry, gateway and the websocket endpoint
	monitor := observability.NewMonitor(logger)
	registry := runtime.NewRegistry(logger)
	persistence := make(chan event.DomainEvent, config.BufferSize)

	gateway := runtime.NewGateway(logger, registry, persistence, monitor, config.Policy(), config.MaxMessageLength)
	if config.ModerationEnabled {
		moderator, err := moderation.NewModerator(config.Words(), charReplacement, logger)
		if err != nil {
			return exitConfig, fmt.Errorf("moderation setup failed: %w", err)
		}
		gateway = gateway.WithCensor(moderator)
	}

	tokens := auth.NewTokenService(config.JwtSecret, config.JwtIssuer)
	authenticator := auth.NewAuthenticator(logger, tokens, config.Policy())
	chat := ws.NewServer(logger, gateway, authenticator, monitor, ws.Options{
		ConnectionBufferSize: config.ConnectionBufferSize,
		WriteTimeout:         config.WriteTimeout,
		PongTimeout:          config.PongTimeout,
		MaxFrameSize:         config.MaxFrameSize,
		MessagesPerSecond:    config.MessagesPerSecond,
		MessageBurst:         config.MessageBurst,
		AllowedOrigins:       config.Origins(),
	})

	stats := func() observability.Stats {
		snapshot := monitor.Snapshot()
		snapshot.Rooms, snapshot.AttachedConnections = registry.Size()
		return snapshot
	}

	// Both ports are bound before any goroutine starts, a busy port leaves nothing behind.
	httpListener, healthListener, err := listen(config)
	if err != nil {
		return exitRuntime, err
	}

	// 4. Persistence workers under supervision
	sup := workers.NewSupervisor(logger, config.RestartInterval).
		OnRestart(func(string) { monitor.WorkerRestarted() })
	for i := 0; i < config.NumberOfWorkers; i++ {
		sup.Add(workers.NewEventFanout(logger, persistence, monitor).
			Add(sink.NewDiskSink(repository, logger), sink.NewIndexSink(index, logger)))
	}
	sup.Add(workers.NewStatsReporter(logger, config.MetricInterval, stats))

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	// Workers outlive the signal: they stop once the live connections are closed.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		logger.Info("Starting persistence workers...", "workers", config.NumberOfWorkers)
		sup.Run(workerCtx)
	}()

	// 6. HTTP server (REST + websocket)
	history := services.NewHistoryService(repository, index, config.HistoryLimit, config.MaxHistoryLimit)
	router := httpapi.NewRouter(httpapi.NewHandler(logger, history, stats), authenticator, chat)
	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting chat server", "address", httpListener.Addr().String(), "policy", config.AuthPolicy, "at", time.Now().UTC())
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. gRPC health server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(logger)))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	go func() {
		logger.Info("Starting gRPC health server", "address", healthListener.Addr().String())
		if err := grpcServer.Serve(healthListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 9. Graceful Shutdown
	// Stop accepting, close live connections, then let workers drain the queue.
	logger.Info("Shutting down gracefully...")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", "error", err)
	}
	if err := chat.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Chat connections still open", "error", err)
	}
	grpcServer.GracefulStop()
	sup.Stop()
	cancelWorkers()
	<-supDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}

// listen binds the HTTP port then the gRPC health port, releasing the first
// when the second is not available.
func listen(config internal.Config) (net.Listener, net.Listener, error) {
	httpAddress := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpListener, err := net.Listen("tcp", httpAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", httpAddress, err)
	}
	healthAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcHealthPort)
	healthListener, err := net.Listen("tcp", healthAddress)
	if err != nil {
		_ = httpListener.Close()
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
	}
	return httpListener, healthListener, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// MessageMapper renders stored chat messages in the badger inspector.
func MessageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	message, err := repositories.DecodeMessage(val)
	if err != nil {
		row.Detail = "Error: decode failed"
		return row
	}
	row.Type = "CHAT"
	row.Detail = fmt.Sprintf("team %d | %s: %s", message.TeamID, message.Username, message.Text)
	return row
}
