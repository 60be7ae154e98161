// Server runs the attendance HTTP API, the lecturer live channel and the gRPC health listener.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"cheqr/backend/internal/attendance/codec"
	attendancehandler "cheqr/backend/internal/attendance/handler"
	"cheqr/backend/internal/attendance/repository"
	"cheqr/backend/internal/attendance/service"
	"cheqr/backend/internal/clock"
	"cheqr/backend/internal/config"
	courserepo "cheqr/backend/internal/course/repository"
	"cheqr/backend/internal/db"
	"cheqr/backend/internal/db/migrate"
	healthhandler "cheqr/backend/internal/health/handler"
	"cheqr/backend/internal/logging"
	"cheqr/backend/internal/notify"
	"cheqr/backend/internal/policy/engine"
	"cheqr/backend/internal/security"
	"cheqr/backend/internal/server"
	telemetryotel "cheqr/backend/internal/telemetry/otel"
)

const serviceName = "cheqr-attendance"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty, serviceName)
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry")
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("telemetry: shutdown")
		}
	}()

	loc, err := clock.LoadZone(cfg.ReferenceTimezone)
	if err != nil {
		log.Fatal().Err(err).Msg("clock")
	}
	clk := clock.NewSystem(loc)
	log.Info().Str("zone", clk.Location().String()).Msg("reference timezone")

	var checks []healthhandler.Check

	// Session store: Postgres when configured, in-memory otherwise.
	var sessions repository.Repository
	if cfg.DatabaseURL != "" {
		if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("migrate")
		}
		conn, err := db.OpenContext(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("db")
		}
		defer conn.Close()
		sessions = repository.NewPostgresRepository(conn, clk.Location())
		checks = append(checks, healthhandler.DBCheck("postgres", conn)...)
	} else {
		log.Warn().Msg("DATABASE_URL not set; sessions are kept in memory and lost on restart")
		sessions = repository.NewMemoryRepository()
	}

	// Course directory: MongoDB behind a TTL cache.
	var courses courserepo.Repository
	if cfg.MongoURI != "" {
		mongoRepo, err := courserepo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatal().Err(err).Msg("mongo")
		}
		defer func() { _ = mongoRepo.Close(context.Background()) }()
		checks = append(checks, healthhandler.Check{Name: "mongo", Fn: mongoRepo.Ping})
		courses = mongoRepo
	} else {
		log.Warn().Msg("MONGO_URI not set; course directory is empty (run cmd/seed against MongoDB for demo data)")
		courses = courserepo.NewMemoryRepository()
	}
	if ttl := cfg.CourseCacheDuration(); ttl > 0 {
		cached := courserepo.NewCachedRepository(courses, ttl)
		defer cached.Close()
		courses = cached
	}

	authz, err := engine.NewOPAEvaluatorFromFile(ctx, cfg.AuthzPolicyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("policy")
	}
	checks = append(checks, healthhandler.PolicyCheck(authz)...)

	tokens, err := verifier(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("jwt keys")
	}

	// Event fan-out: local hub, optional Redis relay, optional Kafka stream, OTel log records.
	hub := notify.NewHub(notify.DefaultBuffer)
	sinks := notify.Multi{hub, telemetryotel.NewEventSink(providers.LoggerProvider)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		relay := notify.NewRedisRelay(rdb, hub)
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error().Err(err).Msg("notify: redis relay stopped")
			}
		}()
		sinks = append(sinks, relay)
		checks = append(checks, healthhandler.Check{Name: "redis", Fn: relay.Ping})
	}
	if producer := notify.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.KafkaTopic); producer != nil {
		defer producer.Close()
		sinks = append(sinks, producer)
	}

	c := codec.New(clk.Location(), cfg.QRSigningSecret)
	handler := attendancehandler.NewHandler(
		service.NewGenerator(sessions, courses, authz, c, clk, sinks, cfg.DefaultSessionDuration()),
		service.NewValidator(sessions, courses, c, clk, sinks),
		service.NewReader(sessions, courses, authz, c, clk),
		hub,
		cfg.AllowedOriginsList(),
	)

	health := healthhandler.NewServer(checks...)
	go health.Run(ctx, 15*time.Second)

	httpSrv := server.NewHTTPServer(cfg.HTTPAddr, server.NewRouter(server.HTTPDeps{
		ServiceName: serviceName,
		Tokens:      tokens,
		Attendance:  handler,
		Health:      health,
	}))
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http serve")
		}
	}()

	var grpcSrv interface{ GracefulStop() }
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("listen")
		}
		s := server.NewGRPCServer(health)
		grpcSrv = s
		go func() {
			log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC health server listening")
			if err := s.Serve(lis); err != nil {
				log.Fatal().Err(err).Msg("grpc serve")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down...")
	health.Shutdown()

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	// Let in-flight async publishes reach the sinks before they are closed by the deferred calls.
	time.Sleep(notify.ShutdownDrainDuration)
	log.Info().Msg("server stopped")
}

// verifier builds a verify-only token provider from JWT_PUBLIC_KEY. In development the public half of
// JWT_PRIVATE_KEY is accepted instead so tokens minted by cmd/seed work without extra setup.
func verifier(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPublicKey == "" && cfg.JWTPrivateKey != "" && cfg.Env != "production" {
		priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
		if err != nil {
			return nil, err
		}
		return security.NewTokenProvider(nil, priv.Public(), cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(nil, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}
