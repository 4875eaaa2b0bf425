package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/clueboard/internal/api"
	"github.com/victornm/clueboard/internal/batch"
	"github.com/victornm/clueboard/internal/event"
	"github.com/victornm/clueboard/internal/realtime"
	"github.com/victornm/clueboard/internal/room"
	"github.com/victornm/clueboard/internal/schedule"
	"github.com/victornm/clueboard/internal/standings"
	"github.com/victornm/clueboard/internal/store"
	"github.com/victornm/clueboard/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		// State holds rooms. Without addresses rooms live in process memory.
		State struct {
			Addrs  []string
			Pass   string
			Prefix string
			TTL    time.Duration
		}

		// Pubsub carries broadcasts between instances. Without addresses broadcasts stay in process.
		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Room struct {
		TwistWindow            time.Duration
		CountdownInterval      time.Duration
		AutoFinalizeDelay      time.Duration
		TwistAutoFinalizeDelay time.Duration
		BatchInterval          time.Duration
	}
}

func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Redis.State.Prefix = "clueboard"
	c.Redis.State.TTL = store.DefaultTTL
	c.Redis.Pubsub.Prefix = "clueboard"
	c.Room.TwistWindow = room.DefaultTwistWindow
	c.Room.CountdownInterval = room.DefaultCountdownInterval
	c.Room.AutoFinalizeDelay = room.DefaultAutoFinalizeDelay
	c.Room.TwistAutoFinalizeDelay = room.DefaultTwistAutoFinalizeDelay
	c.Room.BatchInterval = batch.DefaultInterval
	return c
}

type Server struct {
	c Config

	eb  *event.Bus
	hub *realtime.Hub

	infra struct {
		redis struct {
			state  redis.UniversalClient
			pubsub redis.UniversalClient
		}
	}

	service struct {
		room      *room.Service
		standings *standings.Service
	}

	api    *api.API
	relay  *realtime.Relay
	health *health.Server

	http *http.Server
	grpc *grpc.Server

	// ctx bounds background loops such as the relay.
	ctx    context.Context
	cancel context.CancelFunc
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.eb = event.NewBus()
	s.hub = realtime.NewHub()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	if len(s.c.Redis.State.Addrs) > 0 {
		s.infra.redis.state, err = connect(s.c.Redis.State.Addrs, s.c.Redis.State.Pass)
		if err != nil {
			return fmt.Errorf("state: %w", err)
		}
	}

	if len(s.c.Redis.Pubsub.Addrs) > 0 {
		s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
		if err != nil {
			return fmt.Errorf("pubsub: %w", err)
		}
	}

	return nil
}

func (s *Server) initService() {
	var (
		st      store.Store
		answers room.AnswerSink
	)

	// Shared state writes answers straight through so every instance sees them; in process they are batched.
	if s.infra.redis.state != nil {
		rs := store.NewRedis(store.RedisConfig{
			Redis:  s.infra.redis.state,
			Prefix: s.c.Redis.State.Prefix,
			TTL:    s.c.Redis.State.TTL,
		})
		st, answers = rs, batch.NewDirect(rs)
		slog.Info("server: using redis room store", "prefix", s.c.Redis.State.Prefix)
	} else {
		m := store.NewMemory()
		st = m
		answers = batch.NewPipeline(batch.Config{
			Writer:   m,
			Interval: s.c.Room.BatchInterval,
		})
		slog.Info("server: using in-memory room store")
	}

	s.service.room = room.NewService(room.Config{
		EventBus:               s.eb,
		Store:                  st,
		Answers:                answers,
		Scheduler:              schedule.New(),
		TwistWindow:            s.c.Room.TwistWindow,
		CountdownInterval:      s.c.Room.CountdownInterval,
		AutoFinalizeDelay:      s.c.Room.AutoFinalizeDelay,
		TwistAutoFinalizeDelay: s.c.Room.TwistAutoFinalizeDelay,
	})

	s.service.standings = standings.NewService(standings.Config{
		Room: s.service.room,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.HTTPLogger())

	var publisher realtime.Publisher = s.hub
	if s.infra.redis.pubsub != nil {
		publisher = realtime.NewRedisPublisher(s.infra.redis.pubsub)
		s.relay = realtime.NewRelay(realtime.RelayConfig{
			Redis:  s.infra.redis.pubsub,
			Prefix: s.c.Redis.Pubsub.Prefix,
			Hub:    s.hub,
		})
	}

	s.api = api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Room:         s.service.room,
		Standings:    s.service.standings,
		Hub:          s.hub,
		Publisher:    publisher,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.grpc = grpc.NewServer(telemetry.GRPCServerOptions()...)
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.relay != nil {
		eg.Go(func() error {
			return s.relay.Run(s.ctx)
		})
	}

	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.api.Close()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.cancel()

	// Timers may still publish, so the room service goes before the bus.
	if err := s.service.room.Stop(ctx); err != nil {
		slog.ErrorContext(ctx, "server: stop room service failed", "error", err)
	}
	s.eb.Stop()

	for _, r := range []redis.UniversalClient{s.infra.redis.state, s.infra.redis.pubsub} {
		if r != nil {
			_ = r.Close()
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
