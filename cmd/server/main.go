package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/talknow/signaling/internal/abuse"
	"github.com/talknow/signaling/internal/config"
	"github.com/talknow/signaling/internal/hub"
	"github.com/talknow/signaling/internal/messaging"
	"github.com/talknow/signaling/internal/metrics"
	"github.com/talknow/signaling/internal/moderation"
	"github.com/talknow/signaling/internal/protocol"
	"github.com/talknow/signaling/internal/ratelimit"
	"github.com/talknow/signaling/internal/registry"
	"github.com/talknow/signaling/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// --- Redis: rate limiter + abuse guard state ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancelPing()

	limiter := ratelimit.NewLimiter(rdb)
	guard := abuse.NewGuard(rdb, abuse.DefaultConfig())

	// --- NATS: moderation request/reply + report/audit events ---
	natsConfig := messaging.DefaultConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "talknow-server"
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	log.Printf("TalkNow signaling server starting")
	log.Printf("  listen_addr:        %s", cfg.ListenAddr)
	log.Printf("  metrics_addr:       %s", cfg.MetricsAddr)
	log.Printf("  worker_pool:        %d", cfg.WorkerPoolSize)
	log.Printf("  max_connections:    %d", cfg.MaxConnections)
	log.Printf("  redis_addr:         %s", cfg.RedisAddr)
	log.Printf("  nats_url:           %s", cfg.NATSURL)
	log.Printf("  moderation_timeout: %s", cfg.ModerationTimeout)
	log.Printf("  ice_servers:        %d entries", len(cfg.ICEServers))

	// --- Hub: the matchmaking/relay actor ---
	reg := registry.New()
	h := hub.New(hub.Config{
		Registry:          reg,
		Limiter:           limiter,
		Guard:             guard,
		Classifier:        moderation.NewRemoteClassifier(natsClient),
		Bus:               natsClient,
		ICEServers:        cfg.ICEServers,
		ModerationTimeout: cfg.ModerationTimeout,
	})
	reg.SetFailureHandler(h.Leave)

	hubCtx, stopHub := context.WithCancel(context.Background())
	go h.Run(hubCtx)

	// --- WebSocket front end ---
	dispatcher := ws.NewMessageDispatcher()

	participantOf := func(conn *ws.Connection) hub.Participant {
		return hub.Participant{
			ID:               conn.ID,
			Fingerprint:      conn.Fingerprint,
			IsPremium:        conn.Premium,
			TrialActive:      conn.Trial,
			DeclaredIdentity: conn.Identity,
		}
	}

	dispatcher.Register(protocol.TypeFindMatch, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.FindMatchMsg)
		if !ok {
			return
		}
		h.FindMatch(context.Background(), participantOf(conn), m)
	})

	dispatcher.Register(protocol.TypeCancelMatch, func(conn *ws.Connection, msg interface{}) {
		h.CancelMatch(conn.ID)
	})

	for _, sigType := range []string{protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate} {
		sigType := sigType
		dispatcher.Register(sigType, func(conn *ws.Connection, msg interface{}) {
			m, ok := msg.(protocol.SignalMsg)
			if !ok {
				return
			}
			h.Signal(context.Background(), conn.ID, sigType, m)
		})
	}

	dispatcher.Register(protocol.TypeChatMessage, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.ChatMessageMsg)
		if !ok {
			return
		}
		h.ChatMessage(context.Background(), conn.ID, m)
	})

	dispatcher.Register(protocol.TypeSkip, func(conn *ws.Connection, msg interface{}) {
		h.Skip(conn.ID)
	})

	dispatcher.Register(protocol.TypeDisconnect, func(conn *ws.Connection, msg interface{}) {
		h.Disconnect(conn.ID)
	})

	dispatcher.Register(protocol.TypeReport, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.ReportMsg)
		if !ok {
			return
		}
		h.Report(context.Background(), conn.ID, m)
	})

	server := ws.NewServer(ws.ServerConfig{
		ListenAddr:     cfg.ListenAddr,
		WorkerPoolSize: cfg.WorkerPoolSize,
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}, dispatcher.Dispatch)

	server.SetOnConnect(func(conn *ws.Connection) {
		// Connection-open attempts burn the auth budget; a fingerprint
		// churning through connections gets cut off before it can enqueue.
		authCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		allowed, retryAfter, err := limiter.Allow(authCtx, conn.Fingerprint, ratelimit.CategoryAuth)
		cancel()
		if err == nil && !allowed {
			if data, merr := protocol.NewServerMessage(protocol.TypeRateLimited, protocol.RateLimitedMsg{
				RetryAfter: int(retryAfter.Seconds() + 0.5),
			}); merr == nil {
				_ = conn.WriteMessage(data)
			}
			server.RemoveConnection(conn)
			return
		}
		h.Join(participantOf(conn), conn)
	})
	server.SetOnDisconnect(func(conn *ws.Connection) {
		h.Leave(conn.ID, conn)
	})

	// --- Metrics endpoint ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		stopHub()
		natsClient.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		cancel()
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
