package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/talknow/signaling/internal/config"
	"github.com/talknow/signaling/internal/messaging"
	"github.com/talknow/signaling/internal/migrations"
	"github.com/talknow/signaling/internal/moderation"
	"github.com/talknow/signaling/internal/modlog"
	"github.com/talknow/signaling/internal/report"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.LoadModerator()
	log.Println("TalkNow moderator service starting")
	log.Printf("  nats_url:     %s", cfg.NATSURL)
	log.Printf("  postgres_url: set=%v", cfg.PostgresURL != "")

	// --- PostgreSQL: report and audit persistence ---
	if err := migrations.Up(cfg.PostgresURL); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	cancelPing()

	reports := report.NewStore(db)
	modlogs := modlog.NewStore(db)

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "talknow-moderator"
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	engine := moderation.NewEngine()

	// Answer moderation checks over request/reply. The reply must always be
	// valid JSON: the signaling server fails closed on anything else.
	err = natsClient.RespondModeration(func(data []byte) []byte {
		var req moderation.CheckRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("[moderator] bad check request: %v", err)
			reply, _ := json.Marshal(moderation.CheckResult{
				Verdict: moderation.Verdict{IsSafe: false, Action: moderation.ActionBlock, Categories: []string{"malformed_request"}},
			})
			return reply
		}

		verdict := engine.Classify(req)
		if !verdict.IsSafe {
			log.Printf("[moderator] FLAGGED session=%s categories=%v", req.SessionID, verdict.Categories)
		}

		reply, err := json.Marshal(moderation.CheckResult{SessionID: req.SessionID, Verdict: verdict})
		if err != nil {
			log.Printf("[moderator] marshal verdict: %v", err)
			return []byte(`{"verdict":{"is_safe":false,"action":"block"}}`)
		}
		return reply
	})
	if err != nil {
		log.Fatalf("failed to subscribe to moderation checks: %v", err)
	}

	// Persist filed reports.
	err = natsClient.SubscribeReports(func(data []byte) {
		var ev report.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[moderator] bad report event: %v", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := reports.Create(ctx, &ev); err != nil {
			log.Printf("[moderator] persist report session=%s: %v", ev.SessionID, err)
			return
		}

		count, err := reports.CountRecent(ctx, ev.ReportedID, 24*time.Hour)
		if err != nil {
			log.Printf("[moderator] count reports for %s: %v", ev.ReportedID, err)
			return
		}
		log.Printf("[moderator] report filed session=%s reported=%s reason=%s (24h total=%d)",
			ev.SessionID, ev.ReportedID, ev.Reason, count)
	})
	if err != nil {
		log.Fatalf("failed to subscribe to reports: %v", err)
	}

	// Persist moderation audit records.
	err = natsClient.SubscribeAudit(func(data []byte) {
		var rec moderation.AuditRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			log.Printf("[moderator] bad audit record: %v", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := modlogs.Create(ctx, &rec); err != nil {
			log.Printf("[moderator] persist audit session=%s: %v", rec.SessionID, err)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to audits: %v", err)
	}

	log.Println("TalkNow moderator service running")

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
	if err := db.Close(); err != nil {
		log.Printf("postgres close error: %v", err)
	}
}
