package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/revenue-engine/internal/engine"
	"github.com/angelmondragon/revenue-engine/internal/syncworker"
	"github.com/angelmondragon/revenue-engine/pkg/auth"
	"github.com/angelmondragon/revenue-engine/pkg/config"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
	"github.com/angelmondragon/revenue-engine/pkg/pubsub"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "revenue-sync"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "run", "command: run|publish|token")
	tenant := flag.String("tenant", "", "tenant id")
	providerFlag := flag.String("provider", "", "revenue provider: stripe|paddle")
	role := flag.String("role", string(enums.MemberRoleOwner), "member role for -cmd=token")
	subject := flag.String("subject", "cli", "token subject for -cmd=token")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "revenue-sync",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	tenantID := strings.TrimSpace(*tenant)
	if tenantID == "" {
		fmt.Fprintln(os.Stderr, "missing -tenant")
		os.Exit(2)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{"cmd": *cmd})

	switch *cmd {
	case "token":
		memberRole, err := enums.ParseMemberRole(*role)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{
			Subject:  *subject,
			TenantID: tenantID,
			Role:     memberRole,
		})
		requireResource(runCtx, logg, "jwt", err)
		fmt.Println(token)

	case "run":
		provider := requireProvider(*providerFlag)
		eng, err := engine.New(runCtx, engine.Params{Config: cfg, Logger: logg})
		requireResource(runCtx, logg, "engine", err)
		defer eng.Close()

		res, err := eng.Orchestrator.Sync(runCtx, tenantID, provider)
		if err != nil {
			logg.Error(runCtx, "sync failed", err)
			eng.Close()
			os.Exit(1)
		}
		fmt.Printf("synced %s/%s: %d written in %s (watermark %s)\n",
			res.TenantID, res.Provider, res.Written, res.Duration.Round(time.Millisecond), res.Watermark.Format(time.RFC3339))

	case "publish":
		provider := requireProvider(*providerFlag)
		if err := publish(runCtx, cfg, logg, syncworker.Request{TenantID: tenantID, Provider: provider.String()}); err != nil {
			logg.Error(runCtx, "publish failed", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(2)
	}
}

func publish(ctx context.Context, cfg *config.Config, logg *logger.Logger, req syncworker.Request) error {
	client, err := pubsub.NewPublisherClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer client.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	id, err := client.PublishSyncRequest(ctx, data, req.TenantID, req.Provider)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "message_id", id), "sync request published")
	return nil
}

func requireProvider(raw string) enums.RevenueProvider {
	provider, err := enums.ParseRevenueProvider(raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid -provider:", err)
		os.Exit(2)
	}
	return provider
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
