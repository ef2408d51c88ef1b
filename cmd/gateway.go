package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okapi-bot/okapi/internal/bus"
	"github.com/okapi-bot/okapi/internal/channels"
	"github.com/okapi-bot/okapi/internal/config"
	"github.com/okapi-bot/okapi/internal/cron"
	"github.com/okapi-bot/okapi/internal/heartbeat"
	"github.com/okapi-bot/okapi/internal/statecache"
	"github.com/okapi-bot/okapi/internal/utils"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the okapi gateway (channels + agent + scheduler)",
	RunE:  runGateway,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()
	msgBus := bus.NewMessageBus()
	cache := statecache.New(cfg.Redis.URL, logger)
	defer cache.Close()

	loop := makeAgentLoop(cfg, msgBus, makeProvider(cfg), cache, logger)

	chMgr := channels.NewManager(msgBus, logger)
	if tg := cfg.Channels.Telegram; tg != nil && tg.Token != "" {
		chMgr.Register(channels.NewTelegramChannel(tg.Token, tg.AllowFrom, msgBus, logger))
	}
	if wa := cfg.Channels.WhatsApp; wa != nil {
		chMgr.Register(channels.NewWhatsAppChannel(wa.BridgeURL, wa.AuthToken, wa.AllowFrom, msgBus, logger))
	}
	if sl := cfg.Channels.Slack; sl != nil && sl.BotToken != "" && sl.AppToken != "" {
		chMgr.Register(channels.NewSlackChannel(sl.BotToken, sl.AppToken, sl.AllowFrom, msgBus, logger))
	}

	if enabled := chMgr.EnabledChannels(); len(enabled) > 0 {
		logger.Info("channels enabled", "channels", enabled)
	} else {
		logger.Warn("no channels enabled; agent reachable via 'okapi agent' only")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cron jobs run in an isolated per-job session so scheduled output
	// doesn't pollute the target chat's history.
	cronSvc := cron.NewService(utils.DataPath(), msgBus, func(jobCtx context.Context, job *cron.Job) (string, error) {
		return loop.ProcessDirect(jobCtx, job.Message, "cron:"+job.ID, job.Channel, job.ChatID)
	}, logger)
	loop.SetCron(cronSvc)
	if err := cronSvc.Start(ctx); err != nil {
		return fmt.Errorf("starting cron: %w", err)
	}

	hb := heartbeat.New(cfg.Heartbeat, utils.WorkspacePath(cfg.Agent.Workspace), loop, msgBus, cache, logger)
	hb.Channel = cfg.Heartbeat.Channel
	hb.ChatID = cfg.Heartbeat.ChatID
	hb.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		hb.Stop()
		cronSvc.Stop()
		chMgr.StopAll()
		cancel()
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- loop.Run(ctx) }()
	if len(chMgr.EnabledChannels()) > 0 {
		go func() { errCh <- chMgr.StartAll(ctx) }()
	} else {
		// Still drain outbound so cron/heartbeat replies don't pile up
		go msgBus.DispatchOutbound(ctx)
	}

	err = <-errCh
	cancel()
	return err
}
