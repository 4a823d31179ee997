// Roundbot - Automated decision engine for fixed-length up/down rounds
//
// The engine watches a live trade stream for the reference asset, scores
// each tick with a multi-signal composite strategy, gates candidates through
// odds alignment, risk limits and a net-edge cost model, and settles the
// resulting paper trades deterministically at every round close.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/0xferal/roundbot/api"
	"github.com/0xferal/roundbot/bot"
	"github.com/0xferal/roundbot/core"
	"github.com/0xferal/roundbot/exec"
	"github.com/0xferal/roundbot/feeds"
	"github.com/0xferal/roundbot/internal/config"
	"github.com/0xferal/roundbot/paper"
	"github.com/0xferal/roundbot/review"
	"github.com/0xferal/roundbot/risk"
	"github.com/0xferal/roundbot/state"
	"github.com/0xferal/roundbot/storage"
	"github.com/0xferal/roundbot/strategy"
	"github.com/0xferal/roundbot/types"
)

const version = "1.0.0"

// recordFanout distributes ledger records to the JSONL log, the database
// mirror and the Telegram notifier.
type recordFanout struct {
	logger   *storage.PaperTradeLogger
	notifier *bot.Notifier
}

func (f *recordFanout) Append(entry map[string]any) {
	if f.logger != nil {
		f.logger.Append(entry)
	}
	if f.notifier != nil {
		switch entry["type"] {
		case "paper_trade_opened":
			f.notifier.NotifyTradeOpened(entry)
		case "paper_trade_closed":
			f.notifier.NotifyTradeClosed(entry)
		}
	}
}

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("symbol", cfg.MarketSymbol).
		Str("mode", cfg.StrategyMode).
		Bool("dry_run", cfg.DryRun).
		Int("round_seconds", cfg.RoundSeconds).
		Msg("🎲 Roundbot starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agentState := state.New()

	// ====== PERSISTENCE ======

	var paperLogger *storage.PaperTradeLogger
	if cfg.PaperLogEnabled {
		paperLogger, err = storage.NewPaperTradeLogger(cfg.PaperLogPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create paper trade log")
		}
		log.Info().Str("path", cfg.PaperLogPath).Msg("📒 Paper trade log enabled")
	}

	var store core.TradeStore
	if cfg.DatabasePath != "" {
		db, err := storage.New(cfg.DatabasePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		store = db
	}

	// ====== FEEDS ======

	ticker := feeds.NewTickerFeed(cfg.FeedStream, cfg.FeedSymbol, cfg.FeedWSURL, cfg.PingInterval)
	ticker.Start()
	defer ticker.Stop()

	// One subscription drives the engine, another keeps shared state fresh
	// even between rounds.
	decisionTicks := ticker.Subscribe()
	liveTicks := ticker.Subscribe()
	go func() {
		for tick := range liveTicks {
			agentState.SetTick(tick.Price, tick.Ts)
		}
	}()

	crossFeed := feeds.NewCrossFeed(cfg.CrossFeedURL, cfg.FeedSymbol, agentState)
	crossFeed.Start()
	defer crossFeed.Stop()

	if cfg.OddsWSEnabled {
		oddsTracker := feeds.NewOddsTracker(feeds.OddsTrackerConfig{
			WSURL:                 cfg.OddsWSURL,
			MarketSymbol:          cfg.MarketSymbol,
			CandleWindow:          cfg.CandleWindow,
			WindowSeconds:         cfg.RoundSeconds,
			RefreshSeconds:        cfg.OddsRefreshSeconds,
			MoveThresholdPct:      cfg.OddsMoveThresholdPct,
			MoveMinAbsDelta:       cfg.OddsMoveMinAbsDelta,
			MoveLogCooldownSec:    cfg.OddsMoveLogCooldownSec,
			ReferencePriceRESTURL: cfg.CrossFeedURL + "?symbol=" + cfg.FeedSymbol,
		}, agentState)
		oddsTracker.Start()
		defer oddsTracker.Stop()
	}

	var secondary core.SecondaryPriceProvider
	if chainlinkClient, err := feeds.NewChainlinkClient(cfg.ChainlinkRPCURL, cfg.ChainlinkFeedAddress); err != nil {
		log.Warn().Err(err).Msg("⚠️ Chainlink unavailable, klines only")
	} else {
		defer chainlinkClient.Close()
		secondary = chainlinkClient
		log.Info().Str("feed", cfg.ChainlinkFeedAddress).Msg("⛓️ Chainlink reference feed connected")
	}

	windowSeconds, err := feeds.ParseWindowSeconds(cfg.CandleWindow)
	if err != nil {
		log.Fatal().Err(err).Str("window", cfg.CandleWindow).Msg("Invalid candle window")
	}
	candles := feeds.NewCandleBuilder(cfg.FeedSymbol, cfg.CandleWindow, windowSeconds)

	// ====== DECISION PIPELINE ======

	updownCfg := strategy.DefaultUpdownConfig()
	updownCfg.MinConfidenceToTrade = cfg.MinConfidenceToTrade
	updownCfg.MinScoreToTrade = cfg.MinScoreToTrade
	updownCfg.MaxEntryPrice = cfg.MaxEntryPrice
	updownCfg.KellyFraction = cfg.KellyFraction
	updownCfg.MaxTradeSizeUSD = cfg.MaxTradeSizeUSD
	updownCfg.MinTradeSizeUSD = cfg.MinTradeSizeUSD

	router := strategy.NewRouter(cfg.StrategyMode, cfg.ShadowModeEnabled, cfg.LiveTradingEnabled, updownCfg)
	guard := risk.NewGuard(risk.Limits{
		MaxTradesPerRound:    cfg.MaxTradesPerRound,
		TradeCooldownSeconds: float64(cfg.TradeCooldownSeconds),
	})
	executor := exec.NewActionExecutor(cfg.DryRun)
	scheduler := core.NewScheduler(cfg.RoundSeconds, cfg.ActivationLeadSeconds)

	reviewTrigger := review.NewTrigger(agentState)
	reviewTrigger.Start()
	defer reviewTrigger.Stop()

	notifier, err := bot.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID, agentState)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Telegram notifier disabled")
	} else if notifier != nil {
		notifier.Start()
		defer notifier.Stop()
	}

	engine := core.NewEngine(
		core.Config{
			MarketSymbol:           cfg.MarketSymbol,
			FeedSymbol:             cfg.FeedSymbol,
			RoundSeconds:           cfg.RoundSeconds,
			StrategyMode:           cfg.StrategyMode,
			CompositeMinConfidence: cfg.MinConfidenceToTrade,
			PaperNotionalUSD:       cfg.PaperNotionalUSD.InexactFloat64(),
			PaperMinNetEdgeBps:     cfg.PaperMinNetEdgeBps,
			EdgeStrengthToBps:      cfg.PaperEdgeStrengthToBps,
			Simulation: paper.SimulationConfig{
				EntrySlippageBps:        cfg.PaperEntrySlippageBps,
				DynamicSlippageEnabled:  cfg.PaperDynamicSlippageEnabled,
				SlippageEdgeFactorBps:   cfg.PaperSlippageEdgeFactorBps,
				SlippageConfFactorBps:   cfg.PaperSlippageConfFactorBps,
				SlippageExpiryFactorBps: cfg.PaperSlippageExpiryFactorBps,
				MaxSlippageBps:          cfg.PaperMaxSlippageBps,
				GasFeeUSDPerSide:        cfg.PaperGasFeeUSDPerSide,
				AdverseSelectionBps:     cfg.PaperAdverseSelectionBps,
				MinNotionalUSD:          cfg.PaperMinNotionalUSD,
			},
		},
		scheduler,
		router,
		guard,
		executor,
		agentState,
		candles,
		feeds.NewKlinesClient(cfg.KlinesURL),
		secondary,
		&recordFanout{logger: paperLogger, notifier: notifier},
		store,
		func(marketSlug string, window types.RoundWindow) {
			reviewTrigger.Enqueue(review.Request{
				MarketSlug:   marketSlug,
				RoundID:      window.RoundID,
				RoundOpenTs:  time.Unix(int64(window.StartTs), 0).UTC(),
				RoundCloseTs: time.Unix(int64(window.CloseTs), 0).UTC(),
			})
		},
	)

	// ====== ADMIN SURFACE ======

	server := api.NewServer(cfg.APIPort, agentState, cancel)
	server.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	// ====== RUN ======

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Shutting down...")
		cancel()
	}()

	if err := engine.Run(ctx, decisionTicks); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Engine stopped")
	}

	log.Info().Msg("👋 Roundbot stopped")
}
