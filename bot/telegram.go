// Package bot provides the optional Telegram control surface
package bot

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/0xferal/roundbot/state"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Trade notifications and remote kill switch
// ═══════════════════════════════════════════════════════════════════════════════

// Notifier pushes trade events to a chat and accepts control commands
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	state  *state.AgentState
	stopCh chan struct{}
}

// NewNotifier creates a Telegram notifier. Returns nil without error when no
// token is configured; callers treat a nil notifier as disabled.
func NewNotifier(token string, chatID int64, st *state.AgentState) (*Notifier, error) {
	if token == "" {
		return nil, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	return &Notifier{
		api:    api,
		chatID: chatID,
		state:  st,
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins polling for commands
func (n *Notifier) Start() {
	go n.commandLoop()
	log.Info().Str("bot", n.api.Self.UserName).Msg("🤖 Telegram bot started")
}

// Stop ends command polling
func (n *Notifier) Stop() {
	close(n.stopCh)
	n.api.StopReceivingUpdates()
}

// NotifyTradeOpened announces a newly opened paper trade
func (n *Notifier) NotifyTradeOpened(trade map[string]any) {
	text := fmt.Sprintf("📝 *Paper trade opened*\nAction: `%v`\nEntry: `%v`\nConfidence: `%v`\nRound: `%v`",
		trade["action"], trade["entry_price"], trade["confidence"], trade["round_id"])
	n.send(text)
}

// NotifyTradeClosed announces a settlement
func (n *Notifier) NotifyTradeClosed(closing map[string]any) {
	emoji := "💰"
	if outcome, _ := closing["outcome"].(string); outcome == "loss" {
		emoji = "📉"
	}
	text := fmt.Sprintf("%s *Paper trade closed*\nOutcome: `%v`\nPnL: `%v USD`\nDay PnL: `%v USD`",
		emoji, closing["outcome"], closing["pnl_usd"], closing["day_realized_pnl_usd"])
	n.send(text)
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.api.Send(msg); err != nil {
		log.Warn().Err(err).Msg("Telegram send failed")
	}
}

func (n *Notifier) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := n.api.GetUpdatesChan(u)

	for {
		select {
		case <-n.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if n.chatID != 0 && update.Message.Chat.ID != n.chatID {
				continue
			}
			n.handleCommand(update.Message)
		}
	}
}

func (n *Notifier) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "status":
		snapshot := n.state.Snapshot()
		uptime := time.Since(time.Unix(int64(snapshot.StartedTs), 0)).Round(time.Second)
		text := fmt.Sprintf("📊 *Status*\nUptime: `%s`\nKill switch: `%v`\nOpen trades logged: `%d`",
			uptime, snapshot.KillSwitchEnabled, len(snapshot.PaperTrades))
		if snapshot.LatestPrice != nil {
			text += fmt.Sprintf("\nLast price: `%.2f`", *snapshot.LatestPrice)
		}
		n.send(text)
	case "kill":
		n.state.SetKillSwitch(true)
		n.state.AddEvent("warning", "kill_switch_toggled", map[string]any{"enabled": true, "source": "telegram"})
		n.send("🛑 Kill switch *enabled*: new admissions blocked")
	case "resume":
		n.state.SetKillSwitch(false)
		n.state.AddEvent("warning", "kill_switch_toggled", map[string]any{"enabled": false, "source": "telegram"})
		n.send("▶️ Kill switch *disabled*: admissions resumed")
	default:
		n.send("Commands: /status /kill /resume")
	}
}
