package notify

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"fleet-core/internal/events"
	"fleet-core/pkg/logger"
)

// Notifier pushes human-readable messages about material events.
// Fire-and-forget; delivery failures are logged only.
type Notifier interface {
	Notify(msg string)
}

// Noop discards everything. Used when telegram is not configured.
type Noop struct{}

func (Noop) Notify(string) {}

// Telegram sends HTML-formatted messages to one chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram connects the bot API. Returns an error when the token is
// rejected so startup can fall back to Noop.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Notify sends msg asynchronously.
func (t *Telegram) Notify(msg string) {
	go func() {
		m := tgbotapi.NewMessage(t.chatID, msg)
		m.ParseMode = tgbotapi.ModeHTML
		if _, err := t.bot.Send(m); err != nil {
			logger.Warnf("telegram send failed: %v", err)
		}
	}()
}

// Relay subscribes to the bus and forwards trade lifecycle events to the
// notifier until unsubscribed. It returns the teardown function.
func Relay(bus *events.Bus, n Notifier) func() {
	type sub struct {
		ch    <-chan any
		unsub func()
	}
	var subs []sub
	for _, e := range []events.Event{
		events.EventPositionOpened,
		events.EventPositionScaled,
		events.EventPositionClosed,
		events.EventMarginAlert,
		events.EventWorkerStopped,
	} {
		ch, unsub := bus.Subscribe(e, 32)
		subs = append(subs, sub{ch: ch, unsub: unsub})
		go func(e events.Event, ch <-chan any) {
			for payload := range ch {
				n.Notify(format(e, payload))
			}
		}(e, ch)
	}
	return func() {
		for _, s := range subs {
			s.unsub()
		}
	}
}

func format(e events.Event, payload any) string {
	switch e {
	case events.EventPositionOpened:
		p, ok := payload.(events.PositionEvent)
		if !ok {
			break
		}
		return fmt.Sprintf("<b>OPENED %s</b>\nworker %s | %s qty %.4f\nentry %.4f | %dx",
			p.Symbol, p.WorkerID, p.Side, p.Qty, p.Entry, p.Leverage)
	case events.EventPositionScaled:
		p, ok := payload.(events.PositionEvent)
		if !ok {
			break
		}
		return fmt.Sprintf("<b>PYRAMID %s</b>\nworker %s | %s +%.4f at ROI %.2f%%\navg entry %.4f",
			p.Symbol, p.WorkerID, p.Side, p.Qty, p.ROI, p.Entry)
	case events.EventPositionClosed:
		p, ok := payload.(events.PositionEvent)
		if !ok {
			break
		}
		return fmt.Sprintf("<b>CLOSED %s</b>\nworker %s | %s\nexit %.4f | PnL %.2f | ROI %.2f%%\n%s",
			p.Symbol, p.WorkerID, p.Side, p.Exit, p.Profit, p.ROI, p.Reason)
	case events.EventMarginAlert:
		m, ok := payload.(events.MarginEvent)
		if !ok {
			break
		}
		return fmt.Sprintf("<b>MARGIN SAFETY TRIPPED</b>\nratio %.3f <= %.2f, closing positions",
			m.Ratio, m.Threshold)
	case events.EventWorkerStopped:
		w, ok := payload.(events.WorkerEvent)
		if !ok {
			break
		}
		return fmt.Sprintf("worker %s stopped (%s)", w.WorkerID, w.Reason)
	}
	return fmt.Sprintf("%v at %s", payload, time.Now().Format(time.RFC3339))
}
