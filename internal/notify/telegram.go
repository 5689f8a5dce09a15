package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MoexSignal/models"
)

// sender is the part of tgbotapi.BotAPI the sink uses
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink sends trade and backtest reports to one chat
type TelegramSink struct {
	bot    sender
	chatID int64
	logger zerolog.Logger
}

// NewTelegramSink connects to the Bot API with the given token
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return newTelegramSink(bot, chatID), nil
}

func newTelegramSink(bot sender, chatID int64) *TelegramSink {
	return &TelegramSink{
		bot:    bot,
		chatID: chatID,
		logger: log.With().Str("component", "telegram_sink").Int64("chat_id", chatID).Logger(),
	}
}

// Publish formats the event and sends it. Training events are not sent to chat.
func (s *TelegramSink) Publish(ctx context.Context, event models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text, ok := FormatEvent(event)
	if !ok {
		return nil
	}

	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := s.bot.Send(msg); err != nil {
		s.logger.Error().Err(err).Str("kind", string(event.Kind)).Msg("Failed to send message")
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// FormatEvent renders an event as an HTML chat message
func FormatEvent(event models.Event) (string, bool) {
	var b strings.Builder

	switch event.Kind {
	case models.EventTrade:
		trade := event.Trade
		if trade == nil {
			return "", false
		}
		switch trade.Action {
		case models.ActionBuy:
			b.WriteString("🟢 <b>Покупка</b> ")
		case models.ActionSell:
			b.WriteString("🔴 <b>Продажа</b> ")
		default:
			return "", false
		}
		b.WriteString(html.EscapeString(trade.InstrumentID))
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "Количество: %d\n", trade.Quantity)
		fmt.Fprintf(&b, "Цена: %.2f ₽\n", trade.Price)
		fmt.Fprintf(&b, "Сумма: %.2f ₽\n", trade.Total)
		if trade.Reason != "" {
			fmt.Fprintf(&b, "\n<i>%s</i>", html.EscapeString(trade.Reason))
		}

	case models.EventBacktest:
		result := event.Backtest
		if result == nil {
			return "", false
		}
		icon := "📈"
		if result.NetProfit < 0 {
			icon = "📉"
		}
		fmt.Fprintf(&b, "%s <b>Бэктест</b> %s\n\n", icon, html.EscapeString(event.InstrumentID))
		fmt.Fprintf(&b, "Прибыль: %.2f ₽\n", result.NetProfit)
		fmt.Fprintf(&b, "Сделок: %d", result.TradeCount)
		if event.Detail != "" {
			fmt.Fprintf(&b, "\n\n<i>%s</i>", html.EscapeString(event.Detail))
		}

	default:
		return "", false
	}

	return b.String(), true
}
