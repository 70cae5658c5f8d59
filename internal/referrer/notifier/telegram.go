package notifier

import (
	"context"

	"github.com/SakuraBurst/rewardbot/internal/referrer/metrics"
	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers broadcast messages to clients through the bot API.
type Telegram struct {
	bot     sender
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewTelegram(token string, perSecond float64, logger *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "tgbotapi.NewBotAPI failed: ")
	}
	return newTelegram(bot, perSecond, logger), nil
}

func newTelegram(bot sender, perSecond float64, logger *zap.Logger) *Telegram {
	return &Telegram{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger.Named("notifier"),
	}
}

// Broadcast sends text to every chat and returns how many messages were delivered.
// Delivery is best effort: failed chats are logged and skipped.
func (t *Telegram) Broadcast(ctx context.Context, chatIDs []int64, text string) (int, error) {
	sent := 0
	for _, id := range chatIDs {
		if err := t.limiter.Wait(ctx); err != nil {
			return sent, errors.Wrap(err, "limiter.Wait failed: ")
		}
		msg := tgbotapi.NewMessage(id, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := t.bot.Send(msg); err != nil {
			metrics.BroadcastMessagesTotal.WithLabelValues("error").Inc()
			t.logger.Warn("bot.Send failed", zap.Int64("chat_id", id), zap.Error(err))
			continue
		}
		metrics.BroadcastMessagesTotal.WithLabelValues("ok").Inc()
		sent++
	}
	return sent, nil
}
