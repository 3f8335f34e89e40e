// Package telegram delivers notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/lpwatch/internal/logger"
	"github.com/rewired-gh/lpwatch/internal/models"
)

// ErrDelivery reports a message the Bot API did not accept.
var ErrDelivery = errors.New("telegram delivery failed")

// Sender sends one message. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Options configures message formatting and flood limits.
type Options struct {
	ParseMode           string
	GlobalRate          float64
	PrivateChatInterval time.Duration
	GroupChatPerMinute  int
}

// DefaultOptions matches the Bot API's documented limits.
func DefaultOptions() Options {
	return Options{
		GlobalRate:          30,
		PrivateChatInterval: time.Second,
		GroupChatPerMinute:  20,
	}
}

// StatusFunc renders the reply to /status.
type StatusFunc func() string

// Client handles Telegram notifications. All sends share one Throttle.
type Client struct {
	bot       *tgbotapi.BotAPI
	sender    Sender
	chatID    int64
	parseMode string
	throttle  *Throttle
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, opts Options) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c := NewClientWithSender(bot, chatIDInt, opts)
	c.bot = bot
	return c, nil
}

// NewClientWithSender creates a client over an arbitrary sender. Command
// handling is unavailable on such a client.
func NewClientWithSender(sender Sender, chatID int64, opts Options) *Client {
	def := DefaultOptions()
	if opts.GlobalRate <= 0 {
		opts.GlobalRate = def.GlobalRate
	}
	if opts.PrivateChatInterval <= 0 {
		opts.PrivateChatInterval = def.PrivateChatInterval
	}
	if opts.GroupChatPerMinute <= 0 {
		opts.GroupChatPerMinute = def.GroupChatPerMinute
	}
	return &Client{
		sender:    sender,
		chatID:    chatID,
		parseMode: opts.ParseMode,
		throttle:  NewThrottle(opts.GlobalRate, opts.PrivateChatInterval, opts.GroupChatPerMinute),
	}
}

// Dispatch waits for the throttle and sends msg once. There is no retry: a
// rejected message is reported as ErrDelivery and dropped.
func (c *Client) Dispatch(ctx context.Context, msg models.NotificationMessage) error {
	chatID := msg.ChatID
	if chatID == 0 {
		chatID = c.chatID
	}

	if err := c.throttle.Wait(ctx, chatID); err != nil {
		return fmt.Errorf("%w: chat %d: throttle: %v", ErrDelivery, chatID, err)
	}

	out := tgbotapi.NewMessage(chatID, msg.Text)
	out.ParseMode = c.parseMode
	if _, err := c.sender.Send(out); err != nil {
		return fmt.Errorf("%w: chat %d: %v", ErrDelivery, chatID, err)
	}
	return nil
}

// SendMessage sends text to the configured chat.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	return c.Dispatch(ctx, models.NotificationMessage{Text: text})
}

// SendMessageToChat sends text to chatID instead of the configured chat.
func (c *Client) SendMessageToChat(ctx context.Context, chatID int64, text string) error {
	return c.Dispatch(ctx, models.NotificationMessage{ChatID: chatID, Text: text})
}

// SendEvent formats and sends an event to the configured chat.
func (c *Client) SendEvent(ctx context.Context, event *models.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event %s: %w", event.ID, err)
	}
	return c.SendMessage(ctx, FormatEvent(event, c.parseMode))
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, status StatusFunc) {
	if c.bot == nil {
		logger.Warn("Telegram commands unavailable without a bot connection")
		return
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, update.Message.Chat.ID, update.Message.Command(), status)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, chatID int64, command string, status StatusFunc) {
	var reply string
	switch command {
	case "ping":
		reply = "Pong"
	case "status":
		if status == nil {
			return
		}
		reply = status()
	default:
		return
	}
	if err := c.sendPlain(ctx, chatID, reply); err != nil {
		logger.Warn("Failed to reply to /%s: %v", command, err)
	}
}

// sendPlain replies without the configured parse mode so command output
// never needs escaping.
func (c *Client) sendPlain(ctx context.Context, chatID int64, text string) error {
	if err := c.throttle.Wait(ctx, chatID); err != nil {
		return err
	}
	_, err := c.sender.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
