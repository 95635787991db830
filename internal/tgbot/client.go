package tgbot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eventsnow-bot/internal/notify"
)

const captionLimit = 1024

// api is the part of tgbotapi.BotAPI the bot calls.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Client renders notify messages into Telegram calls.
type Client struct {
	api api
	bot *tgbotapi.BotAPI
}

func Dial(token string) (*Client, error) {
	b, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	b.Debug = false
	return &Client{api: b, bot: b}, nil
}

func (c *Client) Username() string {
	if c.bot == nil {
		return ""
	}
	return c.bot.Self.UserName
}

// Send delivers msg to chatID. A photo message whose text does not fit into a caption
// goes out as the photo followed by the text.
func (c *Client) Send(ctx context.Context, chatID int64, msg notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var markup *tgbotapi.InlineKeyboardMarkup
	if len(msg.Actions) > 0 {
		kb := keyboard(msg.Actions)
		markup = &kb
	}

	if msg.PhotoFileID != "" {
		p := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(msg.PhotoFileID))
		if len([]rune(msg.Text)) <= captionLimit {
			p.Caption = msg.Text
			p.ParseMode = tgbotapi.ModeMarkdown
			if markup != nil {
				p.ReplyMarkup = *markup
			}
			return c.send(ctx, p, func() tgbotapi.Chattable {
				p.ParseMode = ""
				return p
			})
		}
		if err := c.send(ctx, p, nil); err != nil {
			return err
		}
	}

	m := tgbotapi.NewMessage(chatID, msg.Text)
	m.ParseMode = tgbotapi.ModeMarkdown
	m.DisableWebPagePreview = true
	if markup != nil {
		m.ReplyMarkup = *markup
	}
	return c.send(ctx, m, func() tgbotapi.Chattable {
		m.ParseMode = ""
		return m
	})
}

func (c *Client) SendText(chatID int64, text string) error {
	return c.Send(context.Background(), chatID, notify.Message{Text: text})
}

// send runs the call off the caller's goroutine so ctx bounds it. When Telegram rejects
// the markup, plain (if set) is retried without parse mode.
func (c *Client) send(ctx context.Context, msg tgbotapi.Chattable, plain func() tgbotapi.Chattable) error {
	done := make(chan error, 1)
	go func() {
		_, err := c.api.Send(msg)
		if err != nil && plain != nil && strings.Contains(err.Error(), "can't parse entities") {
			_, err = c.api.Send(plain())
		}
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("telegram send: %w", ctx.Err())
	}
}

func keyboard(rows [][]notify.Action) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, r := range rows {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, a := range r {
			if a.URL != "" {
				row = append(row, tgbotapi.NewInlineKeyboardButtonURL(a.Label, a.URL))
			} else {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data))
			}
		}
		out = append(out, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

var _ notify.Sender = (*Client)(nil)
