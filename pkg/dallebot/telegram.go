package dallebot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type tgUser struct {
	ID int64 `json:"id"`
}

type tgChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type tgMessage struct {
	MessageID int64   `json:"message_id"`
	From      *tgUser `json:"from"`
	Chat      tgChat  `json:"chat"`
	Text      string  `json:"text"`
}

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

// telegramClient is a minimal client for the Telegram Bot API, covering only the methods the bot needs
type telegramClient struct {
	token   string
	baseURL string

	client *http.Client
}

func newTelegramClient(token string) *telegramClient {
	return &telegramClient{
		token:   token,
		baseURL: "https://api.telegram.org",

		// The timeout has to exceed the long polling timeout of getUpdates
		client: &http.Client{Timeout: 80 * time.Second},
	}
}

// call invokes a Bot API method with the passed params and unmarshals the response's result field into result, if non-nil
func (t *telegramClient) call(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	var envelope struct {
		Ok          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("couldn't decode response of telegram method %s - %v", method, err)
	}
	if !envelope.Ok {
		return fmt.Errorf("telegram method %s failed: %s", method, envelope.Description)
	}

	if result != nil {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}

// getUpdates long-polls for new updates, starting at the passed offset
func (t *telegramClient) getUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tgUpdate, error) {
	params := map[string]any{
		"offset":  offset,
		"timeout": int(timeout.Seconds()),
	}

	var updates []tgUpdate
	if err := t.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (t *telegramClient) sendMessage(ctx context.Context, chatID int64, text string) error {
	return t.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, nil)
}

func (t *telegramClient) sendPhoto(ctx context.Context, chatID int64, photoURL, caption string) error {
	return t.call(ctx, "sendPhoto", map[string]any{
		"chat_id": chatID,
		"photo":   photoURL,
		"caption": caption,
	}, nil)
}

func (t *telegramClient) sendChatAction(ctx context.Context, chatID int64, action string) error {
	return t.call(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  action,
	}, nil)
}
