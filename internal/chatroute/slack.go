package chatroute

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var slackAPIBase = "https://slack.com/api"

// SlackConfig holds the bot token used to authenticate against Slack's Web
// API. A plain incoming webhook can only post messages, never edit or
// delete them, so editing support requires a bot token with chat:write
// scope rather than the teacher's webhook-only notifier.
type SlackConfig struct {
	BotToken  string `json:"bot_token"`
	Username  string `json:"username,omitempty"`
	IconEmoji string `json:"icon_emoji,omitempty"`
}

// SlackRoute sends, edits, and deletes messages via the Slack Web API.
// routeID is a Slack channel id.
type SlackRoute struct {
	config SlackConfig
	client *http.Client
}

// NewSlackRoute creates a SlackRoute.
func NewSlackRoute(config SlackConfig) *SlackRoute {
	return &SlackRoute{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	TS    string `json:"ts"`
}

func (s *SlackRoute) call(method string, payload map[string]interface{}) (slackResponse, error) {
	var out slackResponse
	if s.config.BotToken == "" {
		return out, fmt.Errorf("slack bot token not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return out, fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, slackAPIBase+"/"+method, bytes.NewBuffer(body))
	if err != nil {
		return out, fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.config.BotToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return out, fmt.Errorf("slack %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode slack %s response: %w", method, err)
	}
	if !out.OK {
		return out, fmt.Errorf("slack %s failed: %s", method, out.Error)
	}
	return out, nil
}

// SendMessage posts text to a Slack channel, returning the message's ts as
// the platform message id (Slack addresses messages by channel+ts, not a
// standalone id).
func (s *SlackRoute) SendMessage(routeID, text string) (string, error) {
	payload := map[string]interface{}{"channel": routeID, "text": text}
	if s.config.Username != "" {
		payload["username"] = s.config.Username
	}
	if s.config.IconEmoji != "" {
		payload["icon_emoji"] = s.config.IconEmoji
	}
	resp, err := s.call("chat.postMessage", payload)
	if err != nil {
		return "", err
	}
	return resp.TS, nil
}

// EditMessage replaces the text of a previously posted message.
func (s *SlackRoute) EditMessage(routeID, msgID, text string) error {
	_, err := s.call("chat.update", map[string]interface{}{"channel": routeID, "ts": msgID, "text": text})
	return err
}

// SendTyping is a no-op: Slack's Web API has no typing-indicator endpoint
// (only the deprecated RTM protocol did).
func (s *SlackRoute) SendTyping(routeID string) error {
	return nil
}

// DeleteMessage removes a previously posted message.
func (s *SlackRoute) DeleteMessage(routeID, msgID string) error {
	_, err := s.call("chat.delete", map[string]interface{}{"channel": routeID, "ts": msgID})
	return err
}
