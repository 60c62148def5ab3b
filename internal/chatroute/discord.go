package chatroute

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DiscordConfig holds the webhook used to post into one Discord channel.
// routeID is unused for Discord (a webhook is already channel-bound); it's
// accepted for interface symmetry with SlackRoute and ignored.
type DiscordConfig struct {
	WebhookURL string `json:"webhook_url"`
	Username   string `json:"username,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
}

// DiscordRoute sends, edits, and deletes webhook messages. A plain webhook
// POST is fire-and-forget, so edit/delete addressability requires posting
// with "?wait=true" to get the created message back and recording its id,
// matching the shape of Discord's webhook-message-management endpoints
// rather than the teacher's notify-only webhook call.
type DiscordRoute struct {
	config DiscordConfig
	client *http.Client
}

// NewDiscordRoute creates a DiscordRoute.
func NewDiscordRoute(config DiscordConfig) *DiscordRoute {
	return &DiscordRoute{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type discordMessage struct {
	ID string `json:"id"`
}

func (d *DiscordRoute) payload(text string) map[string]interface{} {
	payload := map[string]interface{}{"content": text}
	if d.config.Username != "" {
		payload["username"] = d.config.Username
	}
	if d.config.AvatarURL != "" {
		payload["avatar_url"] = d.config.AvatarURL
	}
	return payload
}

func (d *DiscordRoute) do(method, url string, payload map[string]interface{}) (*http.Response, error) {
	if d.config.WebhookURL == "" {
		return nil, fmt.Errorf("discord webhook not configured")
	}

	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal discord payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discord %s request failed: %w", method, err)
	}
	return resp, nil
}

// SendMessage posts text to the webhook's channel and returns the created
// message's id.
func (d *DiscordRoute) SendMessage(routeID, text string) (string, error) {
	resp, err := d.do(http.MethodPost, d.config.WebhookURL+"?wait=true", d.payload(text))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discord webhook post returned status %d", resp.StatusCode)
	}
	var msg discordMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", fmt.Errorf("failed to decode discord message: %w", err)
	}
	return msg.ID, nil
}

// EditMessage replaces the content of a previously sent webhook message.
func (d *DiscordRoute) EditMessage(routeID, msgID, text string) error {
	resp, err := d.do(http.MethodPatch, d.config.WebhookURL+"/messages/"+msgID, d.payload(text))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discord webhook edit returned status %d", resp.StatusCode)
	}
	return nil
}

// SendTyping is a no-op: Discord webhooks have no typing-indicator endpoint
// (only bot-token gateway connections do).
func (d *DiscordRoute) SendTyping(routeID string) error {
	return nil
}

// DeleteMessage removes a previously sent webhook message.
func (d *DiscordRoute) DeleteMessage(routeID, msgID string) error {
	resp, err := d.do(http.MethodDelete, d.config.WebhookURL+"/messages/"+msgID, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord webhook delete returned status %d", resp.StatusCode)
	}
	return nil
}
