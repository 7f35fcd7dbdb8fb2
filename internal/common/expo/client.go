// Package expo is a minimal client for the Expo push notification gateway.
// It covers the single endpoint the reminder pipeline uses: POST
// /--/api/v2/push/send with one message per request.
package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is Expo's production push gateway.
	DefaultBaseURL = "https://exp.host"

	sendPath = "/--/api/v2/push/send"

	// TicketErrorDeviceNotRegistered is the gateway's signal that the token
	// is permanently dead and must not be retried.
	TicketErrorDeviceNotRegistered = "DeviceNotRegistered"
)

// PushMessage is one notification addressed to one Expo push token.
type PushMessage struct {
	To    string            `json:"to"`
	Sound string            `json:"sound,omitempty"`
	Title string            `json:"title,omitempty"`
	Body  string            `json:"body,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// TicketDetails carries the gateway's machine-readable error classification.
type TicketDetails struct {
	Error string `json:"error,omitempty"`
}

// PushTicket is the gateway's per-message receipt.
type PushTicket struct {
	Status  string         `json:"status"` // "ok" or "error"
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details *TicketDetails `json:"details,omitempty"`
}

// Ok reports whether the gateway accepted the message.
func (t *PushTicket) Ok() bool {
	return t.Status == "ok"
}

// DeviceNotRegistered reports whether the gateway rejected the message
// because the device token is permanently unregistered.
func (t *PushTicket) DeviceNotRegistered() bool {
	return t.Details != nil && t.Details.Error == TicketErrorDeviceNotRegistered
}

type sendResponse struct {
	Data []PushTicket `json:"data"`
}

// Client talks to the Expo push gateway.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

func NewClient(baseURL, accessToken string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// SendPushNotification submits one message and returns its ticket. A non-nil
// error means the message never reached the gateway; a ticket with status
// "error" means the gateway accepted the request but rejected the message.
func (c *Client) SendPushNotification(ctx context.Context, msg PushMessage) (*PushTicket, error) {
	body, err := json.Marshal([]PushMessage{msg})
	if err != nil {
		return nil, fmt.Errorf("marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read push gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("push gateway returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode push gateway response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("push gateway returned no tickets")
	}

	return &parsed.Data[0], nil
}

// IsExpoPushToken reports whether token has the shape the gateway accepts.
// Mirrors the check the Expo SDKs apply before sending.
func IsExpoPushToken(token string) bool {
	if !strings.HasSuffix(token, "]") {
		return false
	}
	return strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")
}
