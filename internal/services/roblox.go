package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const openCloudBaseURL = "https://apis.roblox.com"

// ErrOpenCloudDisabled is returned by Publish when no API key or universe is configured.
var ErrOpenCloudDisabled = errors.New("roblox open cloud messaging not configured")

// OpenCloudClient publishes to Roblox MessagingService topics so running game servers learn
// about the active session id.
type OpenCloudClient struct {
	baseURL    string
	apiKey     string
	universeID string
	client     *http.Client
}

func NewOpenCloudClient(apiKey, universeID string, client *http.Client) *OpenCloudClient {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &OpenCloudClient{
		baseURL:    openCloudBaseURL,
		apiKey:     apiKey,
		universeID: universeID,
		client:     client,
	}
}

func (c *OpenCloudClient) Publish(ctx context.Context, topic, message string) error {
	if c.apiKey == "" || c.universeID == "" {
		return ErrOpenCloudDisabled
	}

	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return fmt.Errorf("encode open cloud message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/messaging-service/v1/universes/%s/topics/%s",
		c.baseURL, url.PathEscape(c.universeID), url.PathEscape(topic))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build open cloud request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("open cloud publish: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("open cloud publish returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}
	return nil
}
