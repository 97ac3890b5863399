package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"roblox-lms-backend/internal/models"
)

// SliceRequest asks the slicer to cut the session's master recording into per-room clips.
type SliceRequest struct {
	SessionID string             `json:"sessionId"`
	Bucket    string             `json:"bucket"`
	ObjectKey string             `json:"objectKey"`
	ObsT0     int64              `json:"obsT0"`
	Clips     []models.ClipRange `json:"clips"`
}

type SliceResponse struct {
	Clips []string `json:"clips"`
}

type SlicerClient struct {
	url    string
	client *http.Client
}

func NewSlicerClient(baseURL string, client *http.Client) *SlicerClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &SlicerClient{url: strings.TrimRight(baseURL, "/") + "/slice", client: client}
}

func (c *SlicerClient) Slice(ctx context.Context, sr SliceRequest) (*SliceResponse, error) {
	body, err := json.Marshal(sr)
	if err != nil {
		return nil, fmt.Errorf("encode slice request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build slice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slice request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("slicer returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}

	var out SliceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode slice response: %w", err)
	}
	return &out, nil
}
