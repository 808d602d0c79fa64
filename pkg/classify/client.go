package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/campuscare/campuscare-api/pkg/config"
)

// Suggestion is the oracle's opinion on a newly reported issue.
// UrgencyScore is optional; a nil value means the oracle only
// suggested a priority.
type Suggestion struct {
	Priority     string `json:"priority"`
	UrgencyScore *int   `json:"urgencyScore,omitempty"`
}

// Client calls the external image-classification service. All
// failures are reported as errors; callers are expected to fall back
// to local classification.
type Client struct {
	cfg  config.ClassifierConfig
	http *http.Client
}

// NewClient builds a classifier client. Returns nil when the oracle
// is disabled so callers can treat absence and failure uniformly.
func NewClient(cfg config.ClassifierConfig) *Client {
	if !cfg.Enabled || cfg.BaseURL == "" {
		return nil
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type classifyRequest struct {
	Description string   `json:"description"`
	ImageURLs   []string `json:"imageUrls"`
}

// Classify submits the issue description and photo URLs and returns
// the oracle's suggestion.
func (c *Client) Classify(ctx context.Context, description string, imageURLs []string) (*Suggestion, error) {
	if c == nil {
		return nil, fmt.Errorf("classifier disabled")
	}

	payload, err := json.Marshal(classifyRequest{Description: description, ImageURLs: imageURLs})
	if err != nil {
		return nil, fmt.Errorf("encode classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/classify", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var suggestion Suggestion
	if err := json.NewDecoder(resp.Body).Decode(&suggestion); err != nil {
		return nil, fmt.Errorf("decode classify response: %w", err)
	}
	return &suggestion, nil
}
