package scorer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anatolykoptev/go_botgraph/internal/engine"
)

// Remote scores avatars through an external inference service. Used
// when a trained model replaces the local heuristic; the wire contract
// stays a plain JSON POST so the service can be swapped freely.
type Remote struct {
	baseURL       string
	serviceSecret string
	http          *http.Client
}

// NewRemote creates a client for the inference service.
func NewRemote(baseURL, serviceSecret string) *Remote {
	return &Remote{
		baseURL:       baseURL,
		serviceSecret: serviceSecret,
		http:          &http.Client{Timeout: 60 * time.Second},
	}
}

type scoreRequest struct {
	ImageB64 string `json:"image_b64"`
}

type scoreResponse struct {
	BotProbability float64            `json:"bot_probability"`
	Features       map[string]float64 `json:"features,omitempty"`
}

// Score posts the avatar bytes and returns the service's verdict.
func (r *Remote) Score(ctx context.Context, data []byte) (engine.AvatarMetrics, error) {
	payload, err := json.Marshal(scoreRequest{ImageB64: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return engine.AvatarMetrics{}, err
	}

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/score/avatar", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if r.serviceSecret != "" {
			req.Header.Set("Authorization", "Bearer "+r.serviceSecret)
		}
		return r.http.Do(req)
	})
	if err != nil {
		return engine.AvatarMetrics{}, fmt.Errorf("score avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return engine.AvatarMetrics{}, fmt.Errorf("score avatar: status %d: %s", resp.StatusCode, string(b))
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return engine.AvatarMetrics{}, fmt.Errorf("decode score response: %w", err)
	}
	return engine.AvatarMetrics{BotProbability: out.BotProbability, Features: out.Features}, nil
}
