package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrRemote = errors.New("remote prediction failed")

type RemoteOptions struct {
	Timeout time.Duration
	Headers map[string]string
	Client  *http.Client
}

// Remote calls a TF-Serving style REST predict endpoint.
type Remote struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

type predictRequest struct {
	Instances [][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

func NewRemote(endpoint string, opts RemoteOptions) *Remote {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Remote{endpoint: endpoint, headers: opts.Headers, client: client}
}

func (r *Remote) Endpoint() string { return r.endpoint }

func (r *Remote) Predict(ctx context.Context, inputs [][]float64) ([][]float64, error) {
	body, err := json.Marshal(predictRequest{Instances: inputs})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRemote, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: %s: %s", ErrRemote, resp.Status, snippet(payload))
	}
	var decoded predictResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRemote, err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, decoded.Error)
	}
	return decoded.Predictions, nil
}

func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
