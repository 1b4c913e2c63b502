package training

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PlottingService is a client for the optional sidecar application that
// renders PlotData into interactive charts. The client starts disabled so a
// training run never blocks on a sidecar that was not started.
type PlottingService struct {
	baseURL    string
	httpClient *http.Client
	enabled    bool
	retries    int
	retryDelay time.Duration
}

// PlottingServiceConfig configures the sidecar client.
type PlottingServiceConfig struct {
	BaseURL       string        `json:"base_url"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// PlottingResponse is the sidecar's reply to a plot submission.
type PlottingResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	PlotURL   string `json:"plot_url,omitempty"`
	ViewURL   string `json:"view_url,omitempty"`
	PlotID    string `json:"plot_id,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// DefaultPlottingServiceConfig targets a sidecar on localhost:8080.
func DefaultPlottingServiceConfig() PlottingServiceConfig {
	return PlottingServiceConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// NewPlottingService creates a sidecar client. Call Enable before sending.
func NewPlottingService(config PlottingServiceConfig) *PlottingService {
	return &PlottingService{
		baseURL:    config.BaseURL,
		httpClient: &http.Client{Timeout: config.Timeout},
		retries:    config.RetryAttempts,
		retryDelay: config.RetryDelay,
	}
}

// Enable turns on plot submission.
func (ps *PlottingService) Enable() { ps.enabled = true }

// Disable turns off plot submission.
func (ps *PlottingService) Disable() { ps.enabled = false }

// IsEnabled reports whether plots will be sent.
func (ps *PlottingService) IsEnabled() bool { return ps.enabled }

var disabledResponse = PlottingResponse{Message: "Plotting service is disabled"}

// SendPlotData posts one plot to the sidecar. A disabled client succeeds
// without making any request.
func (ps *PlottingService) SendPlotData(plotData PlotData) (*PlottingResponse, error) {
	if !ps.enabled {
		resp := disabledResponse
		return &resp, nil
	}

	body, err := json.Marshal(plotData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plot data: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, ps.baseURL+"/api/plot", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "go-tpp-training")

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	var plotResponse PlottingResponse
	if err := json.NewDecoder(resp.Body).Decode(&plotResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &plotResponse, fmt.Errorf("HTTP request failed with status %d: %s",
			resp.StatusCode, plotResponse.Message)
	}
	return &plotResponse, nil
}

// SendPlotDataWithRetry retries SendPlotData on failure, sleeping between
// attempts. Useful right after run start, when the sidecar may still be
// coming up.
func (ps *PlottingService) SendPlotDataWithRetry(plotData PlotData) (*PlottingResponse, error) {
	if !ps.enabled {
		resp := disabledResponse
		return &resp, nil
	}

	attempts := ps.retries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(ps.retryDelay)
		}
		resp, err := ps.SendPlotData(plotData)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("plotting failed after %d attempts: %w", attempts, lastErr)
}

// CheckHealth verifies the sidecar is reachable and healthy.
func (ps *PlottingService) CheckHealth() error {
	resp, err := ps.httpClient.Get(ps.baseURL + "/api/health")
	if err != nil {
		return fmt.Errorf("plotting service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("plotting service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
