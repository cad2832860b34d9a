package polar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// endpointPaths maps each endpoint to its API path
var endpointPaths = map[Endpoint]string{
	EndpointSleep:              "/users/sleep",
	EndpointRecharge:           "/users/nightly-recharge",
	EndpointActivity:           "/users/daily-activity",
	EndpointExercises:          "/exercises",
	EndpointCardioLoad:         "/users/cardio-load",
	EndpointSleepwiseAlertness: "/users/sleepwise/alertness",
	EndpointSleepwiseBedtime:   "/users/sleepwise/circadian-bedtime",
	EndpointSpO2:               "/users/blood-oxygen",
	EndpointECG:                "/users/ecg",
	EndpointBodyTemperature:    "/users/body-temperature",
	EndpointSkinTemperature:    "/users/skin-temperature",
}

// endpointFields maps each endpoint's response fields to metric names.
// Fields absent from a record are simply skipped.
var endpointFields = map[Endpoint]map[string]string{
	EndpointSleep:              {"sleep_score": MetricSleepScore},
	EndpointRecharge:           {"hrv_avg": MetricHRVRMSSD, "heart_rate_avg": MetricRestingHR},
	EndpointActivity:           {"active_steps": MetricActivitySteps, "calories": MetricActivityCalories},
	EndpointExercises:          {"duration_minutes": MetricExerciseMinutes},
	EndpointCardioLoad:         {"cardio_load": MetricTrainingLoad, "cardio_load_ratio": MetricTrainingLoadRatio},
	EndpointSleepwiseAlertness: {"alertness_score": MetricAlertness},
	EndpointSleepwiseBedtime:   {"consistency_score": MetricBedtimeConsistency},
	EndpointSpO2:               {"blood_oxygen_percent": MetricSpO2},
	EndpointECG:                {"average_heart_rate": MetricECGHeartRate},
	EndpointBodyTemperature:    {"temperature_celsius": MetricBodyTemperature},
	EndpointSkinTemperature:    {"temperature_celsius": MetricSkinTemperature},
}

// Client fetches health data from the Polar AccessLink API
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an API client. timeout bounds each individual fetch.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		logger:     logger,
	}
}

// envelope is the common list response shape
type envelope struct {
	Data []map[string]json.RawMessage `json:"data"`
}

// Fetch performs one upstream call for one endpoint and reduces the response
// to samples in the shared metric vocabulary. Failures come back as *Error;
// no retries happen here, retry policy belongs to the scheduler.
func (c *Client) Fetch(ctx context.Context, endpoint Endpoint, accessToken string) ([]Sample, error) {
	path, ok := endpointPaths[endpoint]
	if !ok {
		return nil, NewError(ErrInternal, fmt.Sprintf("unknown endpoint %q", endpoint))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, WrapError(ErrInternal, "failed to create request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, WrapError(ErrAPITimeout, string(endpoint)+" request timed out", err)
		}
		return nil, WrapError(ErrAPIUnavailable, string(endpoint)+" request failed", err)
	}
	defer resp.Body.Close()

	c.logger.Info("polar_api_request",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, NewError(ErrTokenInvalid, string(endpoint)+" rejected token (401)")
	case resp.StatusCode == http.StatusForbidden:
		return nil, NewError(ErrTokenRevoked, string(endpoint)+" access revoked (403)")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{
			Type:       ErrRateLimited15m,
			Message:    string(endpoint) + " rate limited upstream (429)",
			RetryAfter: parseRetryAfter(resp.Header),
		}
	case resp.StatusCode >= 500:
		return nil, NewError(ErrAPIUnavailable, fmt.Sprintf("%s server error (%d)", endpoint, resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, NewError(ErrAPIError, fmt.Sprintf("%s failed with status %d: %s", endpoint, resp.StatusCode, body))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, WrapError(ErrInvalidResponse, string(endpoint)+" response is not valid JSON", err)
	}

	return transformRecords(endpoint, env.Data)
}

// transformRecords reduces raw records to samples keyed by metric name
func transformRecords(endpoint Endpoint, records []map[string]json.RawMessage) ([]Sample, error) {
	fields := endpointFields[endpoint]

	samples := make([]Sample, 0, len(records))
	for i, rec := range records {
		rawDate, ok := rec["date"]
		if !ok {
			return nil, NewError(ErrTransform, fmt.Sprintf("%s record %d has no date", endpoint, i))
		}
		var date string
		if err := json.Unmarshal(rawDate, &date); err != nil {
			return nil, WrapError(ErrTransform, fmt.Sprintf("%s record %d has a malformed date", endpoint, i), err)
		}

		s := Sample{Date: date, Metrics: make(map[string]float64)}
		for field, metric := range fields {
			raw, ok := rec[field]
			if !ok {
				continue
			}
			var v float64
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, WrapError(ErrTransform, fmt.Sprintf("%s record %d field %s is not numeric", endpoint, i, field), err)
			}
			s.Metrics[metric] = v
		}
		if len(s.Metrics) > 0 {
			samples = append(samples, s)
		}
	}
	return samples, nil
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(retryAfter, "%d", &seconds); err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
