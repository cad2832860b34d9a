package polar

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 5*time.Second, slog.Default())
}

func TestFetchTransformsRecords(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"date":"2026-08-01","hrv_avg":52.5,"heart_rate_avg":48},
			{"date":"2026-08-02","hrv_avg":49.0}
		]}`))
	})

	samples, err := client.Fetch(context.Background(), EndpointRecharge, "tok")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].Metrics[MetricHRVRMSSD] != 52.5 || samples[0].Metrics[MetricRestingHR] != 48 {
		t.Errorf("unexpected first sample: %+v", samples[0])
	}
	if _, ok := samples[1].Metrics[MetricRestingHR]; ok {
		t.Error("absent field should be skipped, not defaulted")
	}
}

func TestFetchClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		status   int
		wantType ErrorType
	}{
		{http.StatusUnauthorized, ErrTokenInvalid},
		{http.StatusForbidden, ErrTokenRevoked},
		{http.StatusTooManyRequests, ErrRateLimited15m},
		{http.StatusInternalServerError, ErrAPIUnavailable},
		{http.StatusBadRequest, ErrAPIError},
	}

	for _, tt := range tests {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})

		_, err := client.Fetch(context.Background(), EndpointSleep, "tok")
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		var pe *Error
		if !errors.As(err, &pe) {
			t.Fatalf("status %d: expected classified error, got %T", tt.status, err)
		}
		if pe.Type != tt.wantType {
			t.Errorf("status %d: expected %s, got %s", tt.status, tt.wantType, pe.Type)
		}
	}
}

func TestFetchNoContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	samples, err := client.Fetch(context.Background(), EndpointSpO2, "tok")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if samples != nil {
		t.Errorf("expected no samples, got %v", samples)
	}
}

func TestFetchInvalidJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := client.Fetch(context.Background(), EndpointSleep, "tok")
	var pe *Error
	if !errors.As(err, &pe) || pe.Type != ErrInvalidResponse {
		t.Errorf("expected INVALID_RESPONSE, got %v", err)
	}
}

func TestFetchMalformedRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"sleep_score":80}]}`))
	})

	_, err := client.Fetch(context.Background(), EndpointSleep, "tok")
	var pe *Error
	if !errors.As(err, &pe) || pe.Type != ErrTransform {
		t.Errorf("expected TRANSFORM_ERROR for record without date, got %v", err)
	}
}

func TestEveryEndpointHasPathAndFields(t *testing.T) {
	for _, endpoint := range AllEndpoints {
		if _, ok := endpointPaths[endpoint]; !ok {
			t.Errorf("endpoint %s has no API path", endpoint)
		}
		if len(endpointFields[endpoint]) == 0 {
			t.Errorf("endpoint %s has no field mapping", endpoint)
		}
		if len(EndpointMetrics[endpoint]) == 0 {
			t.Errorf("endpoint %s produces no metrics", endpoint)
		}
	}
}
