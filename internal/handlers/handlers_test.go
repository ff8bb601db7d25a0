package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"phicontext/internal/jobs"
	"phicontext/internal/models"
	"phicontext/internal/services"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

type fakeCache struct {
	health       models.CacheHealth
	stats        models.CacheStatistics
	result       services.ReanalysisResult
	reanalyzeErr error
	reanalyzed   int
}

func (f *fakeCache) GetHealth() models.CacheHealth { return f.health }
func (f *fakeCache) GetStatistics() models.CacheStatistics { return f.stats }
func (f *fakeCache) ReanalyzeImportance(ctx context.Context) (services.ReanalysisResult, error) {
	f.reanalyzed++
	return f.result, f.reanalyzeErr
}

type fakeScheduler struct{ status []jobs.JobStatus }

func (f *fakeScheduler) GetStatus() []jobs.JobStatus { return f.status }

func setupTestApp(cache *fakeCache, scheduler JobStatusProvider) *fiber.App {
	app := fiber.New()
	NewContextCacheHandler(cache, scheduler).RegisterRoutes(app)
	return app
}

func decodeBody(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to parse response: %v (%s)", err, data)
	}
	return result
}

// TestHealthHandler tests the health check endpoint
func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name           string
		status         string
		issues         []string
		expectedStatus int
	}{
		{"healthy", "healthy", nil, 200},
		{"degraded still serves", "degraded", []string{"Hit rate 10.0% is below 50.0% over 10 lookups"}, 200},
		{"unhealthy", "unhealthy", []string{"a", "b", "c"}, 503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := &fakeCache{health: models.CacheHealth{
				Status:     tt.status,
				Issues:     tt.issues,
				Statistics: models.CacheStatistics{TotalEntries: 3, Capacity: 10},
				CheckedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			}}
			app := setupTestApp(cache, nil)

			resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
			if err != nil {
				t.Fatalf("Failed to send request: %v", err)
			}
			if resp.StatusCode != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, resp.StatusCode)
			}

			result := decodeBody(t, resp.Body)
			if result["status"] != tt.status {
				t.Errorf("Expected status '%s', got %v", tt.status, result["status"])
			}
			if result["entries"] != float64(3) {
				t.Errorf("Expected 3 entries, got %v", result["entries"])
			}
			if result["timestamp"] != "2026-01-02T03:04:05Z" {
				t.Errorf("Expected RFC3339 timestamp, got %v", result["timestamp"])
			}
		})
	}
}

func TestStatsHandler(t *testing.T) {
	cache := &fakeCache{stats: models.CacheStatistics{
		TotalEntries:    2,
		Capacity:        100,
		EntriesByType:   map[models.ContextType]int{models.ContextMedications: 2},
		ComplianceRatio: 1.0,
	}}
	app := setupTestApp(cache, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/context/stats", nil))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	result := decodeBody(t, resp.Body)
	if result["total_entries"] != float64(2) {
		t.Errorf("Expected total_entries 2, got %v", result["total_entries"])
	}
	byType, ok := result["entries_by_type"].(map[string]interface{})
	if !ok || byType["medications"] != float64(2) {
		t.Errorf("Expected 2 medications entries, got %v", result["entries_by_type"])
	}
}

func TestReanalyzeHandler(t *testing.T) {
	cache := &fakeCache{result: services.ReanalysisResult{
		Total:    5,
		Rescored: 4,
		Expired:  1,
		Duration: 25 * time.Millisecond,
	}}
	app := setupTestApp(cache, nil)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/context/reanalyze", nil))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if cache.reanalyzed != 1 {
		t.Errorf("Expected 1 reanalysis, got %d", cache.reanalyzed)
	}

	result := decodeBody(t, resp.Body)
	if result["rescored"] != float64(4) || result["expired"] != float64(1) {
		t.Errorf("Expected rescored=4 expired=1, got %v", result)
	}
	if result["duration_ms"] != float64(25) {
		t.Errorf("Expected duration_ms 25, got %v", result["duration_ms"])
	}

	// GET is not routed
	resp, err = app.Test(httptest.NewRequest("GET", "/api/context/reanalyze", nil))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	if resp.StatusCode != 405 {
		t.Errorf("Expected status 405 for GET, got %d", resp.StatusCode)
	}
}

func TestReanalyzeHandler_Error(t *testing.T) {
	cache := &fakeCache{reanalyzeErr: errors.New("interrupted")}
	app := setupTestApp(cache, nil)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/context/reanalyze", nil))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("Expected status 500, got %d", resp.StatusCode)
	}
}

func TestJobsHandler(t *testing.T) {
	next := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	scheduler := &fakeScheduler{status: []jobs.JobStatus{
		{Name: jobs.ContextReanalysisJobName, Interval: "1h0m0s", Running: true, NextRunTime: &next},
	}}
	app := setupTestApp(&fakeCache{}, scheduler)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/context/jobs", nil))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	result := decodeBody(t, resp.Body)
	list, ok := result["jobs"].([]interface{})
	if !ok || len(list) != 1 {
		t.Fatalf("Expected 1 job, got %v", result["jobs"])
	}
	job := list[0].(map[string]interface{})
	if job["name"] != "context-reanalysis" {
		t.Errorf("Expected context-reanalysis, got %v", job["name"])
	}

	app = setupTestApp(&fakeCache{}, nil)
	resp, err = app.Test(httptest.NewRequest("GET", "/api/context/jobs", nil))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	result = decodeBody(t, resp.Body)
	if list, ok := result["jobs"].([]interface{}); !ok || len(list) != 0 {
		t.Errorf("Expected empty job list without scheduler, got %v", result["jobs"])
	}
}
