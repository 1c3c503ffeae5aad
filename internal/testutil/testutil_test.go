package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/SleepyStorybook/internal/store"
)

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{"matching status codes", 200, 200, false},
		{"different status codes", 200, 404, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")
			if tt.shouldFail != mockT.failed {
				t.Errorf("expected failed=%v, got %v (%s)", tt.shouldFail, mockT.failed, mockT.errorMsg)
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	tests := []struct {
		name           string
		jsonBody       string
		expectedStatus string
		shouldFail     bool
	}{
		{"valid JSON with matching status", `{"status":"ok","result":"test"}`, "ok", false},
		{"valid JSON with different status", `{"status":"error","message":"test"}`, "ok", true},
		{"invalid JSON", `{"status":}`, "ok", true},
		{"missing status field", `{"result":"test"}`, "ok", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			rr := httptest.NewRecorder()
			rr.Body.WriteString(tt.jsonBody)

			response := AssertJSONResponse(mockT, rr, tt.expectedStatus)

			if tt.shouldFail != mockT.failed {
				t.Errorf("expected failed=%v, got %v (%s)", tt.shouldFail, mockT.failed, mockT.errorMsg)
			}
			if !tt.shouldFail && response == nil {
				t.Error("expected response map to be returned")
			}
		})
	}
}

func TestDecodeResult(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Body.WriteString(`{"status":"ok","result":{"title":"The Sleepy Moon"}}`)
	var got struct {
		Title string `json:"title"`
	}
	DecodeResult(t, rr, &got)
	if got.Title != "The Sleepy Moon" {
		t.Errorf("expected title to be decoded, got %q", got.Title)
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		body   interface{}
	}{
		{"GET request with no body", http.MethodGet, "/api/stories", nil},
		{"POST request with JSON body", http.MethodPost, "/api/chat", map[string]string{"message": "hello"}},
		{"POST request with struct body", http.MethodPost, "/api/generate-story", SampleStory("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateHTTPRequest(t, tt.method, tt.url, tt.body)
			if req.Method != tt.method {
				t.Errorf("expected method %s, got %s", tt.method, req.Method)
			}
			if req.URL.Path != tt.url {
				t.Errorf("expected URL %s, got %s", tt.url, req.URL.Path)
			}
			if req.Header.Get("Content-Type") != "application/json" {
				t.Error("expected JSON content type")
			}
		})
	}
}

func TestCreateJSONRequest(t *testing.T) {
	req := CreateJSONRequest(t, http.MethodPost, "/api/tts", `{"text":"hi"}`)
	if req.Method != http.MethodPost || req.URL.Path != "/api/tts" {
		t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
	}
}

func TestSeedStoriesAndCount(t *testing.T) {
	st := store.NewInMemoryStore()
	seeded := SeedStories(t, st, "session-1", 3)
	if len(seeded) != 3 {
		t.Fatalf("expected 3 seeded stories, got %d", len(seeded))
	}
	for _, s := range seeded {
		if s.ID == "" {
			t.Error("seeded story should have an id")
		}
	}
	AssertStoryCount(t, st, "session-1", 3, "seeded session")
	AssertStoryCount(t, st, "other", 0, "other session")

	mockT := &mockTestingT{}
	AssertStoryCount(mockT, st, "session-1", 2, "wrong count")
	if !mockT.failed {
		t.Error("expected wrong count to fail")
	}
}

func TestMustJSONRoundTrip(t *testing.T) {
	var target map[string]interface{}
	MustUnmarshalJSON(t, MustMarshalJSON(t, map[string]int{"number": 123}), &target)
	if target["number"].(float64) != 123 {
		t.Errorf("expected number to be 123, got %v", target["number"])
	}
}

// mockTestingT records failures instead of failing the enclosing test.
type mockTestingT struct {
	failed   bool
	errorMsg string
}

func (m *mockTestingT) Helper() {}

func (m *mockTestingT) Errorf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Fatalf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}
