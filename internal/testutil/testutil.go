// Package testutil provides common test utilities and helpers for SleepyStorybook tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
	"github.com/BTreeMap/SleepyStorybook/internal/store"
)

// TestingT is the subset of testing.TB used by the helpers.
type TestingT interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TestingT, expected, actual int, label string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", label, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t TestingT, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}
	status, ok := response["status"].(string)
	if !ok {
		t.Errorf("response missing or invalid 'status' field")
		return response
	}
	if status != expectedStatus {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}

// DecodeResult decodes the "result" field of an API response into target.
func DecodeResult(t TestingT, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return
	}
	if err := json.Unmarshal(envelope.Result, target); err != nil {
		t.Fatalf("failed to decode result %s: %v", envelope.Result, err)
	}
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TestingT, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// CreateJSONRequest creates an HTTP request with a raw JSON body.
func CreateJSONRequest(t TestingT, method, url, jsonBody string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(jsonBody))
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// SampleStory returns a finished story with plausible scores.
func SampleStory(title string) models.FinalStory {
	content := "Luna the owl watched the stars.\n\nShe helped a lost firefly home.\n\nThen everyone slept."
	return models.FinalStory{
		Title:              title,
		Content:            content,
		Prompt:             "an owl who helps a firefly",
		LengthClass:        models.LengthShort,
		Iterations:         1,
		Scores:             models.QualityScore{Clarity: 9, MoralValue: 9, AgeAppropriateness: 10, Overall: 9, Approved: true, Verdict: true},
		ParagraphCount:     3,
		ExpectedParagraphs: 3,
		StructureOK:        true,
		WordCount:          len(strings.Fields(content)),
	}
}

// SeedStories saves n sample stories for sessionID and returns them in save order.
func SeedStories(t TestingT, st store.Store, sessionID string, n int) []models.StoredStory {
	t.Helper()
	seeded := make([]models.StoredStory, 0, n)
	for i := 0; i < n; i++ {
		saved, err := st.SaveStory(context.Background(), models.StoredStory{
			SessionID:  sessionID,
			FinalStory: SampleStory(fmt.Sprintf("Story %d", i+1)),
		})
		if err != nil {
			t.Fatalf("failed to seed story: %v", err)
			return seeded
		}
		seeded = append(seeded, saved)
	}
	return seeded
}

// AssertStoryCount validates the number of stories stored for a session.
func AssertStoryCount(t TestingT, st store.Store, sessionID string, expected int, label string) {
	t.Helper()
	stories, err := st.ListStories(context.Background(), sessionID, 100)
	if err != nil {
		t.Fatalf("%s: failed to list stories: %v", label, err)
		return
	}
	if len(stories) != expected {
		t.Errorf("%s: expected %d stories, got %d", label, expected, len(stories))
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TestingT, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TestingT, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
