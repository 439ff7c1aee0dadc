package planboardsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsBearerAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/projects/p1/tasks", r.URL.Path)
		assert.Equal(t, "TODO", r.URL.Query().Get("status"))
		assert.Equal(t, "backend", r.URL.Query().Get("label"))
		json.NewEncoder(w).Encode([]map[string]any{{"id": "t1", "projectId": "p1", "title": "Ship", "status": "TODO", "labels": []string{"backend"}}})
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1/", "tok")
	tasks, err := c.ListTasks(context.Background(), "p1", TaskFilters{Status: "TODO", Label: "backend"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Ship", tasks[0].Title)
	assert.Equal(t, []string{"backend"}, tasks[0].Labels)
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Sprint 2", body["name"])
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"sprint_overlap","message":"sprint dates overlap","details":{"overlappingSprint":{"id":"s1"}}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	_, err := c.CreateSprint(context.Background(), "p1", "Sprint 2", start, start.AddDate(0, 0, 14))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "sprint_overlap", apiErr.Code)
	overlapping, ok := apiErr.Details["overlappingSprint"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "s1", overlapping["id"])
}

func TestClientPermanentDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "true", r.URL.Query().Get("permanent"))
		w.Write([]byte(`{"task":{"id":"t1"},"permanent":true,"deletedSubtasksCount":2}`))
	}))
	defer srv.Close()

	n, err := New(srv.URL, "tok").DeleteTask(context.Background(), "t1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
