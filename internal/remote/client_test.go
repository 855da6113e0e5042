package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timesync-agent/config"
	"timesync-agent/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(&config.RemoteConfig{
		BaseURL:         server.URL + "/",
		APIKey:          "anon-key",
		AccessToken:     "user-jwt",
		Timeout:         5 * time.Second,
		RateLimitPerSec: 100,
		RateLimitBurst:  10,
	})
}

func TestStartTimeSegment_SendsRPC(t *testing.T) {
	var gotPath, gotKey, gotAuth string
	var gotBody map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"seg-1","employee_id":"e1","project_id":"P1","started_at":"2024-01-01T09:00:00Z","segment_type":"work","status":"active"}`))
	})

	desc := "framing"
	seg, err := c.StartTimeSegment(context.Background(), StartRequest{
		ProjectID:   "P1",
		SegmentType: model.SegmentWork,
		Description: &desc,
	})
	require.NoError(t, err)

	assert.Equal(t, "/rest/v1/rpc/rpc_start_time_segment", gotPath)
	assert.Equal(t, "anon-key", gotKey)
	assert.Equal(t, "Bearer user-jwt", gotAuth)
	assert.Equal(t, "P1", gotBody["p_project_id"])
	assert.Equal(t, "work", gotBody["p_segment_type"])
	assert.Equal(t, "framing", gotBody["p_description"])
	assert.Equal(t, "seg-1", seg.ID)
	assert.True(t, seg.Open())
}

func TestStopTimeSegment_AcceptsArrayResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/rpc_stop_time_segment", r.URL.Path)
		w.Write([]byte(`[{"id":"seg-1","started_at":"2024-01-01T09:00:00Z","ended_at":"2024-01-01T10:00:00Z","status":"completed"}]`))
	})

	seg, err := c.StopTimeSegment(context.Background(), StopRequest{SegmentID: "seg-1"})
	require.NoError(t, err)
	assert.Equal(t, "seg-1", seg.ID)
	assert.False(t, seg.Open())
}

func TestGetActiveTimeSegment(t *testing.T) {
	testCases := []struct {
		name       string
		body       string
		wantActive bool
		wantID     string
	}{
		{name: "open segment", body: `{"active":true,"segment":{"id":"seg-9","segment_type":"work","started_at":"2024-01-01T09:00:00Z","current_duration_minutes":12}}`, wantActive: true, wantID: "seg-9"},
		{name: "nothing open", body: `{"active":false}`},
		{name: "null body", body: `null`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			})

			status, err := c.GetActiveTimeSegment(context.Background(), "e1")
			require.NoError(t, err)
			assert.Equal(t, tc.wantActive, status.Active)
			if tc.wantID != "" {
				require.NotNil(t, status.Segment)
				assert.Equal(t, tc.wantID, status.Segment.ID)
			}
		})
	}
}

func TestRPC_ErrorClassification(t *testing.T) {
	testCases := []struct {
		name          string
		status        int
		body          string
		permanent     bool
		alreadyActive bool
	}{
		{name: "validation rejection", status: http.StatusBadRequest, body: `{"code":"P0001","message":"project not found"}`, permanent: true},
		{name: "already active", status: http.StatusBadRequest, body: `{"code":"P0001","message":"A time segment is already active"}`, permanent: true, alreadyActive: true},
		{name: "conflict", status: http.StatusConflict, body: `{"message":"conflict"}`, permanent: true, alreadyActive: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: ``},
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			_, err := c.StartTimeSegment(context.Background(), StartRequest{ProjectID: "P1"})

			var rerr *Error
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, tc.status, rerr.StatusCode)
			assert.NotEmpty(t, rerr.Message)
			assert.Equal(t, tc.permanent, IsPermanent(err))
			assert.Equal(t, tc.alreadyActive, IsAlreadyActive(err))
		})
	}
}

func TestRPC_TransportErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()
	c := NewClient(&config.RemoteConfig{BaseURL: server.URL, Timeout: time.Second})

	_, err := c.StartTimeSegment(context.Background(), StartRequest{ProjectID: "P1"})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.Error(t, c.Ping(context.Background()))
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
	})
	assert.NoError(t, c.Ping(context.Background()))

	down := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.Error(t, down.Ping(context.Background()))
}
