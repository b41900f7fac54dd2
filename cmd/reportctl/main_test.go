package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"financial-reporter/internal/reportclient"
	"financial-reporter/internal/reports"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	return out.String(), err
}

func TestGetPrintsReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/reports/r-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(reportclient.Report{
			ID:       "r-1",
			FileName: "q3.pdf",
			Status:   reports.StatusCompleted,
			Analysis: &reports.Analysis{Summary: "Solid quarter", KeyPoints: []string{"Revenue up"}},
		})
	}))
	defer srv.Close()

	out, err := runCmd(t, "--server", srv.URL, "get", "r-1")
	require.NoError(t, err)
	assert.Contains(t, out, "status:   completed")
	assert.Contains(t, out, "Solid quarter")
	assert.Contains(t, out, "- Revenue up")
}

func TestWaitPollsUntilTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := reports.StatusProcessing
		if calls.Add(1) > 1 {
			status = reports.StatusFailed
		}
		_ = json.NewEncoder(w).Encode(reportclient.Report{ID: "r-1", Status: status, Error: "boom"})
	}))
	defer srv.Close()

	out, err := runCmd(t, "--server", srv.URL, "--json", "wait", "r-1", "--interval", "5ms")
	require.NoError(t, err)
	var report reportclient.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, reports.StatusFailed, report.Status)
}

func TestAnalyzeRetriesWhileExtracting(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":{"code":"invalid_status","message":"report is processing"}}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"r-1","status":"processing"}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"--server", srv.URL, "analyze", "r-1", "--interval", "5ms"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "r-1 processing")
	assert.Equal(t, int32(2), calls.Load())
}
