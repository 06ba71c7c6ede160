//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/response-garden/internal/testutil"
)

// TestPipelineSemiAuto runs the full path: alert ingestion, triage scoring,
// a semi_auto containment workflow and the audit trail it leaves behind.
func TestPipelineSemiAuto(t *testing.T) {
	incidentID := ingestIncident(t, map[string]any{
		"source":      "edr",
		"severity":    "high",
		"source_ip":   "203.0.113.77",
		"attack_type": "ransomware",
		"rule_matches": []map[string]any{
			{"rule_id": "T1486", "title": "Data Encrypted for Impact"},
			{"rule_id": "T1490", "title": "Inhibit System Recovery"},
			{"rule_id": "T1083", "title": "File and Directory Discovery"},
		},
		"scan_hits": []map[string]any{
			{"rule": "Win32.Ransom.Generic", "severity": "high", "target": "C:\\payload.exe"},
			{"rule": "Ransom.Note.Dropper", "severity": "high", "target": "C:\\readme.txt"},
		},
	})

	workflow := waitForWorkflowDone(t, incidentID)
	require.Equal(t, "completed", workflow.Data.Status)
	require.Equal(t, "semi_auto", workflow.Data.Strategy)
	require.Equal(t, []string{"block_ip", "escalate", "finalize"}, workflow.Data.ActionsPlanned)
	require.NotEmpty(t, workflow.Data.TaskHandle)

	require.Len(t, workflow.Data.ActionsTaken, 3)
	for i, name := range []string{"block_ip", "escalate", "finalize"} {
		assert.Equal(t, name, workflow.Data.ActionsTaken[i].Name)
		assert.Equal(t, "completed", workflow.Data.ActionsTaken[i].Status)
	}

	incident := getIncident(t, incidentID)
	assert.Equal(t, "resolved", incident.Data.Status)
	assert.Equal(t, "edr", incident.Data.Source)
	require.NotNil(t, incident.Data.Triage)
	assert.Equal(t, "suspicious", incident.Data.Triage.Decision)
	assert.Equal(t, 50, incident.Data.Triage.ThreatScore)
	assert.Equal(t, "medium", incident.Data.Triage.ThreatLevel)
	assert.NotEmpty(t, incident.Data.Triage.Reasoning)

	// block_ip routed through the quarantine store. Medium threat gets a
	// bounded block, not a permanent one.
	var status string
	var expiresAt *time.Time
	err := testDB.QueryRow(context.Background(),
		`SELECT status, expires_at FROM quarantine_records WHERE ip_address = $1`,
		"203.0.113.77",
	).Scan(&status, &expiresAt)
	require.NoError(t, err)
	assert.Equal(t, "active", status)
	require.NotNil(t, expiresAt)
	assert.True(t, expiresAt.After(time.Now()))
}

// TestPipelineTimeline checks the reconstructed history after a workflow has
// run: ledger events plus the synthetic triage and response summaries, in
// timestamp order.
func TestPipelineTimeline(t *testing.T) {
	incidentID := ingestIncident(t, map[string]any{
		"source":    "ids",
		"source_ip": "198.51.100.9",
		"rule_matches": []map[string]any{
			{"rule_id": "T1059", "title": "Command and Scripting Interpreter"},
		},
	})
	waitForWorkflowDone(t, incidentID)

	resp, err := testClient.GET("/api/v1/incidents/" + incidentID + "/timeline")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var timeline timelineEnvelope
	testutil.DecodeJSON(t, resp, &timeline)

	assert.Equal(t, incidentID, timeline.Data.IncidentID)
	require.NotNil(t, timeline.Data.ThreatScore)
	assert.Equal(t, 10, *timeline.Data.ThreatScore)
	assert.Equal(t, "false_positive", timeline.Data.Decision)

	types := make(map[string]bool)
	for _, event := range timeline.Data.Events {
		types[event.EventType] = true
	}
	assert.True(t, types["incident.triaged"], "ledger triage entry missing")
	assert.True(t, types["triage_summary"], "triage summary missing")
	assert.True(t, types["response_summary"], "response summary missing")

	// The workflow leaves one tamper-evident ledger entry per step.
	var hashes []string
	rows, err := testDB.Query(context.Background(),
		`SELECT integrity_hash FROM audit_logs WHERE target = $1`, incidentID)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var hash string
		require.NoError(t, rows.Scan(&hash))
		hashes = append(hashes, hash)
	}
	require.NoError(t, rows.Err())
	require.NotEmpty(t, hashes)
	for _, hash := range hashes {
		assert.Len(t, hash, 64)
	}
}

// TestPipelineAnalystOnly verifies dismissed verdicts still run the minimal
// escalate-and-close chain rather than touching containment.
func TestPipelineAnalystOnly(t *testing.T) {
	incidentID := ingestIncident(t, map[string]any{
		"source":      "manual",
		"description": "user reported a suspicious email",
	})

	workflow := waitForWorkflowDone(t, incidentID)
	require.Equal(t, "completed", workflow.Data.Status)
	assert.Equal(t, "analyst_only", workflow.Data.Strategy)
	assert.Equal(t, []string{"escalate", "finalize"}, workflow.Data.ActionsPlanned)
	require.Len(t, workflow.Data.ActionsTaken, 2)

	incident := getIncident(t, incidentID)
	assert.Equal(t, "resolved", incident.Data.Status)
	require.NotNil(t, incident.Data.Triage)
	assert.Equal(t, "false_positive", incident.Data.Triage.Decision)
	assert.Equal(t, 0, incident.Data.Triage.ThreatScore)
}

func TestIngestRejectsEmptyAlert(t *testing.T) {
	resp, err := testClient.POST("/api/v1/incidents", map[string]any{
		"raw_data": map[string]any{},
	})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = testClient.POST("/api/v1/incidents", map[string]any{})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownIncidentLookups(t *testing.T) {
	for _, path := range []string{
		"/api/v1/incidents/00000000-0000-0000-0000-000000000000",
		"/api/v1/workflows/00000000-0000-0000-0000-000000000000/status",
		"/api/v1/incidents/00000000-0000-0000-0000-000000000000/timeline",
	} {
		resp, err := testClient.GET(path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		_ = resp.Body.Close()
	}
}

func TestHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := testClient.GET(path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		_ = resp.Body.Close()
	}
}
