//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/bissquit/response-garden/internal/testutil"
)

// Response envelopes mirror the {"data": ...} wrapper the handlers emit.

type ingestEnvelope struct {
	Data struct {
		IncidentID string `json:"incident_id"`
		Status     string `json:"status"`
	} `json:"data"`
}

type incidentEnvelope struct {
	Data struct {
		ID       string         `json:"id"`
		Source   string         `json:"source"`
		Severity string         `json:"severity"`
		Status   string         `json:"status"`
		RawData  map[string]any `json:"raw_data"`
		Triage   *struct {
			Decision           string   `json:"decision"`
			Confidence         float64  `json:"confidence"`
			ThreatScore        int      `json:"threat_score"`
			ThreatLevel        string   `json:"threat_level"`
			Reasoning          string   `json:"reasoning"`
			RecommendedActions []string `json:"recommended_actions"`
		} `json:"triage"`
	} `json:"data"`
}

type workflowStep struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

type workflowEnvelope struct {
	Data struct {
		IncidentID     string         `json:"incident_id"`
		Strategy       string         `json:"strategy"`
		Status         string         `json:"status"`
		ActionsPlanned []string       `json:"actions_planned"`
		ActionsTaken   []workflowStep `json:"actions_taken"`
		TaskHandle     string         `json:"task_handle"`
		ErrorMessage   string         `json:"error_message"`
	} `json:"data"`
}

type timelineEnvelope struct {
	Data struct {
		IncidentID  string `json:"incident_id"`
		ThreatScore *int   `json:"threat_score"`
		ThreatLevel string `json:"threat_level"`
		Decision    string `json:"decision"`
		Events      []struct {
			EventType string `json:"event_type"`
		} `json:"events"`
	} `json:"data"`
}

// ingestIncident posts a raw alert and returns the assigned incident id.
func ingestIncident(t *testing.T, rawData map[string]any) string {
	t.Helper()

	resp, err := testClient.POST("/api/v1/incidents", map[string]any{
		"raw_data": rawData,
	})
	if err != nil {
		t.Fatalf("ingest incident: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ingest incident: status=%d body=%s", resp.StatusCode, testutil.ReadBody(t, resp))
	}

	var envelope ingestEnvelope
	testutil.DecodeJSON(t, resp, &envelope)
	if envelope.Data.IncidentID == "" {
		t.Fatal("ingest incident: empty incident id")
	}
	return envelope.Data.IncidentID
}

// waitForWorkflowDone polls the workflow status endpoint until the workflow
// reaches a terminal state. The endpoint 404s until triage completes and the
// orchestrator has created the workflow.
func waitForWorkflowDone(t *testing.T, incidentID string) workflowEnvelope {
	t.Helper()

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := testClient.GET("/api/v1/workflows/" + incidentID + "/status")
		if err != nil {
			t.Fatalf("get workflow status: %v", err)
		}
		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get workflow status: status=%d body=%s", resp.StatusCode, testutil.ReadBody(t, resp))
		}

		var envelope workflowEnvelope
		testutil.DecodeJSON(t, resp, &envelope)
		if envelope.Data.Status == "completed" || envelope.Data.Status == "error" {
			return envelope
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("workflow for incident %s did not finish in time", incidentID)
	return workflowEnvelope{}
}

// getIncident fetches an incident and decodes the envelope.
func getIncident(t *testing.T, incidentID string) incidentEnvelope {
	t.Helper()

	resp, err := testClient.GET("/api/v1/incidents/" + incidentID)
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get incident: status=%d body=%s", resp.StatusCode, testutil.ReadBody(t, resp))
	}

	var envelope incidentEnvelope
	testutil.DecodeJSON(t, resp, &envelope)
	return envelope
}
