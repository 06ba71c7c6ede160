package quarantine_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/response-garden/internal/bus"
	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/quarantine"
	"github.com/bissquit/response-garden/internal/quarantine/memstore"
)

type published struct {
	topic   string
	payload any
}

type fakePublisher struct {
	events []published
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	p.events = append(p.events, published{topic: routingKey, payload: payload})
	return nil
}

func newService(t *testing.T) (*quarantine.Service, *memstore.Repository, *fakePublisher) {
	t.Helper()
	validator, err := bus.NewPayloadValidator()
	require.NoError(t, err)
	repo := memstore.NewRepository()
	pub := &fakePublisher{}
	return quarantine.NewService(repo, pub, validator), repo, pub
}

func verdictDelivery(t *testing.T, incidentID, sourceIP string, score int, level domain.ThreatLevel) bus.Delivery {
	t.Helper()
	body, err := json.Marshal(domain.TriageCompletedPayload{
		IncidentID: incidentID,
		SourceIP:   sourceIP,
		AttackType: "ransomware",
		TriageResult: domain.TriageResultWire{
			Decision:    domain.TriageDecisionConfirmedRansomware,
			Confidence:  float64(score) / 100,
			ThreatScore: score,
			ThreatLevel: level,
		},
	})
	require.NoError(t, err)
	return bus.Delivery{EventID: "ev-1", RoutingKey: domain.TopicTriageCompleted, Body: body}
}

func TestHandleTriageCompleted_AutoQuarantineBand(t *testing.T) {
	svc, repo, pub := newService(t)
	ctx := context.Background()

	d := verdictDelivery(t, "inc-1", "203.0.113.7", 92, domain.ThreatLevelCritical)
	require.NoError(t, svc.HandleTriageCompleted(ctx, d))

	record, err := repo.GetByIP(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, domain.QuarantineStatusActive, record.Status)
	assert.Nil(t, record.ExpiresAt, "critical blocks never expire")
	assert.Equal(t, "inc-1", record.RelatedIncidentID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.TopicAutoQuarantine, pub.events[0].topic)
	action := pub.events[0].payload.(domain.SecurityActionPayload)
	assert.Equal(t, "auto_quarantine", action.Action)
	assert.Equal(t, "203.0.113.7", action.IPAddress)
}

func TestHandleTriageCompleted_HighLevelGetsExpiry(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	d := verdictDelivery(t, "inc-2", "203.0.113.8", 85, domain.ThreatLevelHigh)
	require.NoError(t, svc.HandleTriageCompleted(ctx, d))

	record, err := repo.GetByIP(ctx, "203.0.113.8")
	require.NoError(t, err)
	require.NotNil(t, record.ExpiresAt)
	assert.InDelta(t, 7*24*time.Hour, record.ExpiresAt.Sub(record.QuarantinedAt), float64(time.Second))
}

func TestHandleTriageCompleted_ReviewBandOnlyRecommends(t *testing.T) {
	svc, repo, pub := newService(t)
	ctx := context.Background()

	d := verdictDelivery(t, "inc-3", "203.0.113.9", 70, domain.ThreatLevelHigh)
	require.NoError(t, svc.HandleTriageCompleted(ctx, d))

	_, err := repo.GetByIP(ctx, "203.0.113.9")
	assert.ErrorIs(t, err, quarantine.ErrRecordNotFound)

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.TopicQuarantineRecommended, pub.events[0].topic)
}

func TestHandleTriageCompleted_ScoreEightyIsReviewNotAuto(t *testing.T) {
	svc, repo, pub := newService(t)
	ctx := context.Background()

	d := verdictDelivery(t, "inc-4", "203.0.113.10", 80, domain.ThreatLevelCritical)
	require.NoError(t, svc.HandleTriageCompleted(ctx, d))

	_, err := repo.GetByIP(ctx, "203.0.113.10")
	assert.ErrorIs(t, err, quarantine.ErrRecordNotFound)
	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.TopicQuarantineRecommended, pub.events[0].topic)
}

func TestHandleTriageCompleted_LowBandRequiresAnalystDecision(t *testing.T) {
	svc, _, pub := newService(t)

	d := verdictDelivery(t, "inc-5", "203.0.113.11", 45, domain.ThreatLevelMedium)
	require.NoError(t, svc.HandleTriageCompleted(context.Background(), d))

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.TopicAnalystDecisionRequired, pub.events[0].topic)
}

func TestHandleTriageCompleted_AutoBandWithoutIPRoutesToAnalyst(t *testing.T) {
	svc, _, pub := newService(t)

	d := verdictDelivery(t, "inc-6", "", 95, domain.ThreatLevelCritical)
	require.NoError(t, svc.HandleTriageCompleted(context.Background(), d))

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.TopicAnalystDecisionRequired, pub.events[0].topic)
	action := pub.events[0].payload.(domain.SecurityActionPayload)
	assert.Equal(t, "no_source_ip", action.Action)
}

func TestHandleTriageCompleted_MalformedBodyDropped(t *testing.T) {
	svc, _, pub := newService(t)

	d := bus.Delivery{
		EventID:    "ev-bad",
		RoutingKey: domain.TopicTriageCompleted,
		Body:       []byte(`{"incident_id": "inc-7"}`),
	}
	err := svc.HandleTriageCompleted(context.Background(), d)
	assert.ErrorIs(t, err, bus.ErrMalformedEvent)
	assert.Empty(t, pub.events)
}

func TestQuarantine_UpsertRefreshesExistingBlock(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Quarantine(ctx, "203.0.113.20", "bruteforce", domain.ThreatLevelLow, "inc-8")
	require.NoError(t, err)
	_, err = svc.Quarantine(ctx, "203.0.113.20", "ransomware", domain.ThreatLevelCritical, "inc-9")
	require.NoError(t, err)

	record, err := repo.GetByIP(ctx, "203.0.113.20")
	require.NoError(t, err)
	assert.Equal(t, domain.ThreatLevelCritical, record.ThreatLevel)
	assert.Equal(t, "inc-9", record.RelatedIncidentID)
	assert.Nil(t, record.ExpiresAt)
}

func TestIsQuarantined(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	active, err := svc.IsQuarantined(ctx, "203.0.113.30")
	require.NoError(t, err)
	assert.False(t, active)

	_, err = svc.Quarantine(ctx, "203.0.113.30", "ransomware", domain.ThreatLevelHigh, "inc-10")
	require.NoError(t, err)

	active, err = svc.IsQuarantined(ctx, "203.0.113.30")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, svc.Release(ctx, "203.0.113.30"))
	active, err = svc.IsQuarantined(ctx, "203.0.113.30")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestExpireOverdue(t *testing.T) {
	validator, err := bus.NewPayloadValidator()
	require.NoError(t, err)
	repo := memstore.NewRepository()
	svc := quarantine.NewService(repo, &fakePublisher{}, validator)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Upsert(ctx, &domain.QuarantineRecord{
		IPAddress:     "203.0.113.40",
		ThreatLevel:   domain.ThreatLevelLow,
		QuarantinedAt: past.Add(-time.Hour),
		ExpiresAt:     &past,
		Status:        domain.QuarantineStatusActive,
	}))
	require.NoError(t, repo.Upsert(ctx, &domain.QuarantineRecord{
		IPAddress:     "203.0.113.41",
		ThreatLevel:   domain.ThreatLevelCritical,
		QuarantinedAt: past,
		Status:        domain.QuarantineStatusActive,
	}))

	expired, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	record, err := repo.GetByIP(ctx, "203.0.113.40")
	require.NoError(t, err)
	assert.Equal(t, domain.QuarantineStatusExpired, record.Status)

	permanent, err := repo.GetByIP(ctx, "203.0.113.41")
	require.NoError(t, err)
	assert.Equal(t, domain.QuarantineStatusActive, permanent.Status)
}
