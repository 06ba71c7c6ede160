package triage

import (
	"context"
	"fmt"

	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/pkg/ctxlog"
)

// RepeatedSourceThreshold is how many observations of the same source within
// the tracker window count as a detection signal of their own.
const RepeatedSourceThreshold = 5

// SourceTracker counts repeated observations of the same attack source.
// Satisfied by the redis-backed quarantine.Tracker.
type SourceTracker interface {
	Observe(ctx context.Context, source string) (int64, error)
}

// collectSignals builds the signal bundle for an incident from the evidence
// embedded in the raw alert plus external reputation lookups.
func (s *Service) collectSignals(ctx context.Context, incident *domain.Incident) domain.SignalBundle {
	bundle := domain.SignalBundle{
		RuleMatches: ruleMatchesFromRaw(incident.RawData),
		ScanHits:    scanHitsFromRaw(incident.RawData),
	}

	log := ctxlog.FromContext(ctx)

	if ip := incident.SourceIP(); ip != "" && s.tracker != nil {
		count, err := s.tracker.Observe(ctx, ip)
		if err != nil {
			log.Warn("source tracking unavailable", "ip", ip, "error", err)
		} else if count >= RepeatedSourceThreshold {
			bundle.RuleMatches = append(bundle.RuleMatches, domain.RuleMatch{
				RuleID:      "repeated-source-activity",
				Title:       "Repeated activity from the same source",
				Description: fmt.Sprintf("%d hits from %s within the tracking window", count, ip),
			})
		}
	}

	for _, subject := range lookupSubjects(incident) {
		for _, client := range s.reputation {
			signal, err := client.Lookup(ctx, subject)
			if err != nil {
				log.Warn("reputation provider unavailable",
					"provider", client.Provider(),
					"subject", subject,
					"error", err,
				)
				signal = domain.ReputationSignal{
					Provider: client.Provider(),
					Subject:  subject,
					Verdict:  domain.ReputationUnavailable,
				}
			}
			bundle.Reputation = append(bundle.Reputation, signal)
		}
	}

	return bundle
}

func lookupSubjects(incident *domain.Incident) []string {
	var subjects []string
	if ip := incident.SourceIP(); ip != "" {
		subjects = append(subjects, ip)
	}
	if hash := incident.FileHash(); hash != "" {
		subjects = append(subjects, hash)
	}
	return subjects
}

func ruleMatchesFromRaw(raw map[string]any) []domain.RuleMatch {
	items, ok := raw["rule_matches"].([]any)
	if !ok {
		return nil
	}

	var matches []domain.RuleMatch
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		match := domain.RuleMatch{
			RuleID:      stringField(fields, "rule_id"),
			Title:       stringField(fields, "title"),
			Description: stringField(fields, "description"),
		}
		if match.RuleID == "" && match.Title == "" {
			continue
		}
		matches = append(matches, match)
	}
	return matches
}

func scanHitsFromRaw(raw map[string]any) []domain.ScanHit {
	items, ok := raw["scan_hits"].([]any)
	if !ok {
		return nil
	}

	var hits []domain.ScanHit
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		hit := domain.ScanHit{
			Rule:     stringField(fields, "rule"),
			Severity: stringField(fields, "severity"),
			Target:   stringField(fields, "target"),
		}
		if hit.Rule == "" {
			continue
		}
		hits = append(hits, hit)
	}
	return hits
}

func stringField(fields map[string]any, key string) string {
	v, _ := fields[key].(string)
	return v
}
