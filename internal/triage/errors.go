package triage

import "errors"

var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrResultNotFound   = errors.New("triage result not found")
)
