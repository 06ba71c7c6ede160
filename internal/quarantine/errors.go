package quarantine

import "errors"

var (
	ErrRecordNotFound = errors.New("quarantine record not found")
	ErrMissingIP      = errors.New("verdict carries no source ip")
)
