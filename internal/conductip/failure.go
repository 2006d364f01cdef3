package conductip

import (
	"fmt"

	"conductbridge"
)

// Kind categorizes a failed request against the device. Every failure the
// client produces carries exactly one kind; callers branch on it instead of
// string-matching messages.
type Kind int

const (
	// KindConfigurationIncomplete means host, username or password is missing.
	// No network attempt is made for this kind.
	KindConfigurationIncomplete Kind = iota
	// KindAuthenticationFailed maps HTTP 401/403.
	KindAuthenticationFailed
	// KindEndpointNotFound maps HTTP 404.
	KindEndpointNotFound
	// KindAPIError covers any other non-2xx status; Code holds the numeric status.
	KindAPIError
	// KindTimeout means the request exceeded the client timeout.
	KindTimeout
	// KindConnectionFailure covers refused connections, name resolution and TLS
	// verification failures.
	KindConnectionFailure
	// KindResponseMalformed means the device answered 2xx but the body was not
	// the expected JSON shape.
	KindResponseMalformed
)

// Failure is the error type for every unsuccessful device request.
type Failure struct {
	Kind    Kind
	Code    int // HTTP status code when the device answered, 0 otherwise
	Message string
}

func (f *Failure) Error() string {
	if f.Code != 0 {
		return fmt.Sprintf("%s (HTTP %d)", f.Message, f.Code)
	}
	return f.Message
}

// State maps a failure kind onto the bridge-level status taxonomy.
func (f *Failure) State() conductbridge.StatusState {
	switch f.Kind {
	case KindConfigurationIncomplete:
		return conductbridge.StateBadConfig
	case KindTimeout, KindConnectionFailure:
		return conductbridge.StateConnectionFailure
	case KindResponseMalformed:
		return conductbridge.StateWarning
	default:
		return conductbridge.StateUnknownError
	}
}

// StatusSink receives the outcome of every request the client performs. A
// success clears any previously latched error; implementations are expected to
// deduplicate repeated identical reports so a sustained outage does not flood
// the log.
type StatusSink interface {
	ReportStatus(state conductbridge.StatusState, message string)
}

// NopSink discards status reports. Used in tests and one-off tooling.
type NopSink struct{}

func (NopSink) ReportStatus(conductbridge.StatusState, string) {}
