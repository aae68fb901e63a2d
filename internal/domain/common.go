package domain

// ContractType identifies a binary-option contract variant on the broker API.
type ContractType string

const (
	Call       ContractType = "CALL"
	Put        ContractType = "PUT"
	DigitDiff  ContractType = "DIGITDIFF"
	DigitOver  ContractType = "DIGITOVER"
	DigitUnder ContractType = "DIGITUNDER"
	DigitEven  ContractType = "DIGITEVEN"
	DigitOdd   ContractType = "DIGITODD"
	NoTouch    ContractType = "NOTOUCH"
)

// Severity classifies a status message surfaced to the stats sink.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// ConnState is the transport connection state, owned by the connection
// manager. Sessions observe it but never mutate it directly.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnAuthorizing
	ConnReady
	ConnReconnecting
	ConnClosing
	ConnFailed
)

// String returns the string representation of the ConnState.
func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "DISCONNECTED"
	case ConnConnecting:
		return "CONNECTING"
	case ConnAuthorizing:
		return "AUTHORIZING"
	case ConnReady:
		return "READY"
	case ConnReconnecting:
		return "RECONNECTING"
	case ConnClosing:
		return "CLOSING"
	case ConnFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// SessionState is the lifecycle state of one trading session.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionStarting
	SessionRunning
	SessionStopping
)

// String returns the string representation of the SessionState.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "IDLE"
	case SessionStarting:
		return "STARTING"
	case SessionRunning:
		return "RUNNING"
	case SessionStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}
