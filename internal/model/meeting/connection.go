package meeting

// ConnectionState is the observable lifecycle of the live connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	// StateReconnecting follows an unexpected drop while an automatic reconnect is in progress.
	StateReconnecting ConnectionState = "reconnecting"
	// StateFailed means bootstrap failed or reconnect attempts were exhausted; callers may retry.
	StateFailed ConnectionState = "failed"
)

// Active reports whether the state may still transition to connected without caller action.
func (s ConnectionState) Active() bool {
	switch s {
	case StateConnecting, StateConnected, StateReconnecting:
		return true
	default:
		return false
	}
}
