package chat

// Key addresses one ordered conversation log. Both identifiers are opaque
// client-supplied strings; validating them is the auth layer's problem.
type Key struct {
	UserID         string
	ConversationID string
}

// Log is the append-only message sequence for one key.
type Log []Message

// Clone returns an independent copy so callers can't mutate stored history.
func (l Log) Clone() Log {
	if l == nil {
		return nil
	}
	copied := make(Log, len(l))
	copy(copied, l)
	return copied
}
