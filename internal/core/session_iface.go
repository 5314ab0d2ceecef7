package core

// SessionID is the opaque handle of one accepted connection.
// The registry keys on it instead of on the live connection object.
type SessionID string
