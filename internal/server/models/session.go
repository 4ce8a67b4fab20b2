package models

import "time"

// Origin classifies a bearer credential: a browser session or a named
// programmatic API key.
type Origin string

const (
	OriginWebapp Origin = "WEBAPP"
	OriginAPI    Origin = "API"
)

// Session is a bearer credential row. Token is 64 hex chars (32 random
// bytes), globally unique, and observable in plaintext only at creation.
type Session struct {
	SID    int64
	UID    int64
	Token  string
	Origin Origin

	// WEBAPP fields.
	Remember bool
	LastAct  *time.Time
	Browser  *string
	OS       *string
	Device   *string

	// API fields. Description is unique per (uid) among API keys.
	Description *string
}

// Auth identifies the caller behind a validated bearer token.
type Auth struct {
	UID    int64
	SID    int64
	Origin Origin
}
