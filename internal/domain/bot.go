// Package domain contains entity without logic, just meta-data
package domain

// BotID identifies a producer. It is self-declared by the remote peer on its
// first audio frame and never validated. Empty means absent.
type BotID string

// BotInfo is a read-only view of one bot for APIs.
type BotInfo struct {
	ID          BotID `json:"botId"`
	Online      bool  `json:"online"`
	Subscribers int   `json:"subscribers"`
}
