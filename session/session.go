// Package session holds per-browser chat state for the web UI: settings, the
// two chat transcripts, and the currently loaded medicine records with a
// searchable index over them. State lives for the session TTL and is
// discarded afterwards; nothing here is durable.
package session

import (
	"time"

	"github.com/xoity/medicinedb/models"
)

// Settings are the user-adjustable knobs from the UI settings panel.
type Settings struct {
	Provider string `json:"provider"` // gemini or ollama
	APIKey   string `json:"api_key"`
}

// Message is one chat transcript entry.
type Message struct {
	ID       string           `json:"id"`
	Role     string           `json:"role"` // user or assistant
	Content  string           `json:"content"`
	Medicine *models.Medicine `json:"medicine,omitempty"` // structured data attached to assistant replies
}

// Store manages session lifecycles.
type Store interface {
	EnsureSession(id string, ttl time.Duration) (Session, error)
	GetSession(id string) (Session, error)
}

// Session is the per-client application state.
type Session interface {
	ID() string
	Expire(ttl time.Duration)

	Settings() Settings
	SetSettings(Settings) error

	AppendMessage(Message) error
	Messages() []Message
	AppendRelayMessage(Message) error
	RelayMessages() []Message

	SetMedicines([]models.Medicine) error
	Medicines() []models.Medicine
	SearchMedicines(query string, k int) ([]models.Medicine, error)
}

// StoreType selects a concrete store implementation at wiring time.
type StoreType string

const (
	InMemoryStore StoreType = "inmemory"
	RedisStore    StoreType = "redis"
)
