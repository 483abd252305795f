package inmemory

import (
	"strconv"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
	"github.com/google/uuid"

	"github.com/xoity/medicinedb/models"
	"github.com/xoity/medicinedb/session"
)

type Store struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

func NewStore() session.Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (store *Store) EnsureSession(id string, ttl time.Duration) (session.Session, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if id != "" {
		if sess, ok := store.sessions[id]; ok {
			if !sess.expired() {
				sess.Expire(ttl)
				return sess, nil
			}
			delete(store.sessions, id)
		}
	}

	sess := &Session{
		id:        uuid.NewString(),
		expiresAt: time.Now().Add(ttl),
		settings:  session.Settings{Provider: "gemini"},
	}
	store.sessions[sess.id] = sess
	return sess, nil
}

func (store *Store) GetSession(id string) (session.Session, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	sess, ok := store.sessions[id]
	if !ok || sess.expired() {
		return nil, nil
	}
	return sess, nil
}

type Session struct {
	id        string
	expiresAt time.Time

	mu            sync.RWMutex
	settings      session.Settings
	messages      []session.Message
	relayMessages []session.Message
	medicines     []models.Medicine
	index         bleve.Index
}

func (s *Session) expired() bool { return time.Now().After(s.expiresAt) }

func (s *Session) ID() string               { return s.id }
func (s *Session) Expire(ttl time.Duration) { s.expiresAt = time.Now().Add(ttl) }

func (s *Session) Settings() session.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Session) SetSettings(v session.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = v
	return nil
}

func (s *Session) AppendMessage(m session.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *Session) Messages() []session.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]session.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) AppendRelayMessage(m session.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayMessages = append(s.relayMessages, m)
	return nil
}

func (s *Session) RelayMessages() []session.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]session.Message, len(s.relayMessages))
	copy(out, s.relayMessages)
	return out
}

// SetMedicines replaces the loaded snapshot and rebuilds the search index.
func (s *Session) SetMedicines(ms []models.Medicine) error {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return err
	}
	for i, m := range ms {
		if err := index.Index(strconv.Itoa(i), m); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.medicines = make([]models.Medicine, len(ms))
	copy(s.medicines, ms)
	s.index = index
	return nil
}

func (s *Session) Medicines() []models.Medicine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Medicine, len(s.medicines))
	copy(out, s.medicines)
	return out
}

// SearchMedicines runs a match query over the indexed snapshot and returns
// the hits in rank order.
func (s *Session) SearchMedicines(query string, k int) ([]models.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), k, 0, false)
	res, err := s.index.Search(req)
	if err != nil {
		return nil, err
	}

	out := make([]models.Medicine, 0, len(res.Hits))
	for _, hit := range res.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(s.medicines) {
			continue
		}
		out = append(out, s.medicines[i])
	}
	return out, nil
}
