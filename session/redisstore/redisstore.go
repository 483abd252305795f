// Package redisstore keeps session state in Redis so it survives a UI server
// restart. The medicine search index stays in process memory and is rebuilt
// from the persisted snapshot on demand.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xoity/medicinedb/models"
	"github.com/xoity/medicinedb/session"
)

type Store struct {
	client *redis.Client
}

func NewStore(addr, password string, db int) session.Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{client: rdb}
}

func stateKey(id string) string { return fmt.Sprintf("session:%s:state", id) }

// state is the persisted session value.
type state struct {
	Settings      session.Settings  `json:"settings"`
	Messages      []session.Message `json:"messages"`
	RelayMessages []session.Message `json:"relay_messages"`
	Medicines     []models.Medicine `json:"medicines"`
}

func (store *Store) EnsureSession(id string, ttl time.Duration) (session.Session, error) {
	ctx := context.Background()
	if id != "" {
		exists, err := store.client.Exists(ctx, stateKey(id)).Result()
		if err == nil && exists == 1 {
			sess := &Session{client: store.client, id: id, ttl: ttl}
			_ = store.client.Expire(ctx, stateKey(id), ttl).Err()
			return sess, nil
		}
	}

	newID := uuid.NewString()
	sess := &Session{client: store.client, id: newID, ttl: ttl}
	initial, _ := json.Marshal(state{Settings: session.Settings{Provider: "gemini"}})
	if err := store.client.Set(ctx, stateKey(newID), initial, ttl).Err(); err != nil {
		return nil, err
	}
	return sess, nil
}

func (store *Store) GetSession(id string) (session.Session, error) {
	ctx := context.Background()
	exists, err := store.client.Exists(ctx, stateKey(id)).Result()
	if err != nil || exists == 0 {
		return nil, nil
	}
	return &Session{client: store.client, id: id}, nil
}

type Session struct {
	client *redis.Client
	id     string
	ttl    time.Duration

	mu    sync.RWMutex
	index bleve.Index // rebuilt from the persisted medicine snapshot
}

func (s *Session) ID() string               { return s.id }
func (s *Session) Expire(ttl time.Duration) { s.ttl = ttl }

func (s *Session) load() state {
	var st state
	val, err := s.client.Get(context.Background(), stateKey(s.id)).Result()
	if err != nil {
		return st
	}
	_ = json.Unmarshal([]byte(val), &st)
	return st
}

func (s *Session) save(st state) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	ttl := s.ttl
	if ttl <= 0 {
		ttl = time.Hour
	}
	return s.client.Set(context.Background(), stateKey(s.id), data, ttl).Err()
}

func (s *Session) Settings() session.Settings { return s.load().Settings }

func (s *Session) SetSettings(v session.Settings) error {
	st := s.load()
	st.Settings = v
	return s.save(st)
}

func (s *Session) AppendMessage(m session.Message) error {
	st := s.load()
	st.Messages = append(st.Messages, m)
	return s.save(st)
}

func (s *Session) Messages() []session.Message { return s.load().Messages }

func (s *Session) AppendRelayMessage(m session.Message) error {
	st := s.load()
	st.RelayMessages = append(st.RelayMessages, m)
	return s.save(st)
}

func (s *Session) RelayMessages() []session.Message { return s.load().RelayMessages }

func (s *Session) SetMedicines(ms []models.Medicine) error {
	st := s.load()
	st.Medicines = ms
	if err := s.save(st); err != nil {
		return err
	}

	index, err := buildIndex(ms)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
	return nil
}

func (s *Session) Medicines() []models.Medicine { return s.load().Medicines }

func (s *Session) SearchMedicines(query string, k int) ([]models.Medicine, error) {
	medicines := s.load().Medicines

	s.mu.Lock()
	if s.index == nil {
		index, err := buildIndex(medicines)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		s.index = index
	}
	index := s.index
	s.mu.Unlock()

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), k, 0, false)
	res, err := index.Search(req)
	if err != nil {
		return nil, err
	}

	out := make([]models.Medicine, 0, len(res.Hits))
	for _, hit := range res.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(medicines) {
			continue
		}
		out = append(out, medicines[i])
	}
	return out, nil
}

func buildIndex(ms []models.Medicine) (bleve.Index, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	for i, m := range ms {
		if err := index.Index(strconv.Itoa(i), m); err != nil {
			return nil, err
		}
	}
	return index, nil
}
