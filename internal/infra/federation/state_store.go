package federation

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/novacrm/auth-service/internal/core/port"
)

const (
	DefaultStateTTL = 5 * time.Minute
	stateBytes      = 32
)

// StateStore keeps issued OAuth state values in memory until they are consumed or expire.
type StateStore struct {
	cache *ttlcache.Cache[string, struct{}]
}

func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, struct{}](ttl),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

// Start runs the expiry janitor until Stop is called.
func (s *StateStore) Start() {
	go s.cache.Start()
}

func (s *StateStore) Stop() {
	s.cache.Stop()
}

func (s *StateStore) Issue() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	s.cache.Set(state, struct{}{}, ttlcache.DefaultTTL)
	return state, nil
}

// Consume reports whether state was issued and unexpired, and removes it either way.
func (s *StateStore) Consume(state string) bool {
	if state == "" {
		return false
	}
	item, present := s.cache.GetAndDelete(state)
	return present && item != nil && !item.IsExpired()
}

var _ port.StateStore = (*StateStore)(nil)
