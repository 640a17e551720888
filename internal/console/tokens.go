package console

import "sync"

// TokenStore holds the backend token pair obtained from the identity
// service. It is shared between the console and the remote clients,
// which read the access token on every request.
type TokenStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

func NewTokenStore() *TokenStore { return &TokenStore{} }

// AccessToken implements remote.TokenSource.
func (s *TokenStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

func (s *TokenStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

func (s *TokenStore) Set(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
}

func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
}
