package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	wallets   map[string]*TrackedWallet      // network|address
	statuses  map[string]WalletStatus        // userID|sourceWallet
	settings  map[int64]ReplicationSettings
	positions map[string]Position            // userID|tokenAddress
	stops     map[string]TrailingStopEntry   // userID|tokenAddress
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		wallets:   make(map[string]*TrackedWallet),
		statuses:  make(map[string]WalletStatus),
		settings:  make(map[int64]ReplicationSettings),
		positions: make(map[string]Position),
		stops:     make(map[string]TrailingStopEntry),
	}
}

func walletKey(network, address string) string {
	return network + "|" + address
}

func userTokenKey(userID int64, token string) string {
	return fmt.Sprintf("%d|%s", userID, token)
}

func userWalletKey(userID int64, wallet string) string {
	return fmt.Sprintf("%d|%s", userID, wallet)
}

func (s *MemoryStore) Track(ctx context.Context, wallet TrackedWallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := walletKey(wallet.Network, wallet.Address)
	existing, ok := s.wallets[key]
	if !ok {
		w := wallet
		w.Owners = append([]int64(nil), wallet.Owners...)
		s.wallets[key] = &w
		return nil
	}
	for _, owner := range wallet.Owners {
		if !containsInt64(existing.Owners, owner) {
			existing.Owners = append(existing.Owners, owner)
		}
	}
	return nil
}

func (s *MemoryStore) Untrack(ctx context.Context, network, address string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := walletKey(network, address)
	existing, ok := s.wallets[key]
	if !ok {
		return nil
	}
	var owners []int64
	for _, owner := range existing.Owners {
		if owner != userID {
			owners = append(owners, owner)
		}
	}
	if len(owners) == 0 {
		delete(s.wallets, key)
		return nil
	}
	existing.Owners = owners
	return nil
}

func (s *MemoryStore) TrackedWallets(ctx context.Context, network string) ([]TrackedWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TrackedWallet
	for _, w := range s.wallets {
		if w.Network != network {
			continue
		}
		copied := *w
		copied.Owners = append([]int64(nil), w.Owners...)
		out = append(out, copied)
	}
	return out, nil
}

func (s *MemoryStore) GetWalletStatus(ctx context.Context, userID int64, sourceWallet string) (WalletStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[userWalletKey(userID, sourceWallet)]
	if !ok {
		return WalletStatus{}, ErrNotFound
	}
	return status, nil
}

func (s *MemoryStore) SetWalletStatus(ctx context.Context, status WalletStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses[userWalletKey(status.UserID, status.SourceWallet)] = status
	return nil
}

func (s *MemoryStore) GetSettings(ctx context.Context, userID int64) (ReplicationSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.settings[userID]
	if !ok {
		return ReplicationSettings{}, ErrNotFound
	}
	return settings, nil
}

func (s *MemoryStore) SetSettings(ctx context.Context, settings ReplicationSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[settings.UserID] = settings
	return nil
}

func (s *MemoryStore) GetPosition(ctx context.Context, userID int64, tokenAddress string) (Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[userTokenKey(userID, tokenAddress)]
	if !ok {
		return Position{}, ErrNotFound
	}
	return pos, nil
}

func (s *MemoryStore) SavePosition(ctx context.Context, position Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[userTokenKey(position.UserID, position.TokenAddress)] = position
	return nil
}

func (s *MemoryStore) DeletePosition(ctx context.Context, userID int64, tokenAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.positions, userTokenKey(userID, tokenAddress))
	return nil
}

func (s *MemoryStore) ListPositions(ctx context.Context, userID int64) ([]Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Position
	for _, pos := range s.positions {
		if pos.UserID == userID {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListTrailingStops(ctx context.Context) ([]TrailingStopEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TrailingStopEntry
	for _, entry := range s.stops {
		out = append(out, entry)
	}
	return out, nil
}

func (s *MemoryStore) SaveTrailingStop(ctx context.Context, entry TrailingStopEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stops[userTokenKey(entry.UserID, entry.TokenAddress)] = entry
	return nil
}

func (s *MemoryStore) DeleteTrailingStop(ctx context.Context, userID int64, tokenAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.stops, userTokenKey(userID, tokenAddress))
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func containsInt64(list []int64, v int64) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
