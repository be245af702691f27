package profile

import (
	"context"
	"errors"
	"sort"
	"sync"

	"bazar_back_end/internal/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAddressNotFound = errors.New("address not found")
)

// StoredProfile is the profile row as written. DefaultAddress holds the
// encoded address, canonical or legacy.
type StoredProfile struct {
	UserID         string
	Name           string
	Email          string
	Phone          string
	DefaultAddress string
}

type Repository interface {
	LoadProfile(ctx context.Context, userID string) (StoredProfile, error)
	SaveCheckoutDefaults(ctx context.Context, userID, phone, encodedAddress string) error
	ListAddresses(ctx context.Context, userID string) ([]models.SavedAddress, error)
	InsertAddress(ctx context.Context, addr models.SavedAddress) error
	// SetDefault clears every other default of the user in the same write.
	SetDefault(ctx context.Context, userID, addressID string) error
	DeleteAddress(ctx context.Context, userID, addressID string) error
}

type MemoryRepository struct {
	mu        sync.Mutex
	profiles  map[string]StoredProfile
	addresses map[string][]models.SavedAddress
	// Writes counts SaveCheckoutDefaults calls.
	Writes int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		profiles:  make(map[string]StoredProfile),
		addresses: make(map[string][]models.SavedAddress),
	}
}

// Put seeds a profile row.
func (m *MemoryRepository) Put(p StoredProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
}

func (m *MemoryRepository) LoadProfile(_ context.Context, userID string) (StoredProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return StoredProfile{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryRepository) SaveCheckoutDefaults(_ context.Context, userID, phone, encoded string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profiles[userID]
	p.UserID = userID
	p.Phone = phone
	p.DefaultAddress = encoded
	m.profiles[userID] = p
	m.Writes++
	return nil
}

func (m *MemoryRepository) ListAddresses(_ context.Context, userID string) ([]models.SavedAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.SavedAddress(nil), m.addresses[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].IsDefault && !out[j].IsDefault })
	return out, nil
}

func (m *MemoryRepository) InsertAddress(_ context.Context, addr models.SavedAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[addr.UserID] = append(m.addresses[addr.UserID], addr)
	return nil
}

func (m *MemoryRepository) SetDefault(_ context.Context, userID, addressID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.addresses[userID]
	found := false
	for _, a := range list {
		if a.ID == addressID {
			found = true
		}
	}
	if !found {
		return ErrAddressNotFound
	}
	for i := range list {
		list[i].IsDefault = list[i].ID == addressID
	}
	return nil
}

func (m *MemoryRepository) DeleteAddress(_ context.Context, userID, addressID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.addresses[userID]
	for i, a := range list {
		if a.ID == addressID {
			m.addresses[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return ErrAddressNotFound
}

var _ Repository = (*MemoryRepository)(nil)
