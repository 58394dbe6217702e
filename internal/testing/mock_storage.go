// mock_storage.go - image store with failure simulation
package testing

import (
	"context"
	"errors"
	"sync"
	"time"

	"trackhub/internal/storage"
)

var ErrSimulatedUpload = errors.New("simulated upload failure")

// MockImageStore wraps a real local store and can be told to fail or stall.
type MockImageStore struct {
	store *storage.LocalStore
	mu    sync.RWMutex

	// Configuration for failure simulation
	ShouldFailUpload     bool
	SimulateNetworkDelay time.Duration

	// Counters for tracking
	UploadAttempts int
	Uploaded       []string
}

func NewMockImageStore(store *storage.LocalStore) *MockImageStore {
	return &MockImageStore{store: store}
}

func (m *MockImageStore) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	m.mu.Lock()
	m.UploadAttempts++
	fail := m.ShouldFailUpload
	delay := m.SimulateNetworkDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fail {
		return "", ErrSimulatedUpload
	}

	url, err := m.store.Upload(ctx, data, filename)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.Uploaded = append(m.Uploaded, url)
	m.mu.Unlock()
	return url, nil
}

// SetFailureMode configures upload failure simulation
func (m *MockImageStore) SetFailureMode(uploadFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldFailUpload = uploadFail
}

// SetNetworkDelay configures network delay simulation
func (m *MockImageStore) SetNetworkDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SimulateNetworkDelay = delay
}

func (m *MockImageStore) GetStats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{
		"upload_attempts": m.UploadAttempts,
		"uploaded":        len(m.Uploaded),
	}
}

func (m *MockImageStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldFailUpload = false
	m.SimulateNetworkDelay = 0
	m.UploadAttempts = 0
	m.Uploaded = nil
}
