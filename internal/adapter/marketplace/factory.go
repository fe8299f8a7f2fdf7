package marketplace

import (
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
	"github.com/xiaot623/gogo/fitsync/internal/service"
)

// SchemeMock selects the in-memory backend.
const SchemeMock = "mock"

// Demo accounts seeded into the mock backend.
const (
	DemoTrainerEmail = "coach@fitsync.local"
	DemoTraineeEmail = "athlete@fitsync.local"
	DemoPassword     = "password"
)

var (
	_ service.API = (*Client)(nil)
	_ service.API = (*MockClient)(nil)
)

// NewFromURL creates the marketplace API for rawURL. A mock:// URL returns a
// MockClient seeded with two demo accounts; http and https URLs return a Client.
func NewFromURL(rawURL string, timeout time.Duration, rps, burst int, logger *zap.Logger) (service.API, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case SchemeMock:
		logger.Info("mock api url detected, using in-memory marketplace backend")
		m := NewMockClient()
		m.SeedUser("Casey Coach", DemoTrainerEmail, DemoPassword, domain.RoleTrainer, domain.RoleTrainee)
		m.SeedUser("Alex Athlete", DemoTraineeEmail, DemoPassword, domain.RoleTrainee)
		return m, nil
	case "http", "https":
		if u.Host == "" {
			return nil, fmt.Errorf("invalid api url %q: missing host", rawURL)
		}
		return NewClient(rawURL, timeout, rps, burst), nil
	default:
		return nil, fmt.Errorf("invalid api url %q: unsupported scheme %q", rawURL, u.Scheme)
	}
}
