package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mensahub/mensa/internal/database"
)

const (
	// APIKeyLength is the length of generated API keys in bytes (will be hex encoded)
	APIKeyLength = 32
)

// TenantAuthService resolves and authenticates tenants from request headers.
type TenantAuthService struct {
	db *database.DB
}

// NewTenantAuthService creates a new tenant auth service
func NewTenantAuthService(db *database.DB) *TenantAuthService {
	return &TenantAuthService{db: db}
}

// GenerateAPIKey creates a new cryptographically secure API key
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// HashAPIKey returns the bcrypt hash stored for an API key.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}
	return string(hash), nil
}

// Authenticate resolves the tenant for the given slug and, when the tenant
// has an API key configured, verifies the presented key against its hash.
// Returns the tenant record on success, nil when the tenant is unknown or
// the key does not match.
func (s *TenantAuthService) Authenticate(ctx context.Context, tenantID, apiKey string) (*database.TenantRecord, error) {
	tenant, err := s.db.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, nil
	}

	if tenant.APIKeyHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(tenant.APIKeyHash), []byte(apiKey)); err != nil {
			return nil, nil
		}
	}

	return tenant, nil
}
