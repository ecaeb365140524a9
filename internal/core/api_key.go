package core

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/edvin/automation/internal/model"
	"github.com/edvin/automation/internal/platform"
)

// APIKeyPrefix starts every generated raw key.
const APIKeyPrefix = "auk_"

// APIKeyService manages API keys for the automation API.
type APIKeyService struct {
	db DB
}

// NewAPIKeyService creates a new APIKeyService.
func NewAPIKeyService(db DB) *APIKeyService {
	return &APIKeyService{db: db}
}

// HashAPIKey returns the stored form of a raw key.
func HashAPIKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// Create generates a new API key, stores the hash, and returns the model along
// with the raw key string. The raw key must be shown to the user exactly once.
func (s *APIKeyService) Create(ctx context.Context, name string, tenants []string) (*model.APIKey, string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}
	rawKey := APIKeyPrefix + hex.EncodeToString(rawBytes)

	key, err := s.CreateWithRawKey(ctx, name, rawKey, tenants)
	if err != nil {
		return nil, "", err
	}
	return key, rawKey, nil
}

// CreateWithRawKey stores an API key with a caller-provided raw key value.
// Used for well-known dev keys where the raw value must be deterministic.
func (s *APIKeyService) CreateWithRawKey(ctx context.Context, name, rawKey string, tenants []string) (*model.APIKey, error) {
	if len(rawKey) < 12 {
		return nil, fmt.Errorf("api key too short")
	}
	if tenants == nil {
		tenants = []string{"*"}
	}
	key := &model.APIKey{
		ID:        platform.NewID(),
		Name:      name,
		KeyPrefix: rawKey[:12],
		Tenants:   tenants,
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, tenants, created_at) VALUES ($1, $2, $3, $4, $5, now())
		 RETURNING created_at`,
		key.ID, key.Name, HashAPIKey(rawKey), key.KeyPrefix, key.Tenants,
	).Scan(&key.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert api key: %w", err)
	}
	return key, nil
}

// Authenticate resolves a raw key to its unrevoked API key.
func (s *APIKeyService) Authenticate(ctx context.Context, rawKey string) (*model.APIKey, error) {
	var k model.APIKey
	err := s.db.QueryRow(ctx,
		`SELECT id, name, key_prefix, tenants, created_at FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL`,
		HashAPIKey(rawKey),
	).Scan(&k.ID, &k.Name, &k.KeyPrefix, &k.Tenants, &k.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("authenticate api key: %w", notFound(err))
	}
	return &k, nil
}

// Revoke soft-deletes an API key by setting revoked_at.
func (s *APIKeyService) Revoke(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL", id,
	)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key %s not found or already revoked", id)
	}
	return nil
}
