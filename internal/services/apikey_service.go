package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/pulsekeep/pulsekeep/internal/app_interfaces"
	"github.com/pulsekeep/pulsekeep/internal/models"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrKeyRevoked = errors.New("api key revoked")
)

var _ app_interfaces.KeyStoreService = (*APIKeyService)(nil)

// APIKeyService issues and validates API keys. Secrets are hashed with
// HMAC-SHA256 under a server-side pepper; the hash is deterministic so
// lookups go straight to the unique key_hash column. The plaintext secret
// exists only in the CreateKey return value.
type APIKeyService struct {
	db       *gorm.DB
	pepper   []byte
	cache    *redis.Client
	cacheTTL time.Duration
}

// apiKeyCacheData stores key metadata in Redis (never the secret).
type apiKeyCacheData struct {
	ID       uint   `json:"id"`
	KeyHash  string `json:"key_hash"`
	ClientID string `json:"client_id"`
	IsActive bool   `json:"is_active"`
}

func NewAPIKeyService(db *gorm.DB, pepper []byte, cache *redis.Client, ttl time.Duration) *APIKeyService {
	return &APIKeyService{
		db:       db,
		pepper:   pepper,
		cache:    cache,
		cacheTTL: ttl,
	}
}

// hashKey computes the hex HMAC-SHA256 of a secret under the pepper.
func (s *APIKeyService) hashKey(secret string) string {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// CreateKey generates a high-entropy secret and stores only its hash.
// The returned plaintext is shown exactly once.
func (s *APIKeyService) CreateKey(ctx context.Context, clientID string, description *string, scopes []string) (string, *models.APIKey, error) {
	sec := make([]byte, 32)
	if _, err := rand.Read(sec); err != nil {
		return "", nil, err
	}
	secret := hex.EncodeToString(sec)

	ak := models.APIKey{
		KeyHash:     s.hashKey(secret),
		ClientID:    clientID,
		Description: description,
		Scopes:      pq.StringArray(scopes),
		CreatedAt:   time.Now().UTC(),
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(&ak).Error; err != nil {
		return "", nil, err
	}
	s.cacheSet(ctx, &ak)
	return secret, &ak, nil
}

// Authenticate hashes the presented secret with the same one-way function,
// looks the hash up (cache first, database on miss) and rejects inactive
// keys. The stored hash is compared with hmac.Equal. On success
// last_used_at is advanced.
func (s *APIKeyService) Authenticate(ctx context.Context, presented string) (*models.APIKey, error) {
	if presented == "" {
		return nil, ErrInvalidKey
	}
	keyHash := s.hashKey(presented)

	var ak models.APIKey
	found := false

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey(keyHash)).Result(); err == nil {
			var cached apiKeyCacheData
			if err := json.Unmarshal([]byte(raw), &cached); err == nil &&
				hmac.Equal([]byte(cached.KeyHash), []byte(keyHash)) {
				if !cached.IsActive {
					return nil, ErrKeyRevoked
				}
				ak = models.APIKey{ID: cached.ID, KeyHash: cached.KeyHash, ClientID: cached.ClientID, IsActive: true}
				found = true
			}
		}
	}

	if !found {
		err := s.db.WithContext(ctx).Where("key_hash = ?", keyHash).First(&ak).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidKey
		}
		if err != nil {
			return nil, err
		}
		if !hmac.Equal([]byte(ak.KeyHash), []byte(keyHash)) {
			return nil, ErrInvalidKey
		}
		if !ak.IsActive {
			return nil, ErrKeyRevoked
		}
		s.cacheSet(ctx, &ak)
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", ak.ID).Update("last_used_at", now).Error; err != nil {
		return nil, err
	}
	ak.LastUsedAt = &now
	return &ak, nil
}

// Revoke marks a key inactive. Revoking an already revoked key succeeds;
// only an unknown id reports found=false.
func (s *APIKeyService) Revoke(ctx context.Context, keyID uint) (bool, error) {
	var ak models.APIKey
	err := s.db.WithContext(ctx).First(&ak, keyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.db.WithContext(ctx).Model(&ak).Update("is_active", false).Error; err != nil {
		return false, err
	}
	if s.cache != nil {
		s.cache.Del(ctx, cacheKey(ak.KeyHash))
	}
	return true, nil
}

// ListKeys returns key records newest first. The models.APIKey JSON shape
// omits the hash, so neither secret material nor hashes ever leave here.
func (s *APIKeyService) ListKeys(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *APIKeyService) cacheSet(ctx context.Context, ak *models.APIKey) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(apiKeyCacheData{
		ID:       ak.ID,
		KeyHash:  ak.KeyHash,
		ClientID: ak.ClientID,
		IsActive: ak.IsActive,
	})
	if err != nil {
		return
	}
	s.cache.Set(ctx, cacheKey(ak.KeyHash), data, s.cacheTTL)
}

func cacheKey(keyHash string) string {
	return "apikey:" + keyHash
}
