package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcinplath/bhp/internal/model"
)

// RedisCredentials keeps refresh credentials in redis instead of the SQL
// store. SETNX gives the create-iff-absent semantics and the key TTL takes
// care of expiry without any lazy cleanup.
type RedisCredentials struct {
	client *redis.Client
}

func NewRedisCredentials(client *redis.Client) *RedisCredentials {
	return &RedisCredentials{client: client}
}

type credentialRecord struct {
	TokenHash string `json:"token_hash"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

func (r *RedisCredentials) CreateCredential(ctx context.Context, cred model.RefreshCredential) error {
	ttl := time.Until(cred.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("credential already expired")
	}
	data, err := json.Marshal(credentialRecord{
		TokenHash: cred.TokenHash,
		CreatedAt: cred.CreatedAt.Unix(),
		ExpiresAt: cred.ExpiresAt.Unix(),
	})
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, credentialKey(cred.AccountID), data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (r *RedisCredentials) GetCredential(ctx context.Context, accountID string) (model.RefreshCredential, error) {
	value, err := r.client.Get(ctx, credentialKey(accountID)).Result()
	if err == redis.Nil {
		return model.RefreshCredential{}, ErrNotFound
	}
	if err != nil {
		return model.RefreshCredential{}, err
	}
	var record credentialRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return model.RefreshCredential{}, err
	}
	return model.RefreshCredential{
		AccountID: accountID,
		TokenHash: record.TokenHash,
		CreatedAt: time.Unix(record.CreatedAt, 0).UTC(),
		ExpiresAt: time.Unix(record.ExpiresAt, 0).UTC(),
	}, nil
}

func (r *RedisCredentials) DeleteCredential(ctx context.Context, accountID string) error {
	return r.client.Del(ctx, credentialKey(accountID)).Err()
}

func credentialKey(accountID string) string {
	return fmt.Sprintf("refresh:%s", accountID)
}
