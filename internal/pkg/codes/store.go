package codes

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Purpose 验证码用途，不同用途的码互不通用
type Purpose string

const (
	PurposeEmailVerify   Purpose = "email_verify"
	PurposePasswordReset Purpose = "password_reset"
	PurposeOAuthState    Purpose = "oauth_state"
)

const keyPrefix = "mirror:code:"

// 各用途的默认有效期
var DefaultTTL = map[Purpose]time.Duration{
	PurposeEmailVerify:   24 * time.Hour,
	PurposePasswordReset: 30 * time.Minute,
	PurposeOAuthState:    10 * time.Minute,
}

var ErrInvalidCode = errors.New("invalid or expired code")

// Store 基于 Redis TTL 的一次性访问码
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func key(purpose Purpose, code string) string {
	return keyPrefix + string(purpose) + ":" + code
}

// Issue 生成访问码并关联 value，ttl 为 0 时使用默认有效期
func (s *Store) Issue(ctx context.Context, purpose Purpose, value string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL[purpose]
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	code := hex.EncodeToString(buf)

	if err := s.rdb.Set(ctx, key(purpose, code), value, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store code: %w", err)
	}
	return code, nil
}

// Consume 校验并删除访问码，返回关联的 value
func (s *Store) Consume(ctx context.Context, purpose Purpose, code string) (string, error) {
	if code == "" {
		return "", ErrInvalidCode
	}
	k := key(purpose, code)

	var value string
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, k).Result()
		if err == redis.Nil {
			return ErrInvalidCode
		}
		if err != nil {
			return fmt.Errorf("failed to get code: %w", err)
		}
		value = val

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		})
		return err
	}, k)
	if err != nil {
		return "", err
	}
	return value, nil
}

// Peek 只读取不消费
func (s *Store) Peek(ctx context.Context, purpose Purpose, code string) (string, error) {
	if code == "" {
		return "", ErrInvalidCode
	}
	val, err := s.rdb.Get(ctx, key(purpose, code)).Result()
	if err == redis.Nil {
		return "", ErrInvalidCode
	}
	if err != nil {
		return "", fmt.Errorf("failed to get code: %w", err)
	}
	return val, nil
}
