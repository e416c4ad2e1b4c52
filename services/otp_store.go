// services/otp_store.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	PendingPurposeRegister       = "register"
	PendingPurposeLoginVerify    = "login_verify"
	PendingPurposePasswordChange = "password_change"
)

// PendingTTL is how long an issued OTP stays valid. Redis expiry does the
// cleanup — there is no permanent record until verification succeeds.
const PendingTTL = 10 * time.Minute

// PendingRecord is the transient payload parked in redis between OTP issue
// and OTP verification. For registrations it holds the whole would-be user.
type PendingRecord struct {
	OTP          string    `json:"otp"`
	Purpose      string    `json:"purpose"`
	Email        string    `json:"email"`
	Username     string    `json:"username,omitempty"`
	PasswordHash string    `json:"password_hash,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	Attempts     int       `json:"attempts"`
}

// OTPStore is the redis-backed PendingRegistration table.
type OTPStore struct {
	RDB *redis.Client
}

func NewRedisClient() *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379" // fallback for local dev
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
}

func NewOTPStore(rdb *redis.Client) *OTPStore {
	return &OTPStore{RDB: rdb}
}

func pendingKey(purpose, email string) string {
	return fmt.Sprintf("pending:%s:%s", purpose, email)
}

// Put parks a pending record under its purpose+email key, superseding any
// earlier one, with the standard TTL.
func (s *OTPStore) Put(ctx context.Context, rec PendingRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.RDB.Set(ctx, pendingKey(rec.Purpose, rec.Email), data, PendingTTL).Err()
}

// Get fetches the pending record, or nil if none exists (expired or never
// issued).
func (s *OTPStore) Get(ctx context.Context, purpose, email string) (*PendingRecord, error) {
	data, err := s.RDB.Get(ctx, pendingKey(purpose, email)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec PendingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the record once it has been consumed.
func (s *OTPStore) Delete(ctx context.Context, purpose, email string) error {
	return s.RDB.Del(ctx, pendingKey(purpose, email)).Err()
}

// RecordFailedAttempt bumps the attempt counter, keeping the remaining TTL.
// After 5 wrong codes the record is dropped entirely.
func (s *OTPStore) RecordFailedAttempt(ctx context.Context, rec *PendingRecord) error {
	rec.Attempts++
	if rec.Attempts >= 5 {
		return s.Delete(ctx, rec.Purpose, rec.Email)
	}
	ttl, err := s.RDB.TTL(ctx, pendingKey(rec.Purpose, rec.Email)).Result()
	if err != nil || ttl <= 0 {
		ttl = PendingTTL
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.RDB.Set(ctx, pendingKey(rec.Purpose, rec.Email), data, ttl).Err()
}
