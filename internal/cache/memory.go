package cache

import (
	"context"
	"sync"
	"time"
)

// In-process equivalents for the memory backend.

type MemoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{revoked: make(map[string]time.Time)}
}

func (r *MemoryRevocations) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[tokenID] = time.Now().Add(ttl)
	return nil
}

func (r *MemoryRevocations) Revoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.revoked[tokenID]
	if ok && time.Now().After(until) {
		delete(r.revoked, tokenID)
		return false, nil
	}
	return ok, nil
}

type window struct {
	count   int
	expires time.Time
}

type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, win time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	w, ok := l.windows[key]
	if !ok || now.After(w.expires) {
		w = &window{expires: now.Add(win)}
		l.windows[key] = w
	}
	w.count++

	d := Decision{Limit: limit, Remaining: max(limit-w.count, 0), Allowed: w.count <= limit}
	if !d.Allowed {
		d.RetryAfter = w.expires.Sub(now)
	}
	return d, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
	return nil
}

type otpRecord struct {
	OTPEntry
	expires time.Time
}

type MemoryOTPStore struct {
	mu      sync.Mutex
	entries map[string]*otpRecord
}

func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{entries: make(map[string]*otpRecord)}
}

func (s *MemoryOTPStore) Save(_ context.Context, phone, hash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[phone] = &otpRecord{OTPEntry: OTPEntry{Hash: hash}, expires: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryOTPStore) live(phone string) *otpRecord {
	rec, ok := s.entries[phone]
	if !ok {
		return nil
	}
	if time.Now().After(rec.expires) {
		delete(s.entries, phone)
		return nil
	}
	return rec
}

func (s *MemoryOTPStore) Load(_ context.Context, phone string) (OTPEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.live(phone)
	if rec == nil {
		return OTPEntry{}, false, nil
	}
	return rec.OTPEntry, true, nil
}

func (s *MemoryOTPStore) Attempt(_ context.Context, phone string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.live(phone)
	if rec == nil {
		return 0, nil
	}
	rec.Attempts++
	return rec.Attempts, nil
}

func (s *MemoryOTPStore) Delete(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, phone)
	return nil
}
