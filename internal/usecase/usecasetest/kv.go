package usecasetest

import (
	"context"

	"github.com/hsmazur/Taberna3/internal/usecase"
)

// Codes is a RecoveryCodeStore without expiry; the use case checks ExpiresAt itself.
type Codes struct{ m *Memory }

func (m *Memory) Codes() *Codes { return &Codes{m: m} }

func (r *Codes) Save(_ context.Context, email string, rc usecase.RecoveryCode) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.codes[email] = rc
	return nil
}

func (r *Codes) Get(_ context.Context, email string) (*usecase.RecoveryCode, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rc, ok := r.m.codes[email]
	if !ok {
		return nil, usecase.ErrRecoveryCodeNotFound
	}
	return &rc, nil
}

func (r *Codes) IncrAttempts(_ context.Context, email string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rc, ok := r.m.codes[email]
	if !ok {
		return 0, usecase.ErrRecoveryCodeNotFound
	}
	rc.Attempts++
	r.m.codes[email] = rc
	return rc.Attempts, nil
}

func (r *Codes) Delete(_ context.Context, email string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.codes, email)
	return nil
}

type Idempotency struct{ m *Memory }

func (m *Memory) Idempotency() *Idempotency { return &Idempotency{m: m} }

func idemKey(scope, key string) string { return scope + ":" + key }

func (r *Idempotency) TryLock(_ context.Context, scope, key string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	k := idemKey(scope, key)
	if _, ok := r.m.idem[k]; ok {
		return false, nil
	}
	r.m.idem[k] = ""
	return true, nil
}

func (r *Idempotency) Remember(_ context.Context, scope, key, value string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.idem[idemKey(scope, key)] = value
	return nil
}

func (r *Idempotency) Recall(_ context.Context, scope, key string) (string, bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.idem[idemKey(scope, key)]
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

func (r *Idempotency) Release(_ context.Context, scope, key string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.idem, idemKey(scope, key))
	return nil
}

type Notifier struct{ m *Memory }

func (m *Memory) Notifier() *Notifier { return &Notifier{m: m} }

func (r *Notifier) Notify(_ context.Context, n usecase.Notification) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.NotifyErr != nil {
		return r.m.NotifyErr
	}
	r.m.sent = append(r.m.sent, n)
	return nil
}

var (
	_ usecase.RecoveryCodeStore = (*Codes)(nil)
	_ usecase.IdempotencyStore  = (*Idempotency)(nil)
	_ usecase.Notifier          = (*Notifier)(nil)
)
