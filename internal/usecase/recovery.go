package usecase

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/logging"
)

type RecoveryConfig struct {
	TTL         time.Duration
	MaxAttempts int
	CodeLength  int
	// ExposeCode returns the generated code to the caller (development only).
	ExposeCode bool
}

type RecoveryRequest struct {
	ExpiresAt time.Time
	Code      string
}

// Recovery resets forgotten passwords with a short numeric code sent by e-mail.
type Recovery struct {
	users  UserRepo
	codes  RecoveryCodeStore
	notify Notifier
	cfg    RecoveryConfig
	now    func() time.Time
	gen    func(n int) (string, error)
}

func NewRecovery(users UserRepo, codes RecoveryCodeStore, notify Notifier, cfg RecoveryConfig) *Recovery {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	return &Recovery{users: users, codes: codes, notify: notify, cfg: cfg, now: time.Now, gen: numericCode}
}

func numericCode(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

func (uc *Recovery) RequestCode(ctx context.Context, email string) (*RecoveryRequest, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, invalidf("email is required")
	}
	u, err := uc.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	code, err := uc.gen(uc.cfg.CodeLength)
	if err != nil {
		return nil, err
	}
	now := uc.now().UTC()
	rc := RecoveryCode{Code: code, ExpiresAt: now.Add(uc.cfg.TTL)}
	if err := uc.codes.Save(ctx, email, rc); err != nil {
		return nil, err
	}
	if uc.notify != nil {
		n := Notification{
			Kind: NotifyPasswordReset,
			To:   email,
			Name: u.Name,
			Data: map[string]string{
				"code":       code,
				"expires_at": rc.ExpiresAt.Format(time.RFC3339),
			},
			Issue: now,
		}
		if err := uc.notify.Notify(ctx, n); err != nil {
			logging.FromCtx(ctx).Warn("recovery: publish failed", "err", err)
		}
	}
	out := &RecoveryRequest{ExpiresAt: rc.ExpiresAt}
	if uc.cfg.ExposeCode {
		out.Code = code
	}
	return out, nil
}

// VerifyCode checks a code without consuming it. A wrong code counts as an attempt.
func (uc *Recovery) VerifyCode(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return invalidf("email and code are required")
	}
	rc, err := uc.codes.Get(ctx, email)
	if err != nil {
		return err
	}
	if !uc.now().Before(rc.ExpiresAt) {
		_ = uc.codes.Delete(ctx, email)
		return ErrRecoveryCodeExpired
	}
	if rc.Attempts >= uc.cfg.MaxAttempts {
		_ = uc.codes.Delete(ctx, email)
		return ErrRecoveryTooManyAttempts
	}
	if subtle.ConstantTimeCompare([]byte(rc.Code), []byte(strings.TrimSpace(code))) == 1 {
		return nil
	}
	n, err := uc.codes.IncrAttempts(ctx, email)
	if err != nil {
		return err
	}
	if n >= uc.cfg.MaxAttempts {
		_ = uc.codes.Delete(ctx, email)
		return ErrRecoveryTooManyAttempts
	}
	return ErrRecoveryCodeInvalid
}

func (uc *Recovery) ResetPassword(ctx context.Context, email, code, password string) error {
	if len(password) < domain.MinPasswordLen {
		return ErrWeakPassword
	}
	if err := uc.VerifyCode(ctx, email, code); err != nil {
		return err
	}
	email = normalizeEmail(email)
	u, err := uc.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := uc.users.SetPassword(ctx, u.ID, string(h)); err != nil {
		return err
	}
	return uc.codes.Delete(ctx, email)
}
