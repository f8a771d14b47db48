// Package auth signs customers, vendors and operators in with a one-time
// code sent to their phone and hands out JWT sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/cache"
	"shoemart_back_end/internal/models"
	"shoemart_back_end/internal/notify"
)

type OTPStore interface {
	Save(ctx context.Context, phone, hash string, ttl time.Duration) error
	Load(ctx context.Context, phone string) (cache.OTPEntry, bool, error)
	Attempt(ctx context.Context, phone string) (int, error)
	Delete(ctx context.Context, phone string) error
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (cache.Decision, error)
}

type Revocations interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	Revoked(ctx context.Context, tokenID string) (bool, error)
}

// CodeSender delivers the code. notify.Dispatcher.Send fits.
type CodeSender interface {
	Send(ctx context.Context, msg notify.Message) error
}

type Config struct {
	OTPTTL          time.Duration
	OTPLength       int
	MaxAttempts     int
	RequestsPerHour int
}

type IdentityProvider struct {
	users   UserRepository
	otps    OTPStore
	limiter Limiter
	revoked Revocations
	sender  CodeSender
	signer  *TokenSigner
	cfg     Config
}

func NewIdentityProvider(users UserRepository, otps OTPStore, limiter Limiter, revoked Revocations,
	sender CodeSender, signer *TokenSigner, cfg Config) *IdentityProvider {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 5 * time.Minute
	}
	if cfg.OTPLength <= 0 {
		cfg.OTPLength = 6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RequestsPerHour <= 0 {
		cfg.RequestsPerHour = 5
	}
	return &IdentityProvider{
		users:   users,
		otps:    otps,
		limiter: limiter,
		revoked: revoked,
		sender:  sender,
		signer:  signer,
		cfg:     cfg,
	}
}

var phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// NormalizePhone strips spaces and dashes and checks for E.164.
func NormalizePhone(phone string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	if !phonePattern.MatchString(p) {
		return "", apperr.Validation("phone", "phone must be in international format, e.g. +919812345678")
	}
	return p, nil
}

// RequestOTP sends a fresh code to phone, replacing any pending one.
func (p *IdentityProvider) RequestOTP(ctx context.Context, phone string) error {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return err
	}
	d, err := p.limiter.Allow(ctx, "otp:"+phone, p.cfg.RequestsPerHour, time.Hour)
	if err != nil {
		return apperr.Wrap(apperr.ErrExternalService, err)
	}
	if !d.Allowed {
		return apperr.New(apperr.ErrRateLimited, "too many codes requested, try again later",
			map[string]any{"retry_after": int(d.RetryAfter.Seconds())})
	}

	code, err := GenerateCode(p.cfg.OTPLength)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	hash, err := HashCode(code)
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}
	if err := p.otps.Save(ctx, phone, hash, p.cfg.OTPTTL); err != nil {
		return apperr.Wrap(apperr.ErrExternalService, err)
	}

	err = p.sender.Send(ctx, notify.Message{
		Phone: phone,
		Kind:  notify.KindOTP,
		Vars: map[string]string{
			"otp": code,
			"ttl": fmt.Sprintf("%d minutes", int(p.cfg.OTPTTL.Minutes())),
		},
	})
	if err != nil {
		_ = p.otps.Delete(context.WithoutCancel(ctx), phone)
		return apperr.Wrap(apperr.ErrExternalService, err)
	}
	log.Printf("📨 OTP sent to %s", maskPhone(phone))
	return nil
}

// Session is what a successful sign in returns.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
	Created   bool        `json:"created"`
}

// VerifyOTP checks the code and opens a session. The first successful
// verification of a phone registers a customer account.
func (p *IdentityProvider) VerifyOTP(ctx context.Context, phone, code string) (Session, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return Session{}, err
	}
	entry, found, err := p.otps.Load(ctx, phone)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.ErrExternalService, err)
	}
	if !found {
		return Session{}, apperr.New(apperr.ErrInvalidOTP, "code expired or never requested", nil)
	}
	if entry.Attempts >= p.cfg.MaxAttempts {
		_ = p.otps.Delete(ctx, phone)
		return Session{}, apperr.New(apperr.ErrInvalidOTP, "too many attempts, request a new code", nil)
	}
	attempts, err := p.otps.Attempt(ctx, phone)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.ErrExternalService, err)
	}

	ok, err := VerifyCode(strings.TrimSpace(code), entry.Hash)
	if err != nil || !ok {
		remaining := p.cfg.MaxAttempts - attempts
		if remaining <= 0 {
			_ = p.otps.Delete(ctx, phone)
		}
		return Session{}, apperr.New(apperr.ErrInvalidOTP, "invalid code", map[string]any{"attempts_left": max(remaining, 0)})
	}
	_ = p.otps.Delete(ctx, phone)

	u, created, err := p.findOrRegister(ctx, phone)
	if err != nil {
		return Session{}, err
	}
	token, claims, err := p.signer.Issue(u)
	if err != nil {
		return Session{}, err
	}
	log.Printf("✅ %s signed in as %s (%s)", maskPhone(phone), u.ID, u.Role)
	return Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: u, Created: created}, nil
}

func (p *IdentityProvider) findOrRegister(ctx context.Context, phone string) (models.User, bool, error) {
	u, err := p.users.GetByPhone(ctx, phone)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, apperr.ErrUserNotFound) {
		return models.User{}, false, err
	}

	u = models.User{ID: uuid.NewString(), Phone: phone, Role: models.RoleCustomer, CreatedAt: time.Now()}
	err = p.users.Create(ctx, u)
	if errors.Is(err, apperr.ErrDuplicateID) {
		// registered concurrently
		u, err = p.users.GetByPhone(ctx, phone)
		return u, false, err
	}
	if err != nil {
		return models.User{}, false, err
	}
	log.Printf("👤 New customer %s", u.ID)
	return u, true, nil
}

// Authenticate validates a bearer token and rejects revoked sessions.
func (p *IdentityProvider) Authenticate(ctx context.Context, token string) (Claims, error) {
	claims, err := p.signer.Parse(token)
	if err != nil {
		return Claims{}, err
	}
	revoked, err := p.revoked.Revoked(ctx, claims.ID)
	if err != nil {
		log.Printf("⚠️ revocation check failed: %v", err)
		return claims, nil
	}
	if revoked {
		return Claims{}, fmt.Errorf("%w: session revoked", ErrInvalidToken)
	}
	return claims, nil
}

// Logout revokes the session until it would have expired.
func (p *IdentityProvider) Logout(ctx context.Context, claims Claims) error {
	if err := p.revoked.Revoke(ctx, claims.ID, claims.TTL(time.Now())); err != nil {
		return apperr.Wrap(apperr.ErrExternalService, err)
	}
	return nil
}

// AssignRole makes an account a vendor (linked to vendorID), an admin or a
// customer again. Existing tokens keep the old role until they expire.
func (p *IdentityProvider) AssignRole(ctx context.Context, userID string, role models.Role, vendorID string) (models.User, error) {
	switch role {
	case models.RoleCustomer, models.RoleAdmin:
		vendorID = ""
	case models.RoleVendor:
		if vendorID == "" {
			return models.User{}, apperr.Validation("vendor_id", "vendor accounts need a vendor id")
		}
	default:
		return models.User{}, apperr.Validation("role", "unknown role "+string(role))
	}
	u, err := p.users.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	u.Role = role
	u.VendorID = vendorID
	if err := p.users.Update(ctx, u); err != nil {
		return models.User{}, err
	}
	log.Printf("👤 %s is now %s %s", u.ID, u.Role, u.VendorID)
	return u, nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
