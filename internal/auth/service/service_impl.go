package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rukun/internal/auth/domain"
	"github.com/smallbiznis/rukun/internal/auth/password"
	"github.com/smallbiznis/rukun/internal/clock"
	"github.com/smallbiznis/rukun/internal/config"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sessionTokenBytes = 32
	defaultSessionTTL = 7 * 24 * time.Hour
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Config      config.Config
	Clock       clock.Clock
	GenID       *snowflake.Node
	Repo        domain.Repository
	SessionRepo domain.SessionRepository
}

type Service struct {
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	repo        domain.Repository
	sessionRepo domain.SessionRepository
	sessionTTL  time.Duration
}

func New(p Params) domain.Service {
	ttl := p.Config.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Service{
		log:         p.Log.Named("auth.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		repo:        p.Repo,
		sessionRepo: p.SessionRepo,
		sessionTTL:  ttl,
	}
}

// CreateUser registers an account. Every role except SUPER_ADMIN must be
// bound to a tenant, and a super admin never is.
func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if !password.Acceptable(req.Password) {
		return nil, domain.ErrWeakPassword
	}
	role := strings.ToUpper(strings.TrimSpace(req.RoleCode))
	if !validRole(role) {
		return nil, domain.ErrInvalidRole
	}
	hasTenant := req.TenantID != nil && *req.TenantID != 0
	if role == tenancy.RoleSuperAdmin && hasTenant {
		return nil, domain.ErrInvalidRole
	}
	if role != tenancy.RoleSuperAdmin && !hasTenant {
		return nil, tenancy.ErrTenantRequired
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = defaultDisplayName(email)
	}
	user := &domain.User{
		ID:                  s.genID.Generate(),
		RoleCode:            role,
		Email:               email,
		DisplayName:         displayName,
		PasswordHash:        &hashed,
		LastPasswordChanged: &now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if hasTenant {
		id := *req.TenantID
		user.TenantID = &id
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("role", user.RoleCode),
	)
	return user, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == nil || !password.Verify(req.Password, *user.PasswordHash) {
		s.log.Info("login rejected", zap.String("user_id", user.ID.String()))
		return nil, domain.ErrInvalidCredentials
	}
	if password.NeedsRehash(*user.PasswordHash) {
		s.rehash(ctx, user.ID, req.Password)
	}

	rawToken, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:               s.genID.Generate(),
		UserID:           user.ID,
		SessionTokenHash: hashToken(rawToken),
		UserAgent:        strings.TrimSpace(req.UserAgent),
		IPAddress:        strings.TrimSpace(req.IPAddress),
		ExpiresAt:        now.Add(s.sessionTTL),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.sessionRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	view := &domain.SessionView{
		UserID:      user.ID.String(),
		Email:       user.Email,
		DisplayName: user.DisplayName,
		RoleCode:    user.RoleCode,
	}
	if user.TenantID != nil {
		tenantID := user.TenantID.String()
		view.TenantID = &tenantID
	}

	return &domain.LoginResult{
		Session:   view,
		RawToken:  rawToken,
		ExpiresAt: session.ExpiresAt,
		SessionID: session.ID,
	}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrInvalidSession
		}
		return err
	}
	if session.RevokedAt != nil {
		return nil
	}

	return s.sessionRepo.RevokeSession(ctx, session.ID, s.clock.Now())
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (tenancy.Principal, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return tenancy.Anonymous(), domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return tenancy.Anonymous(), domain.ErrInvalidSession
		}
		return tenancy.Anonymous(), err
	}

	now := s.clock.Now()
	if session.RevokedAt != nil {
		return tenancy.Anonymous(), domain.ErrSessionRevoked
	}
	if now.After(session.ExpiresAt) {
		return tenancy.Anonymous(), domain.ErrSessionExpired
	}

	user, err := s.repo.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return tenancy.Anonymous(), domain.ErrInvalidSession
		}
		return tenancy.Anonymous(), err
	}

	if err := s.sessionRepo.UpdateLastSeen(ctx, session.ID, now); err != nil {
		return tenancy.Anonymous(), err
	}

	return user.Principal(), nil
}

func (s *Service) ChangePassword(ctx context.Context, userID snowflake.ID, newPassword string) error {
	if !password.Acceptable(newPassword) {
		return domain.ErrWeakPassword
	}

	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		return err
	}

	hashed, err := password.Hash(newPassword)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	fields := map[string]any{
		"password_hash":         hashed,
		"last_password_changed": &now,
		"updated_at":            now,
	}

	return s.repo.UpdateFields(ctx, userID, fields)
}

// rehash upgrades a stored hash to the current parameters. Failures only cost the upgrade.
func (s *Service) rehash(ctx context.Context, userID snowflake.ID, plain string) {
	hashed, err := password.Hash(plain)
	if err == nil {
		err = s.repo.UpdateFields(ctx, userID, map[string]any{
			"password_hash": hashed,
			"updated_at":    s.clock.Now(),
		})
	}
	if err != nil {
		s.log.Warn("password rehash failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func validRole(role string) bool {
	switch role {
	case tenancy.RoleSuperAdmin, tenancy.RoleAdminRW, tenancy.RoleAdminRT,
		tenancy.RoleSecretary, tenancy.RoleTreasurer, tenancy.RoleMember:
		return true
	default:
		return false
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func defaultDisplayName(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		return strings.TrimSpace(parts[0])
	}
	return email
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
