// Package auth authenticates console operators and maps their role onto
// API permissions.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/HaptiKnitConsole/internal/config"
	"go.uber.org/zap"
)

type Role string

const (
	// RoleObserver may watch the console.
	RoleObserver Role = "observer"
	// RoleOperator may also change placement and fire actuators.
	RoleOperator Role = "operator"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleObserver, RoleOperator:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type Permission string

const (
	PermRead    Permission = "console:read"
	PermOperate Permission = "console:operate"
)

func (r Role) Permissions() []Permission {
	switch r {
	case RoleOperator:
		return []Permission{PermRead, PermOperate}
	case RoleObserver:
		return []Permission{PermRead}
	default:
		return nil
	}
}

const (
	maxFailedLogins = 5
	lockoutDuration = 15 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
)

type operator struct {
	username     string
	passwordHash string
	role         Role

	failedAttempts int
	lockedUntil    time.Time
}

// AuthService checks operator credentials from the config and issues JWTs.
type AuthService struct {
	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher
	logger         *zap.Logger
	now            func() time.Time

	mu        sync.Mutex
	operators map[string]*operator
}

func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) (*AuthService, error) {
	operators := make(map[string]*operator, len(cfg.Operators))
	for _, op := range cfg.Operators {
		role, err := ParseRole(op.Role)
		if err != nil {
			return nil, fmt.Errorf("operator %q: %w", op.Username, err)
		}
		if op.Username == "" || op.PasswordHash == "" {
			return nil, fmt.Errorf("operator entries need username and password_hash")
		}
		if _, dup := operators[op.Username]; dup {
			return nil, fmt.Errorf("operator %q configured twice", op.Username)
		}
		operators[op.Username] = &operator{
			username:     op.Username,
			passwordHash: op.PasswordHash,
			role:         role,
		}
	}

	if !cfg.IsProductionReady() {
		logger.Warn("JWT secret is the development default or shorter than 32 chars",
			zap.String("env", cfg.JWTSecretEnv))
	}
	if len(operators) == 0 {
		logger.Warn("No operators configured, every login will fail")
	}

	return &AuthService{
		jwtHandler:     NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL),
		passwordHasher: NewPasswordHasher(),
		logger:         logger,
		now:            time.Now,
		operators:      operators,
	}, nil
}

// Session is the result of a successful login.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username"`
	Role        Role      `json:"role"`
}

// Login authenticates an operator. Five failed attempts lock the account
// for fifteen minutes.
func (a *AuthService) Login(username, password, ipAddress string) (*Session, error) {
	a.mu.Lock()
	op, ok := a.operators[username]
	if !ok {
		a.mu.Unlock()
		a.logger.Warn("Login failed", zap.String("username", username),
			zap.String("ip", ipAddress), zap.String("reason", "unknown user"))
		return nil, ErrInvalidCredentials
	}

	now := a.now()
	if now.Before(op.lockedUntil) {
		until := op.lockedUntil
		a.mu.Unlock()
		return nil, fmt.Errorf("%w until %s", ErrAccountLocked, until.Format(time.RFC3339))
	}
	hash := op.passwordHash
	a.mu.Unlock()

	// argon2 runs outside the lock.
	valid, err := a.passwordHasher.VerifyPassword(password, hash)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil || !valid {
		op.failedAttempts++
		if op.failedAttempts >= maxFailedLogins {
			op.lockedUntil = now.Add(lockoutDuration)
			op.failedAttempts = 0
		}
		a.logger.Warn("Login failed", zap.String("username", username),
			zap.String("ip", ipAddress), zap.String("reason", "invalid password"), zap.Error(err))
		return nil, ErrInvalidCredentials
	}

	op.failedAttempts = 0
	token, expires, err := a.jwtHandler.GenerateAccessToken(op.username, op.role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	a.logger.Info("Login succeeded", zap.String("username", username),
		zap.String("role", string(op.role)), zap.String("ip", ipAddress))

	return &Session{AccessToken: token, ExpiresAt: expires, Username: op.username, Role: op.role}, nil
}

// ValidateToken parses a bearer token and returns its claims.
func (a *AuthService) ValidateToken(token string) (*JWTClaims, error) {
	claims, err := a.jwtHandler.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	if _, err := ParseRole(string(claims.Role)); err != nil {
		return nil, err
	}
	return claims, nil
}
