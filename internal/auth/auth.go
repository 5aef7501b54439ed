// Package auth registers users, checks their passwords and issues and
// verifies the bearer tokens that protect the task API.
//
// Passwords are stored as bcrypt hashes. Tokens are HS256 JWTs whose "id"
// claim carries the user id; every token also has a unique "jti" and an
// expiry so that it can be revoked on logout and ages out on its own.
package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"taskboard/internal/domain/errors"
	"taskboard/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const DefaultTokenTTL = 24 * time.Hour

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.UserSummary, error)
}

type RevocationRepository interface {
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

type Config struct {
	Secret     []byte
	TokenTTL   time.Duration
	BcryptCost int
}

// Claims is the token payload.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// Session is what a successful login hands back to the caller.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

type Authenticator struct {
	users   UserRepository
	revoked RevocationRepository
	secret  []byte
	ttl     time.Duration
	cost    int
	log     *logrus.Entry
	now     func() time.Time
}

func New(users UserRepository, revoked RevocationRepository, cfg Config, log *logrus.Entry) (*Authenticator, error) {
	if users == nil || revoked == nil {
		return nil, fmt.Errorf("auth: repositories are required")
	}
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("%w: token signing secret", errors.ErrConfigMissing)
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d", errors.ErrConfigInvalidFormat, cost)
	}
	return &Authenticator{
		users:   users,
		revoked: revoked,
		secret:  cfg.Secret,
		ttl:     ttl,
		cost:    cost,
		log:     log.WithField("component", "auth"),
		now:     time.Now,
	}, nil
}

// Register creates a user. It does not log the user in.
func (a *Authenticator) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	const op = "auth.Register"
	log := a.log.WithField("operation", op)

	req := models.SignupRequest{
		Username: strings.TrimSpace(username),
		Email:    normalizeEmail(email),
		Password: password,
	}
	if err := models.Validate(req); err != nil {
		return nil, err
	}
	if len(req.Password) > maxPasswordBytes {
		return nil, errors.ErrInvalidPassword
	}

	existing, err := a.users.GetUserByEmail(ctx, req.Email)
	if err == nil && existing != nil {
		log.Info("signup with an already registered email")
		return nil, errors.ErrDuplicateEmail
	}
	if err != nil && !stderrors.Is(err, errors.ErrUnknownUser) {
		return nil, fmt.Errorf("%s: lookup: %w", op, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("%s: hash password: %w", op, err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		if stderrors.Is(err, errors.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: create: %w", op, err)
	}
	log.WithField("user_id", user.ID).Info("user registered")
	return user, nil
}

// Login checks the password and issues a token. Unknown emails fail with
// errors.ErrUnknownUser and wrong passwords with errors.ErrInvalidCredentials;
// callers facing the network should not tell the two apart.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*Session, error) {
	const op = "auth.Login"
	log := a.log.WithField("operation", op)

	user, err := a.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if stderrors.Is(err, errors.ErrUnknownUser) {
			log.Info("login attempt for unknown email")
			return nil, errors.ErrUnknownUser
		}
		return nil, fmt.Errorf("%s: lookup: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.WithField("user_id", user.ID).Info("login attempt with wrong password")
		return nil, errors.ErrInvalidCredentials
	}

	token, claims, err := a.issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: sign token: %w", op, err)
	}
	log.WithField("user_id", user.ID).Info("user logged in")
	return &Session{Token: token, UserID: user.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify validates a bearer token and returns its claims.
func (a *Authenticator) Verify(ctx context.Context, token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return nil, errors.ErrInvalidToken
	}

	if claims.ID != "" {
		revoked, err := a.revoked.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("auth.Verify: revocation lookup: %w", err)
		}
		if revoked {
			return nil, errors.ErrInvalidToken
		}
	}
	return claims, nil
}

// Revoke invalidates the token described by claims until its natural expiry.
func (a *Authenticator) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return errors.ErrInvalidToken
	}
	if err := a.revoked.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("auth.Revoke: %w", err)
	}
	a.log.WithFields(logrus.Fields{"operation": "auth.Revoke", "user_id": claims.UserID}).Info("token revoked")
	return nil
}

// Users lists every registered user for assignee selection.
func (a *Authenticator) Users(ctx context.Context) ([]models.UserSummary, error) {
	users, err := a.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth.Users: %w", err)
	}
	return users, nil
}

func (a *Authenticator) issue(userID string) (string, *Claims, error) {
	now := a.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
