package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"photoshare/internal/apperr"
	"photoshare/internal/models"
	"photoshare/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher turns plaintext passwords into stored hashes and checks them.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher is the bcrypt implementation of PasswordHasher.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher creates a hasher with bcrypt's default cost.
func NewBcryptHasher() BcryptHasher {
	return BcryptHasher{Cost: bcrypt.DefaultCost}
}

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

func (h BcryptHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", apperr.Validationf("password must be at most %d bytes", MaxPasswordBytes)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func (h BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Claims is what a verified token says about its bearer.
type Claims struct {
	UserID   string
	Username string
	Role     string
}

// TokenIssuer issues and verifies session tokens.
type TokenIssuer interface {
	Issue(user *models.User) (string, error)
	Validate(token string) (*Claims, error)
}

// JWTIssuer issues HS256-signed JWTs.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTIssuer creates a JWTIssuer whose tokens are valid for ttl.
func NewJWTIssuer(secret string, ttl time.Duration) *JWTIssuer {
	return &JWTIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue generates a signed token for user.
func (j *JWTIssuer) Issue(user *models.User) (string, error) {
	now := j.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
		"exp":      now.Add(j.ttl).Unix(),
		"iat":      now.Unix(),
	})

	tokenString, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// Validate parses and validates a token, returning its claims if valid.
func (j *JWTIssuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token: %w", apperr.ErrUnauthorized, err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized)
	}
	claims := &Claims{}
	claims.UserID, _ = mc["user_id"].(string)
	claims.Username, _ = mc["username"].(string)
	claims.Role, _ = mc["role"].(string)
	if claims.UserID == "" || claims.Username == "" {
		return nil, fmt.Errorf("%w: token is missing subject claims", apperr.ErrUnauthorized)
	}
	return claims, nil
}

// SignupRequest represents the request body for signup.
type SignupRequest struct {
	Username string `json:"username" validate:"required,max=100,excludesall=/\\"`
	Password string `json:"password" validate:"required,max=72"`
	Role     string `json:"role" validate:"required"`
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role"`
}

// AuthResult is returned by a successful signup or login.
type AuthResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// AuthService handles signup and credential verification.
type AuthService struct {
	userRepo repositories.UserRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, hasher PasswordHasher, tokens TokenIssuer, log zerolog.Logger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
		validate: validator.New(),
		log:      log.With().Str("component", "auth").Logger(),
		now:      time.Now,
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validationf("%v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed on '%s'", e.Field(), e.Tag()))
	}
	return apperr.Validationf("%s", strings.Join(fields, ", "))
}

// Signup registers a new user. The username is claimed with a create-if-absent
// write, so of two concurrent signups for one name exactly one succeeds and
// the other gets apperr.ErrAlreadyExists.
func (s *AuthService) Signup(ctx context.Context, username, password, role string) (*AuthResult, error) {
	req := SignupRequest{Username: username, Password: password, Role: role}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	hashed, err := s.hasher.Hash(password)
	if errors.Is(err, apperr.ErrValidation) {
		return nil, err
	}
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	user := &models.User{
		ID:        uuid.New().String(),
		Username:  username,
		Password:  hashed,
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}
	s.log.Info().Str("user_id", user.ID).Str("username", username).Msg("user registered")

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, apperr.Internal("issue token", err)
	}
	return &AuthResult{Token: token, User: user.Public()}, nil
}

// Login authenticates a user and returns a fresh token. Unknown users, role
// mismatches and wrong passwords all yield the same apperr.ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, username, password, role string) (*AuthResult, error) {
	req := LoginRequest{Username: username, Password: password, Role: role}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user.Role != role {
		return nil, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	}
	if err := s.hasher.Compare(user.Password, password); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, apperr.Internal("issue token", err)
	}
	return &AuthResult{Token: token, User: user.Public()}, nil
}

// ValidateToken verifies a bearer token and returns its claims.
func (s *AuthService) ValidateToken(token string) (*Claims, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		s.log.Debug().Err(err).Msg("token rejected")
		return nil, err
	}
	return claims, nil
}
