package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/config"
	"github.com/autofi/recommender/pkg/models"
)

// AuthService validates the marketplace's bearer tokens. Tokens are
// stateless; identity comes entirely from the signed claims.
type AuthService struct {
	config    *config.Config
	logger    *logrus.Logger
	jwtSecret []byte
}

func NewAuthService(cfg *config.Config, logger *logrus.Logger) *AuthService {
	return &AuthService{
		config:    cfg,
		logger:    logger,
		jwtSecret: []byte(cfg.Auth.JWTSecret),
	}
}

// GenerateToken mints a token for the given identity. The main site
// issues production tokens; this exists for tooling and tests.
func (s *AuthService) GenerateToken(userID int, name, email string, isAdmin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &models.AuthClaims{
		NameID:  strconv.Itoa(userID),
		Name:    name,
		Email:   email,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			Audience:  jwt.ClaimStrings{s.config.Auth.JWTAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken parses and verifies a bearer token and resolves the
// authenticated user.
func (s *AuthService) ValidateToken(tokenString string) (*models.AuthUser, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.config.Auth.JWTAlgorithm}),
	}
	if s.config.Auth.JWTAudience != "" {
		options = append(options, jwt.WithAudience(s.config.Auth.JWTAudience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.AuthClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID, err := resolveUserID(claims)
	if err != nil {
		return nil, err
	}

	return &models.AuthUser{
		UserID:  userID,
		Name:    claims.Name,
		Email:   claims.Email,
		IsAdmin: claims.IsAdmin,
	}, nil
}

// resolveUserID reads the numeric user id from the subject claim, or
// from nameid when tokens minted by the legacy issuer omit a subject.
func resolveUserID(claims *models.AuthClaims) (int, error) {
	for _, candidate := range []string{claims.Subject, claims.NameID} {
		if candidate == "" {
			continue
		}
		id, err := strconv.Atoi(candidate)
		if err != nil {
			return 0, fmt.Errorf("non-numeric user id claim %q", candidate)
		}
		return id, nil
	}
	return 0, fmt.Errorf("token carries no user id claim")
}
