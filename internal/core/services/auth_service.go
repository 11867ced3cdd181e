package services

import (
	"errors"
	"time"

	"homehub/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")
)

type AuthService interface {
	GenerateToken(userID domain.UserID, username string, role domain.UserRole) (string, error)
	GenerateRefreshToken(userID domain.UserID) (string, error)
	// GenerateStreamToken mints the short-lived token a media player
	// carries as a query parameter (it cannot attach custom headers).
	GenerateStreamToken(userID domain.UserID) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
	// ValidateAnyToken accepts access and stream tokens alike; all live-
	// stream auth forms funnel through this one verification routine.
	ValidateAnyToken(tokenString string) (*Claims, error)
	CheckRole(userRole, requiredRole domain.UserRole) error
}

type Claims struct {
	UserID   domain.UserID   `json:"user_id"`
	Username string          `json:"username,omitempty"`
	Role     domain.UserRole `json:"role,omitempty"`
	Scope    string          `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

const (
	scopeAccess  = "access"
	scopeStream  = "stream"
	scopeRefresh = "refresh"
)

type authService struct {
	jwtSecret       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	streamTokenTTL  time.Duration
}

func NewAuthService(
	jwtSecret string,
	accessTokenTTL time.Duration,
	refreshTokenTTL time.Duration,
	streamTokenTTL time.Duration,
) AuthService {
	return &authService{
		jwtSecret:       []byte(jwtSecret),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		streamTokenTTL:  streamTokenTTL,
	}
}

func (s *authService) GenerateToken(userID domain.UserID, username string, role domain.UserRole) (string, error) {
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		Scope:    scopeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) GenerateRefreshToken(userID domain.UserID) (string, error) {
	claims := &Claims{
		UserID: userID,
		Scope:  scopeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.refreshTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) GenerateStreamToken(userID domain.UserID) (string, error) {
	claims := &Claims{
		UserID: userID,
		Scope:  scopeStream,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.streamTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope != scopeAccess {
		// Stream and refresh tokens never open the general API.
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *authService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope != scopeRefresh {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAnyToken accepts access and stream scopes. The segment
// endpoint serves both browsers holding a session cookie and players
// holding a minted stream token.
func (s *authService) ValidateAnyToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope == scopeRefresh {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *authService) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

func (s *authService) CheckRole(userRole, requiredRole domain.UserRole) error {
	roleHierarchy := map[domain.UserRole]int{
		domain.RoleViewer: 1,
		domain.RoleAdmin:  2,
	}

	if roleHierarchy[userRole] >= roleHierarchy[requiredRole] {
		return nil
	}
	return ErrUnauthorized
}
