package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Roles carried inside the JWT. Agents of a contractor authenticate with
// RoleContractor plus the contractor id they act for.
const (
	RoleSuperAdmin = "superAdmin"
	RoleAdmin      = "admin"
	RoleContractor = "contractor"
)

type Service struct {
	jwtSecret string
	ttl       time.Duration
}

type Claims struct {
	Wallet       string `json:"wallet"`
	Role         string `json:"role"`
	ContractorID uint64 `json:"contractor_id,omitempty"`
	jwt.RegisteredClaims
}

func NewService(jwtSecret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		jwtSecret: jwtSecret,
		ttl:       ttl,
	}
}

// IssueToken mints a signed token binding a wallet address to a role
func (s *Service) IssueToken(wallet, role string, contractorID uint64) (string, error) {
	claims := &Claims{
		Wallet:       wallet,
		Role:         role,
		ContractorID: contractorID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	// Remove "Bearer " prefix if present
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
