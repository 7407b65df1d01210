package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fimin-dev/food-delivery-api/internal/models"
	"github.com/fimin-dev/food-delivery-api/pkg/config"
)

// TokenService mints and validates access tokens and generates opaque refresh
// token values. Access tokens are HS256 JWTs whose jti binds them to exactly
// one session row; refresh tokens are random strings with no structure.
type TokenService struct {
	secret    []byte
	issuer    string
	expiry    time.Duration
	clockSkew time.Duration
}

// NewTokenService constructs a TokenService from JWT configuration.
func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		expiry:    cfg.Expiration,
		clockSkew: cfg.ClockSkew,
	}
}

// IssueAccessToken returns a signed access token for the user together with
// the generated jti.
func (s *TokenService) IssueAccessToken(user *models.User) (string, string, error) {
	issuedAt := time.Now().UTC()
	jti := uuid.NewString()

	claims := &models.AccessClaims{
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// IssueRefreshToken returns a cryptographically random opaque string.
func (s *TokenService) IssueRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ParseStructural verifies signature and issuer but deliberately skips
// time-based claim checks. The refresh endpoint has to accept an access token
// that has already expired; that is the common case when clients refresh.
func (s *TokenService) ParseStructural(tokenString string) (*models.AccessClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &models.AccessClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, s.keyFunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.Issuer != s.issuer {
		return nil, jwt.ErrTokenInvalidIssuer
	}
	return claims, nil
}

// ParseFresh fully validates an access token, including expiry with the
// configured clock-skew leeway. Used by every protected endpoint.
func (s *TokenService) ParseFresh(tokenString string) (*models.AccessClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.clockSkew),
	)

	claims := &models.AccessClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, s.keyFunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

func (s *TokenService) keyFunc(token *jwt.Token) (interface{}, error) {
	if token.Method != jwt.SigningMethodHS256 {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}
