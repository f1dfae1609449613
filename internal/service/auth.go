// Package service — AuthService cuida da autenticação administrativa do hub.
//
// O hub não tem usuários finais: quem autentica é o operador (dashboard,
// scripts de suporte) para acessar as rotas administrativas — reset de
// conversa, inspeção de estado. Um único credencial de admin, validado
// contra o hash bcrypt configurado no ambiente, troca por um JWT de acesso
// de curta duração.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/vendemais/vendas-hub-go/internal/domain"
)

var authTracer = otel.Tracer("service/auth")

// AuthService valida a senha de admin e emite/valida tokens de acesso.
type AuthService struct {
	passwordHash []byte
	jwtSecret    []byte
	accessTTL    time.Duration
	logger       *zap.Logger
}

// NewAuthService cria o serviço. passwordHash é o hash bcrypt da senha de
// admin (ADMIN_PASSWORD_HASH); vazio desabilita a emissão de tokens.
func NewAuthService(passwordHash, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		passwordHash: []byte(passwordHash),
		jwtSecret:    []byte(jwtSecret),
		accessTTL:    accessTTL,
		logger:       logger,
	}
}

// TokenResponse é a resposta de POST /v1/auth/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// ============================================================
// Token — POST /v1/auth/token
// ============================================================

// IssueToken valida a senha de admin e devolve um JWT de acesso.
func (s *AuthService) IssueToken(ctx context.Context, password string) (*TokenResponse, error) {
	_, span := authTracer.Start(ctx, "AuthService.IssueToken")
	defer span.End()

	if len(s.passwordHash) == 0 {
		s.logger.Warn("auth: token requested but ADMIN_PASSWORD_HASH not configured")
		return nil, &domain.ErrUnauthorized{Message: "Autenticação não configurada"}
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		s.logger.Warn("auth: invalid admin password attempt")
		return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
	}

	token, err := s.signAccessToken()
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.logger.Info("admin token issued", zap.Duration("ttl", s.accessTTL))
	return &TokenResponse{
		AccessToken: token,
		ExpiresIn:   int(s.accessTTL.Seconds()),
	}, nil
}

// ============================================================
// ValidateAccessToken — usado pelo middleware
// ============================================================

// JWTClaims são as claims dos tokens de acesso do hub.
type JWTClaims struct {
	Role string `json:"role"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido"}
	}
	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "Tipo de token inválido"}
	}

	return claims, nil
}

func (s *AuthService) signAccessToken() (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Role: "admin",
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "vendas-hub",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
