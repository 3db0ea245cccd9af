package service

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/spec-kit/tradebot/internal/auth"
	"github.com/spec-kit/tradebot/internal/config"
	"github.com/spec-kit/tradebot/internal/domain"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

// AuthService issues admin tokens.
type AuthService struct {
	tokenMgr      *auth.TokenManager
	adminUsername string
	adminHash     string
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, tokens *auth.TokenManager) *AuthService {
	return &AuthService{
		tokenMgr:      tokens,
		adminUsername: cfg.AdminUsername,
		adminHash:     cfg.AdminPasswordHash,
	}
}

// LoginAdmin checks the configured admin credentials and returns a bearer token.
func (s *AuthService) LoginAdmin(_ context.Context, username, password string) (string, domain.Token, error) {
	if s.adminHash == "" {
		return "", domain.Token{}, apperrors.NewUnauthorized("admin login disabled")
	}
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(s.adminUsername)) == 1
	if err := auth.ComparePassword(s.adminHash, password); err != nil || !userOK {
		return "", domain.Token{}, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.tokenMgr.GenerateToken(s.adminUsername, domain.SubjectTypeAdmin)
}
