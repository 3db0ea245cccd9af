package service

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/tradebot/internal/auth"
	"github.com/spec-kit/tradebot/internal/config"
	"github.com/spec-kit/tradebot/internal/domain"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

func TestLoginAdmin(t *testing.T) {
	hash, err := auth.HashPassword("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	tokens := auth.NewTokenManager("jwt-secret", 10)
	svc := NewAuthService(config.AuthConfig{AdminUsername: "admin", AdminPasswordHash: hash}, tokens)

	token, meta, err := svc.LoginAdmin(context.Background(), "admin", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if meta.Subject != domain.SubjectTypeAdmin {
		t.Errorf("unexpected subject %s", meta.Subject)
	}
	if claims, err := tokens.ParseToken(token); err != nil || claims.SubjectID != "admin" {
		t.Errorf("token did not parse: %v", err)
	}

	for _, creds := range [][2]string{{"admin", "wrong"}, {"root", "s3cret"}} {
		if _, _, err := svc.LoginAdmin(context.Background(), creds[0], creds[1]); !errors.Is(err, apperrors.NewUnauthorized("")) {
			t.Errorf("%v: expected unauthorized, got %v", creds, err)
		}
	}

	disabled := NewAuthService(config.AuthConfig{AdminUsername: "admin"}, tokens)
	if _, _, err := disabled.LoginAdmin(context.Background(), "admin", ""); err == nil {
		t.Error("login without a configured hash must fail")
	}
}
