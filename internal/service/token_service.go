package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/utils"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 365 * 24 * time.Hour
)

// TokenConfig carries the process-wide key pair and token lifetimes.
type TokenConfig struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenPair is what login, registration and rotation hand back to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenService is the only component that signs and verifies tokens and it
// owns the lifecycle of refresh token rows.
type TokenService struct {
	priv       *rsa.PrivateKey
	pub        *rsa.PublicKey
	accessTTL  time.Duration
	refreshTTL time.Duration
	tokens     *repository.TokenRepo
	logger     *slog.Logger
	now        func() time.Time
}

func NewTokenService(cfg TokenConfig, tokens *repository.TokenRepo, logger *slog.Logger) *TokenService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{
		priv:       cfg.PrivateKey,
		pub:        cfg.PublicKey,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		tokens:     tokens,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken signs a short-lived token over {sub, role}.  It has no
// storage side effect.
func (s *TokenService) IssueAccessToken(user model.User) (string, error) {
	now := s.now()
	claims := utils.AccessClaims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	tok, err := utils.SignRS256(s.priv, claims)
	if err != nil {
		s.logger.Error("sign access token", slog.Uint64("user_id", user.ID), slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", ErrKeySigning, err)
	}
	return tok, nil
}

// IssueRefreshToken persists a new refresh token row for user and returns the
// signed token bound to it.  The row is created first; a token is never
// signed for a row that does not exist.
func (s *TokenService) IssueRefreshToken(ctx context.Context, user model.User) (string, error) {
	tok, row, err := s.issueRefreshToken(ctx, s.tokens, user)
	if err != nil && row.ID != 0 {
		// the row is useless without a token
		if _, derr := s.tokens.Delete(ctx, row.ID); derr != nil {
			s.logger.Warn("drop unsigned refresh token row", slog.Uint64("token_id", row.ID), slog.Any("error", derr))
		}
	}
	return tok, err
}

// IssuePair issues an access token and a refresh token for user.
func (s *TokenService) IssuePair(ctx context.Context, user model.User) (TokenPair, error) {
	access, err := s.IssueAccessToken(user)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(ctx, user)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) issueRefreshToken(ctx context.Context, store *repository.TokenRepo, user model.User) (string, model.RefreshToken, error) {
	row, err := store.Create(ctx, user.ID, s.now().Add(s.refreshTTL))
	if err != nil {
		return "", model.RefreshToken{}, fmt.Errorf("persist refresh token: %w", err)
	}
	tok, err := s.signRefreshToken(user, row)
	return tok, row, err
}

// signRefreshToken takes the persisted row as input so the embedded id always
// names an existing row.
func (s *TokenService) signRefreshToken(user model.User, row model.RefreshToken) (string, error) {
	if row.ID == 0 || row.UserID != user.ID {
		return "", fmt.Errorf("refresh token row %d is not persisted for user %d", row.ID, user.ID)
	}
	id := strconv.FormatUint(row.ID, 10)
	claims := utils.RefreshClaims{
		Role: string(user.Role),
		ID:   row.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(user.ID, 10),
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(row.ExpiresAt),
		},
	}
	tok, err := utils.SignRS256(s.priv, claims)
	if err != nil {
		s.logger.Error("sign refresh token", slog.Uint64("user_id", user.ID), slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", ErrKeySigning, err)
	}
	return tok, nil
}

// VerifyAccessToken checks the signature, algorithm and expiry of an access
// token and decodes its payload.  Refresh tokens are rejected by shape: they
// carry a row id.
func (s *TokenService) VerifyAccessToken(raw string) (model.AuthPayload, error) {
	var c utils.RefreshClaims
	if err := utils.ParseRS256(raw, s.pub, &c, jwt.WithTimeFunc(s.now)); err != nil {
		return model.AuthPayload{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.ID != 0 || c.RegisteredClaims.ID != "" {
		return model.AuthPayload{}, fmt.Errorf("%w: refresh token presented as access token", ErrInvalidToken)
	}
	return payloadFromClaims(c.Subject, c.Role, 0)
}

// VerifyRefreshTokenClaims performs the same cryptographic checks as
// VerifyAccessToken and additionally extracts the embedded row id.  It does
// not consult storage; see IsRevoked.
func (s *TokenService) VerifyRefreshTokenClaims(raw string) (model.AuthPayload, error) {
	var c utils.RefreshClaims
	if err := utils.ParseRS256(raw, s.pub, &c, jwt.WithTimeFunc(s.now)); err != nil {
		return model.AuthPayload{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	tokenID := c.ID
	if tokenID == 0 && c.RegisteredClaims.ID != "" {
		if id, err := strconv.ParseUint(c.RegisteredClaims.ID, 10, 64); err == nil {
			tokenID = id
		}
	}
	return payloadFromClaims(c.Subject, c.Role, tokenID)
}

func payloadFromClaims(sub, role string, tokenID uint64) (model.AuthPayload, error) {
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || id == 0 {
		return model.AuthPayload{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	r, err := model.ParseRole(role)
	if err != nil {
		return model.AuthPayload{}, fmt.Errorf("%w: bad role", ErrInvalidToken)
	}
	return model.AuthPayload{Subject: id, Role: r, TokenID: tokenID}, nil
}

// ValidateRefreshRecord loads the refresh token row with its owner.  A
// missing row or a row past its expiry yields ErrRevokedToken.
func (s *TokenService) ValidateRefreshRecord(ctx context.Context, tokenID uint64) (model.RefreshToken, error) {
	return s.validateRecord(ctx, s.tokens, tokenID)
}

func (s *TokenService) validateRecord(ctx context.Context, store *repository.TokenRepo, tokenID uint64) (model.RefreshToken, error) {
	row, err := store.FindByIDWithUser(ctx, tokenID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.RefreshToken{}, fmt.Errorf("%w: token %d not found", ErrRevokedToken, tokenID)
	}
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("load refresh token: %w", err)
	}
	if row.Expired(s.now()) {
		return model.RefreshToken{}, fmt.Errorf("%w: token %d expired", ErrRevokedToken, tokenID)
	}
	return row, nil
}

// IsRevoked reports whether the refresh token described by p must be refused.
// It fails closed: a missing id, a missing or expired row, a row owned by a
// different subject, or any storage error all count as revoked.
func (s *TokenService) IsRevoked(ctx context.Context, p model.AuthPayload) bool {
	if p.TokenID == 0 {
		s.logger.Error("refresh token missing id in payload", slog.Uint64("sub", p.Subject))
		return true
	}
	row, err := s.tokens.FindByIDWithUser(ctx, p.TokenID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("refresh token not found in database", slog.Uint64("token_id", p.TokenID))
		return true
	case err != nil:
		s.logger.Error("error validating refresh token", slog.Uint64("token_id", p.TokenID), slog.Any("error", err))
		return true
	}
	if row.Expired(s.now()) {
		s.logger.Warn("refresh token expired", slog.Uint64("token_id", p.TokenID), slog.Time("expires_at", row.ExpiresAt))
		return true
	}
	if row.UserID != p.Subject {
		s.logger.Warn("refresh token subject mismatch", slog.Uint64("token_id", p.TokenID), slog.Uint64("sub", p.Subject))
		return true
	}
	return false
}

// DeleteRefreshRecord revokes one refresh token.  Deleting an id that no
// longer exists is not an error.
func (s *TokenService) DeleteRefreshRecord(ctx context.Context, tokenID uint64) error {
	if _, err := s.tokens.Delete(ctx, tokenID); err != nil {
		return err
	}
	return nil
}

// DeleteAllRefreshRecordsForUser revokes every refresh token of a user.
func (s *TokenService) DeleteAllRefreshRecordsForUser(ctx context.Context, userID uint64) error {
	n, err := s.tokens.DeleteAllForUser(ctx, userID)
	if err != nil {
		return err
	}
	s.logger.Info("revoked refresh tokens", slog.Uint64("user_id", userID), slog.Int64("count", n))
	return nil
}

// Rotate exchanges the refresh token row tokenID for a fresh token pair.
// The old row is deleted before the new one is created and both happen in
// one transaction.  The delete must remove exactly one row: when two
// requests rotate the same token concurrently only the first succeeds and
// the other gets ErrRevokedToken.
func (s *TokenService) Rotate(ctx context.Context, tokenID uint64) (model.User, TokenPair, error) {
	var (
		user model.User
		pair TokenPair
	)
	err := s.tokens.WithinTx(ctx, func(tx *repository.TokenRepo) error {
		row, err := s.validateRecord(ctx, tx, tokenID)
		if err != nil {
			return err
		}
		user = *row.User

		removed, err := tx.Delete(ctx, row.ID)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: token %d already rotated", ErrRevokedToken, row.ID)
		}

		access, err := s.IssueAccessToken(user)
		if err != nil {
			return err
		}
		refresh, _, err := s.issueRefreshToken(ctx, tx, user)
		if err != nil {
			return err
		}
		pair = TokenPair{AccessToken: access, RefreshToken: refresh}
		return nil
	})
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	return user, pair, nil
}
