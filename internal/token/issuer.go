package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/nickthelegend/0rca-agent-template/internal/domain"
)

// tokenBytes gives 256 bits of entropy, hex-encoded to 64 characters.
const tokenBytes = 32

// Store persists access tokens. Implemented by the job store; faked in tests.
type Store interface {
	InsertAccessToken(ctx context.Context, t *domain.AccessToken) error
	GetAccessTokenByJob(ctx context.Context, jobID string) (*domain.AccessToken, error)
	LookupAccessToken(ctx context.Context, jobID, tokenValue string) (*domain.AccessToken, error)
}

// IssueContext captures where a token was issued: the paying address plus
// the network origin of the request.
type IssueContext struct {
	Address   string
	ClientIP  string
	UserAgent string
}

// Issuer mints and validates single-job bearer tokens. With BindContext set
// the issuance origin is enforced at validation time and mismatches fail
// closed; otherwise the origin is recorded for audit only.
type Issuer struct {
	store       Store
	bindContext bool
	logger      *slog.Logger
}

// NewIssuer creates an Issuer.
func NewIssuer(store Store, bindContext bool, logger *slog.Logger) *Issuer {
	return &Issuer{
		store:       store,
		bindContext: bindContext,
		logger:      logger,
	}
}

// Issue mints a fresh token for the job and persists it with the issuance
// context. The token value is returned exactly once.
func (i *Issuer) Issue(ctx context.Context, jobID string, ic IssueContext) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	tokenValue := hex.EncodeToString(buf)

	rec := &domain.AccessToken{
		JobID:     jobID,
		Token:     tokenValue,
		Address:   ic.Address,
		ClientIP:  ic.ClientIP,
		UserAgent: ic.UserAgent,
	}

	if err := i.store.InsertAccessToken(ctx, rec); err != nil {
		return "", err
	}

	i.logger.Info("Access token issued",
		slog.String("job_id", jobID),
	)

	return tokenValue, nil
}

// Validate checks a presented token against the job it claims to authorize.
// Returns domain.ErrInvalidToken on any mismatch.
func (i *Issuer) Validate(ctx context.Context, jobID, tokenValue string, ic IssueContext) error {
	rec, err := i.store.LookupAccessToken(ctx, jobID, tokenValue)
	if err != nil {
		return err
	}

	if i.bindContext {
		if rec.ClientIP != ic.ClientIP || rec.UserAgent != ic.UserAgent {
			i.logger.Warn("Access token context mismatch",
				slog.String("job_id", jobID),
			)
			return domain.ErrInvalidToken
		}
	}

	return nil
}

// ExistingForJob returns the token previously issued for a job. Used to
// answer a repeated valid payment submission without minting a second token.
func (i *Issuer) ExistingForJob(ctx context.Context, jobID string) (string, error) {
	rec, err := i.store.GetAccessTokenByJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return rec.Token, nil
}
