package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

const approvalIssuer = "ticket-channels"

// ErrApprovalMismatch is returned for a valid token that belongs to another
// ticket, requester or creator.
var ErrApprovalMismatch = errors.New("close approval does not match ticket")

// CloseApprovals issues and verifies signed close-approval tokens. A token
// is sent to the ticket creator when a team member requests closure and lets
// the creator confirm the close under the approval policy.
type CloseApprovals struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCloseApprovals builds a manager.
func NewCloseApprovals(secret string, ttl time.Duration, now func() time.Time) *CloseApprovals {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &CloseApprovals{secret: []byte(secret), ttl: ttl, now: now}
}

// ApprovalClaims describes the JWT payload.
type ApprovalClaims struct {
	GuildID     string `json:"guild"`
	TicketID    int64  `json:"ticket"`
	RequestedBy string `json:"requested_by"`
	jwt.RegisteredClaims
}

// Issue signs an approval for the ticket's creator.
func (a *CloseApprovals) Issue(t *domain.Ticket, requestedBy string) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := &ApprovalClaims{
		GuildID:     t.GuildID,
		TicketID:    t.ID,
		RequestedBy: requestedBy,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    approvalIssuer,
			Subject:   t.CreatorID,
			Audience:  jwt.ClaimStrings{audience(t)},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse validates signature and expiry and returns the claims.
func (a *CloseApprovals) Parse(tokenStr string) (*ApprovalClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &ApprovalClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithIssuer(approvalIssuer), jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*ApprovalClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// VerifyCloseApproval checks that token approves closing t by actorID. The
// approval must match the ticket's pending close request.
func (a *CloseApprovals) VerifyCloseApproval(_ context.Context, token string, t *domain.Ticket, actorID string) error {
	claims, err := a.Parse(token)
	if err != nil {
		return err
	}
	switch {
	case claims.GuildID != t.GuildID || claims.TicketID != t.ID:
		return fmt.Errorf("%w: ticket", ErrApprovalMismatch)
	case claims.Subject != t.CreatorID || actorID != t.CreatorID:
		return fmt.Errorf("%w: creator", ErrApprovalMismatch)
	case t.CloseRequest == nil || t.CloseRequest.RequestedBy != claims.RequestedBy:
		return fmt.Errorf("%w: request", ErrApprovalMismatch)
	}
	return nil
}

func audience(t *domain.Ticket) string {
	return t.GuildID + "/" + strconv.FormatInt(t.ID, 10)
}
