/**
 * @description
 * This file defines the pluggable challenge verification seam used during the
 * connection handshake. The engine never hardcodes how a challenge response is
 * checked; deployments swap in an OTP gateway, a core-banking call, or any
 * other verifier without touching the protocol flow.
 *
 * @dependencies
 * - context, errors, strings: Standard Go libraries.
 * - internal/domain: Account model.
 */

package app

import (
	"context"
	"errors"
	"strings"

	"github.com/dfcbank/settlement-service/internal/domain"
)

// ChallengeVerifier checks an auth challenge response for the given account.
// A non-nil error rejects the handshake.
type ChallengeVerifier interface {
	Verify(ctx context.Context, account *domain.Account, challengeResponse string) error
}

// StaticChallengeVerifier accepts any non-empty challenge response. It is the
// default verifier for environments without an OTP backend.
type StaticChallengeVerifier struct{}

func (v *StaticChallengeVerifier) Verify(ctx context.Context, account *domain.Account, challengeResponse string) error {
	if strings.TrimSpace(challengeResponse) == "" {
		return errors.New("empty challenge response")
	}
	return nil
}
