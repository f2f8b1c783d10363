// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agentcard

import (
	"context"

	"github.com/go-a2a/a2a-taskd"
)

// Signer produces a detached signature of a canonical card document. An
// empty signature means the card is published unsigned.
type Signer interface {
	Sign(ctx context.Context, canonical []byte) (string, error)
}

// Verifier checks a signature produced by a [Signer].
type Verifier interface {
	Verify(ctx context.Context, canonical []byte, signature string) (bool, error)
}

// PolicyChecker rejects cards that must not be published.
type PolicyChecker interface {
	Check(ctx context.Context, card *a2a.AgentCard) error
}

// NoopSigner never signs.
type NoopSigner struct{}

// Sign implements [Signer].
func (NoopSigner) Sign(context.Context, []byte) (string, error) { return "", nil }

// AllowAllVerifier accepts every signature.
type AllowAllVerifier struct{}

// Verify implements [Verifier].
func (AllowAllVerifier) Verify(context.Context, []byte, string) (bool, error) { return true, nil }

// AllowAllPolicy accepts every card.
type AllowAllPolicy struct{}

// Check implements [PolicyChecker].
func (AllowAllPolicy) Check(context.Context, *a2a.AgentCard) error { return nil }
