// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentcard builds the agent cards published for discovery and
// returned by GetExtendedAgentCard, with optional signing, signature
// verification and policy checks.
package agentcard

import (
	"context"

	"github.com/go-json-experiment/json"

	"github.com/go-a2a/a2a-taskd"
)

// Catalog provides the cards of this agent.
type Catalog interface {
	// DiscoveryCard returns the card served on the well-known path.
	DiscoveryCard(ctx context.Context) (*a2a.AgentCard, error)

	// ExtendedCard returns the card returned to authenticated callers.
	ExtendedCard(ctx context.Context) (*a2a.AgentCard, error)

	// Signature signs card. It returns an empty string when signing is
	// disabled.
	Signature(ctx context.Context, card *a2a.AgentCard) (string, error)
}

// Identity describes the agent in its cards.
type Identity struct {
	AgentID     string
	Name        string
	Description string
	EndpointURL string
}

// Option represents an option for configuring a [DefaultCatalog].
type Option func(*DefaultCatalog)

// WithSigner sets the card [Signer].
func WithSigner(s Signer) Option {
	return func(c *DefaultCatalog) {
		c.signer = s
	}
}

// WithVerifier sets the [Verifier] applied to every produced signature.
func WithVerifier(v Verifier) Option {
	return func(c *DefaultCatalog) {
		c.verifier = v
	}
}

// WithPolicyChecker sets the [PolicyChecker] applied to every card.
func WithPolicyChecker(p PolicyChecker) Option {
	return func(c *DefaultCatalog) {
		c.policy = p
	}
}

// DefaultCatalog is the [Catalog] describing this task service.
type DefaultCatalog struct {
	id       Identity
	signer   Signer
	verifier Verifier
	policy   PolicyChecker
}

var _ Catalog = (*DefaultCatalog)(nil)

// NewCatalog returns a DefaultCatalog for id. Without options cards are
// unsigned and every card passes.
func NewCatalog(id Identity, opts ...Option) *DefaultCatalog {
	c := &DefaultCatalog{
		id:       id,
		signer:   NoopSigner{},
		verifier: AllowAllVerifier{},
		policy:   AllowAllPolicy{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DiscoveryCard implements [Catalog].
func (c *DefaultCatalog) DiscoveryCard(ctx context.Context) (*a2a.AgentCard, error) {
	card := c.baseCard()
	card.Metadata = map[string]any{"discovery": true}
	if err := c.check(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

// ExtendedCard implements [Catalog]. When signing is enabled the signature
// of the card without metadata is embedded as metadata.jws.
func (c *DefaultCatalog) ExtendedCard(ctx context.Context) (*a2a.AgentCard, error) {
	card := c.baseCard()
	sig, err := c.Signature(ctx, card)
	if err != nil {
		return nil, err
	}

	card.Metadata = map[string]any{
		"discovery": true,
		"extended":  true,
		"securityHooks": map[string]any{
			"signing":      true,
			"verification": true,
			"policyChecks": true,
		},
	}
	if sig != "" {
		card.Metadata["jws"] = sig
	}
	if err := c.check(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

// Signature implements [Catalog]. The card is signed in its deterministic
// JSON encoding; a signature the verifier rejects is an internal fault.
func (c *DefaultCatalog) Signature(ctx context.Context, card *a2a.AgentCard) (string, error) {
	canonical, err := Canonical(card)
	if err != nil {
		return "", a2a.NewInternalError("Failed to sign agent card", err)
	}
	sig, err := c.signer.Sign(ctx, canonical)
	if err != nil {
		return "", a2a.NewInternalError("Failed to sign agent card", err)
	}
	if sig == "" {
		return "", nil
	}
	ok, err := c.verifier.Verify(ctx, canonical, sig)
	if err != nil {
		return "", a2a.NewInternalError("Agent card signature verification failed", err)
	}
	if !ok {
		return "", a2a.NewInternalError("Agent card signature verification failed", nil)
	}
	return sig, nil
}

func (c *DefaultCatalog) check(ctx context.Context, card *a2a.AgentCard) error {
	if err := c.policy.Check(ctx, card); err != nil {
		return a2a.NewInternalError("Agent card policy check failed", err)
	}
	return nil
}

func (c *DefaultCatalog) baseCard() *a2a.AgentCard {
	return &a2a.AgentCard{
		AgentID:     c.id.AgentID,
		Name:        c.id.Name,
		Description: c.id.Description,
		EndpointURL: c.id.EndpointURL,
		Version:     a2a.CardVersion,
		Capabilities: &a2a.AgentCapabilities{
			Streaming:         true,
			PushNotifications: true,
			StatefulTasks:     true,
			SupportedMethods:  a2a.CoreMethods(),
		},
		SecuritySchemes: map[string]a2a.AgentSecurityScheme{
			"bearerAuth": {
				Type:        "http",
				Scheme:      "bearer",
				Description: "Bearer token authentication",
				Scopes:      []string{"a2a.read", "a2a.write"},
			},
		},
		DefaultInputModes:  []string{"application/json", "text/plain"},
		DefaultOutputModes: []string{"application/json", "text/event-stream"},
	}
}

// Canonical returns the deterministic JSON encoding of card that signatures
// are computed over.
func Canonical(card *a2a.AgentCard) ([]byte, error) {
	return json.Marshal(card, json.Deterministic(true))
}
