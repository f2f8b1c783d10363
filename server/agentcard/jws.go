// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agentcard

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"
)

// JWSSigner signs cards as compact HS256 JSON Web Signatures and verifies
// them with the same key.
type JWSSigner struct {
	key []byte
}

var (
	_ Signer   = (*JWSSigner)(nil)
	_ Verifier = (*JWSSigner)(nil)
)

// NewJWSSigner returns a JWSSigner keyed with key.
func NewJWSSigner(key []byte) (*JWSSigner, error) {
	if len(key) == 0 {
		return nil, errors.New("agent card signing key is empty")
	}
	return &JWSSigner{key: bytes.Clone(key)}, nil
}

// Sign implements [Signer].
func (s *JWSSigner) Sign(_ context.Context, canonical []byte) (string, error) {
	signed, err := jws.Sign(canonical, jws.WithKey(jwa.HS256(), s.key))
	if err != nil {
		return "", fmt.Errorf("sign agent card: %w", err)
	}
	return string(signed), nil
}

// Verify implements [Verifier]. The signature must carry exactly canonical
// as its payload.
func (s *JWSSigner) Verify(_ context.Context, canonical []byte, signature string) (bool, error) {
	payload, err := jws.Verify([]byte(signature), jws.WithKey(jwa.HS256(), s.key))
	if err != nil {
		return false, nil
	}
	return bytes.Equal(payload, canonical), nil
}
