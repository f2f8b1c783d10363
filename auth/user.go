// Copyright 2025 The Go A2A Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package auth provides the authentication hook of the task service. The
// server asks an [Authenticator] for the caller of every HTTP request and
// carries the resulting [User] in the request context. No credential scheme
// is built in: [Anonymous] accepts everyone.
package auth

import (
	"context"
	"errors"
	"net/http"
)

// ErrUnauthenticated is returned by an [Authenticator] that rejects a request.
var ErrUnauthenticated = errors.New("unauthenticated")

// User represents an authenticated or unauthenticated caller.
type User interface {
	// IsAuthenticated returns true if the user is authenticated, false otherwise.
	IsAuthenticated() bool

	// UserName returns the username of the user. For unauthenticated users,
	// this returns an empty string.
	UserName() string
}

// UnauthenticatedUser is the [User] of requests without credentials. The
// zero value is ready to use.
type UnauthenticatedUser struct{}

var _ User = UnauthenticatedUser{}

// IsAuthenticated always returns false for unauthenticated users.
func (UnauthenticatedUser) IsAuthenticated() bool { return false }

// UserName always returns an empty string for unauthenticated users.
func (UnauthenticatedUser) UserName() string { return "" }

// NamedUser is an authenticated [User] identified by name.
type NamedUser string

var _ User = NamedUser("")

// IsAuthenticated reports whether the name is not empty.
func (u NamedUser) IsAuthenticated() bool { return u != "" }

// UserName returns the name.
func (u NamedUser) UserName() string { return string(u) }

// Authenticator resolves the caller of an HTTP request. Returning an error
// rejects the request; wrap [ErrUnauthenticated] for missing or invalid
// credentials.
type Authenticator interface {
	Authenticate(r *http.Request) (User, error)
}

// AuthenticatorFunc adapts a function to [Authenticator].
type AuthenticatorFunc func(r *http.Request) (User, error)

// Authenticate implements [Authenticator].
func (f AuthenticatorFunc) Authenticate(r *http.Request) (User, error) { return f(r) }

// Anonymous accepts every request as [UnauthenticatedUser].
var Anonymous Authenticator = AuthenticatorFunc(func(*http.Request) (User, error) {
	return UnauthenticatedUser{}, nil
})

type userKey struct{}

// NewContext returns a copy of ctx carrying user.
func NewContext(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// FromContext returns the user stored in ctx, or [UnauthenticatedUser].
func FromContext(ctx context.Context) User {
	if u, ok := ctx.Value(userKey{}).(User); ok && u != nil {
		return u
	}
	return UnauthenticatedUser{}
}
