// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package flowstore

import (
	"context"
	"fmt"
	"strings"
)

type opener func(ctx context.Context, dsn, rest string) (Store, error)

var openers = map[string]opener{
	"memory": openMemory,
	"mem":    openMemory,
	"inmem":  openMemory,
	"sqlite": func(ctx context.Context, _, rest string) (Store, error) {
		if rest == "" {
			rest = ":memory:"
		}
		return OpenSQLite(ctx, rest)
	},
	"file": func(ctx context.Context, dsn, _ string) (Store, error) {
		return OpenSQLite(ctx, dsn)
	},
	"postgres": func(ctx context.Context, dsn, _ string) (Store, error) {
		return OpenPostgres(ctx, dsn)
	},
	"postgresql": func(ctx context.Context, dsn, _ string) (Store, error) {
		return OpenPostgres(ctx, dsn)
	},
}

func openMemory(context.Context, string, string) (Store, error) {
	return NewMemoryStore(), nil
}

// Open returns the Store selected by the scheme of dsn:
//
//	memory://                  in-process MemoryStore
//	sqlite://path/to/db        GormStore on SQLite (sqlite:// alone is in-memory)
//	file:path?opts             GormStore on SQLite, dsn passed as is
//	postgres://user@host/db    PostgresStore
//
// An empty dsn selects memory://.
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewMemoryStore(), nil
	}

	scheme, rest, ok := strings.Cut(dsn, ":")
	if !ok {
		return nil, fmt.Errorf("flowstore: dsn %q has no scheme", dsn)
	}
	open, ok := openers[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("flowstore: unsupported dsn scheme %q", scheme)
	}
	return open(ctx, dsn, strings.TrimPrefix(rest, "//"))
}
