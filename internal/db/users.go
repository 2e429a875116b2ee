package db

import (
	"context"
	"fmt"
	"time"

	"github.com/Foundryproject/Donna/internal/model"
)

// GetOrCreateUser returns the user record for identity, lazily creating
// it with the default timezone and no credential. The insert and the
// read are each atomic, so concurrent first references converge on one
// row.
func (db *DB) GetOrCreateUser(ctx context.Context, identity string) (*model.User, error) {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (identity, credential, timezone, created_at, updated_at)
		VALUES (?, '', ?, ?, ?)
		ON CONFLICT(identity) DO NOTHING`,
		identity, db.defaultTZ, now, now)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	var u model.User
	err = db.QueryRowContext(ctx,
		"SELECT identity, credential, timezone FROM users WHERE identity = ?",
		identity,
	).Scan(&u.Identity, &u.Credential, &u.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

// SetCredential stores the long-lived calendar credential for identity,
// creating the user record if it does not exist yet.
func (db *DB) SetCredential(ctx context.Context, identity, credential string) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (identity, credential, timezone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			credential = excluded.credential,
			updated_at = excluded.updated_at`,
		identity, credential, db.defaultTZ, now, now)
	return err
}

// SetTimezone updates the preferred timezone for identity. The tzid is
// not validated here; a bad value surfaces later as a conversion error.
func (db *DB) SetTimezone(ctx context.Context, identity, tzid string) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (identity, credential, timezone, created_at, updated_at)
		VALUES (?, '', ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			timezone   = excluded.timezone,
			updated_at = excluded.updated_at`,
		identity, tzid, now, now)
	return err
}
