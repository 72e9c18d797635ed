package access_logging

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLStore keeps one access_grant row per flattened grant of every emitted entry.
// The statements are portable across the mysql and sqlite drivers.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS access_grant (
	run_timestamp VARCHAR(32) NOT NULL,
	username VARCHAR(255) NOT NULL,
	namespace VARCHAR(255) NOT NULL,
	resource VARCHAR(255) NOT NULL,
	verb VARCHAR(64) NOT NULL,
	is_cluster BOOLEAN NOT NULL,
	role_kind VARCHAR(32) NOT NULL,
	role_name VARCHAR(255) NOT NULL,
	binding_kind VARCHAR(32) NOT NULL,
	binding_name VARCHAR(255) NOT NULL
)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate access_grant: %w", err)
	}
	return nil
}

// Write stores the entry atomically
func (s *SQLStore) Write(ctx context.Context, entry AccessLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO access_grant (
	run_timestamp, username, namespace, resource, verb, is_cluster,
	role_kind, role_name, binding_kind, binding_name
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, grant := range Flatten(entry.Accesses) {
		if _, err := stmt.ExecContext(ctx,
			entry.Timestamp, entry.Username, grant.Namespace, grant.Resource, grant.Verb, grant.IsCluster,
			grant.RoleKind, grant.RoleName, grant.BindingKind, grant.BindingName,
		); err != nil {
			return fmt.Errorf("failed to insert access grant for %s: %w", entry.Username, err)
		}
	}

	return tx.Commit()
}

// StoredGrant is one row of access_grant
type StoredGrant struct {
	RunTimestamp string
	Username     string
	FlattenedAccess
}

// GrantsFor returns the stored rows of a user, oldest run first
func (s *SQLStore) GrantsFor(ctx context.Context, username string) ([]StoredGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_timestamp, username, namespace, resource, verb, is_cluster,
	role_kind, role_name, binding_kind, binding_name
FROM access_grant WHERE username = ?
ORDER BY run_timestamp, is_cluster DESC, namespace, resource, verb`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []StoredGrant
	for rows.Next() {
		var g StoredGrant
		if err := rows.Scan(&g.RunTimestamp, &g.Username, &g.Namespace, &g.Resource, &g.Verb, &g.IsCluster,
			&g.RoleKind, &g.RoleName, &g.BindingKind, &g.BindingName); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
