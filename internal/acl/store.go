// internal/acl/store.go
//
// Small query helpers for admin access control.
//
// Context
// -------
// Publish and reject are destructive admin transitions, so they sit
// behind a role check.  The model lives in two tables:
//
//	admin_role  (admin, role)
//	role_acl    (role, component, action, permitted)
//
// The admin API needs fast answers to two questions:
//  1. Which *roles* does admin X have?              → `AdminRoles()`
//  2. Is any of these roles permitted for action A? → `RoleAllowed()`
//
// These helpers accept a plain *sql.DB and perform simple parameterised
// queries.  They are thin; callers may wrap the results in their own
// per-request cache.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
// • Max line length 100 columns.
package acl

import (
	"context"
	"database/sql"
)

// AdminRoles returns the role names bound to admin.
func AdminRoles(ctx context.Context, db *sql.DB, admin string) ([]string, error) {
	const q = `SELECT role FROM admin_role WHERE admin = ?`

	rows, err := db.QueryContext(ctx, q, admin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]string, 0, 4)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

// RoleAllowed reports whether *any* of the candidate roles is permitted for
// the given component + action.  It executes one query using IN (? … ?).
//
// Empty roles slice returns false, nil.
func RoleAllowed(ctx context.Context, db *sql.DB, roles []string, component, action string) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}

	// Construct the IN clause placeholders dynamically.
	placeholders := make([]byte, 0, len(roles)*2)
	args := make([]any, 0, len(roles)+2)
	for i, r := range roles {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, r)
	}
	args = append(args, component, action)

	q := `SELECT 1
            FROM role_acl
           WHERE role IN (` + string(placeholders) + `)
             AND component = ?
             AND action    = ?
             AND permitted = TRUE
           LIMIT 1` // early exit once we find a hit

	var dummy int
	err := db.QueryRowContext(ctx, q, args...).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AdminAllowed chains AdminRoles and RoleAllowed for the common case.
func AdminAllowed(ctx context.Context, db *sql.DB, admin, component, action string) (bool, error) {
	roles, err := AdminRoles(ctx, db, admin)
	if err != nil {
		return false, err
	}
	return RoleAllowed(ctx, db, roles, component, action)
}
