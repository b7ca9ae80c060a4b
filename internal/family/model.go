package family

import "time"

// Record mirrors one row in the persistent `family` table.  A family is
// the content grouping unit (a product category, for instance) that owns
// zero or more refreshable pages.  The operational state is captured by
// two nullable timestamps:
//
//   - SuspendedAt – family is temporarily withheld from refreshes.
//   - DeletedAt   – family is permanently removed.
//
// Either timestamp being non-NULL prevents the cache from serving the
// family, so triggers against it resolve to "nothing to refresh."
type Record struct {
	ID          int64      `db:"id"`
	Alias       string     `db:"alias"`
	Name        string     `db:"name"`
	SuspendedAt *time.Time `db:"suspended_at"`
	DeletedAt   *time.Time `db:"deleted_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

// Diagnostic mirrors one row in the `diagnostic` table.  Diagnostics are
// a distinct content family with exactly one page archetype; they never
// enter the gamme resolver fan-out.
type Diagnostic struct {
	ID        int64     `db:"id"`
	Alias     string    `db:"alias"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}
