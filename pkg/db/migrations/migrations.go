// Package migrations contains all schema migrations for the sqlitestore
// persistence backend. Migrations use Rails-style timestamp versioning
// (YYYYMMDDHHmmss).
package migrations

import (
	"github.com/arcweave/agentcore/pkg/db"
)

// All returns all registered migrations in the correct order.
// New migrations should be added to this list.
func All() []db.Migration {
	return []db.Migration{
		Migration20260204163000CreateConversations(),
		Migration20260204163001AddPerformanceIndexes(),
	}
}
