package warehouse

import "context"

// Client is the handle to the analytical warehouse. The engine treats it as an
// external collaborator: it executes arbitrary SQL/DDL and reports affected-row
// counts, nothing more. A single Exec is atomic on the warehouse side; the
// affected-row count it returns is the only coordination primitive available.
type Client interface {
	// Exec runs a single statement and returns the number of rows it changed.
	Exec(ctx context.Context, query string, args ...interface{}) (int64, error)

	// SelectStrings runs a query whose result is a single string column and
	// returns the values in result order.
	SelectStrings(ctx context.Context, query string, args ...interface{}) ([]string, error)

	// SelectInt runs a query whose result is a single integer value.
	SelectInt(ctx context.Context, query string, args ...interface{}) (int64, error)

	// HasTable reports whether the named table exists in the dataset.
	HasTable(ctx context.Context, dataset, table string) (bool, error)
}
