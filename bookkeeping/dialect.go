package bookkeeping

// Dialect supplies the column type names used when provisioning the
// bookkeeping tables. The engine itself only ever speaks portable
// INSERT/UPDATE/DELETE/SELECT, so the dialect surface stays this small.
type Dialect interface {
	TypeString() string
	TypeInt64() string
	TypeBool() string
	TypeDatetime() string
}

// StandardSQL emits the warehouse-native column types. This is the default
// dialect and produces the canonical bookkeeping schema:
// name:STRING, batch:INT64, migration_time:DATETIME / is_locked:BOOL,
// locked_at:DATETIME.
type StandardSQL struct{}

func (StandardSQL) TypeString() string   { return "STRING" }
func (StandardSQL) TypeInt64() string    { return "INT64" }
func (StandardSQL) TypeBool() string     { return "BOOL" }
func (StandardSQL) TypeDatetime() string { return "DATETIME" }

// Postgres maps the canonical column types onto PostgreSQL, for running the
// engine against a postgres-compatible warehouse through the gorm client.
type Postgres struct{}

func (Postgres) TypeString() string   { return "TEXT" }
func (Postgres) TypeInt64() string    { return "BIGINT" }
func (Postgres) TypeBool() string     { return "BOOLEAN" }
func (Postgres) TypeDatetime() string { return "TIMESTAMP" }
