package migrations

// SummaryIndexes backs the per-user listing and the date-range aggregation
var SummaryIndexes = &Migration{
	ID:   "002_summary_indexes",
	Name: "002_summary_indexes",
	UpSQL: `
	CREATE INDEX IF NOT EXISTS idx_flight_uploads_user_created
		ON flight_uploads (user_id, created_at DESC);

	CREATE INDEX IF NOT EXISTS idx_flight_records_timestamp
		ON flight_records (timestamp)
		WHERE timestamp IS NOT NULL;
	`,
	DownSQL: `
	DROP INDEX IF EXISTS idx_flight_records_timestamp;
	DROP INDEX IF EXISTS idx_flight_uploads_user_created;
	`,
}
