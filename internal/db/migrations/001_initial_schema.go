package migrations

// InitialSchema creates the upload, record and statistics tables
var InitialSchema = &Migration{
	ID:   "001_initial_schema",
	Name: "001_initial_schema",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS flight_uploads (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			record_count INTEGER NOT NULL,
			icao_code TEXT NOT NULL,
			data_date TIMESTAMPTZ,
			expected_total INTEGER NOT NULL DEFAULT 0,
			source TEXT
		);

		CREATE TABLE IF NOT EXISTS flight_records (
			id BIGSERIAL PRIMARY KEY,
			upload_id TEXT NOT NULL REFERENCES flight_uploads (id),
			position INTEGER NOT NULL,
			timestamp TIMESTAMPTZ,
			matricula TEXT NOT NULL,
			tipo_aeronave TEXT NOT NULL,
			flight_class TEXT NOT NULL,
			origem TEXT NOT NULL,
			destino TEXT NOT NULL,
			regra_voo TEXT NOT NULL,
			pista TEXT NOT NULL DEFAULT '',
			responsavel TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_flight_records_upload ON flight_records (upload_id, position);

		CREATE TABLE IF NOT EXISTS system_stats (
			time TIMESTAMPTZ NOT NULL,
			raw_logs BIGINT NOT NULL,
			uploads_saved BIGINT NOT NULL,
			failed_logs BIGINT NOT NULL,
			lines_accepted BIGINT NOT NULL,
			lines_skipped BIGINT NOT NULL,
			records_saved BIGINT NOT NULL,
			line_failures BIGINT NOT NULL,
			field_misses BIGINT[] NOT NULL,
			processing_time_ms BIGINT NOT NULL,
			uptime_seconds BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_system_stats_time ON system_stats (time DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS system_stats;
		DROP TABLE IF EXISTS flight_records;
		DROP TABLE IF EXISTS flight_uploads;
	`,
}
