package migrations

// ScanRuns adds the monitor run statistics table.
var ScanRuns = &Migration{
	Name: "002_scan_runs",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS scan_runs (
			id SERIAL PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			processed INTEGER NOT NULL,
			conflicts INTEGER NOT NULL,
			cleared INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			errored INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_scan_runs_started_at ON scan_runs (started_at);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS scan_runs;
	`,
}
