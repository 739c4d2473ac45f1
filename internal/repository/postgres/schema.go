package postgres

// Schema creates the target configuration tables. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS month_targets (
		month                  CHAR(7) PRIMARY KEY,
		monthly_target         NUMERIC(20, 2) NOT NULL DEFAULT 0,
		weekday_implied        NUMERIC(20, 2) NOT NULL DEFAULT 0,
		weekend_target_per_day NUMERIC(20, 2) NOT NULL DEFAULT 0,
		holiday_target_per_day NUMERIC(20, 2) NOT NULL DEFAULT 0,
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS month_target_holidays (
		month CHAR(7) NOT NULL REFERENCES month_targets(month) ON DELETE CASCADE,
		day   SMALLINT NOT NULL CHECK (day BETWEEN 1 AND 31),
		PRIMARY KEY (month, day)
	)`,
}
