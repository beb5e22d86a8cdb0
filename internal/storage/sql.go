package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	selectOldestReadingSQL = `
SELECT MIN(created)
FROM (SELECT MIN(created) AS created FROM wifi
      UNION ALL
      SELECT MIN(created) FROM bluetooth
      UNION ALL
      SELECT MIN(created) FROM gsm
      UNION ALL
      SELECT MIN(created) FROM wcdma
      UNION ALL
      SELECT MIN(created) FROM lte
      UNION ALL
      SELECT MIN(created) FROM new_radio
      UNION ALL
      SELECT MIN(created) FROM cdma)`

	insertEventSQL = `
INSERT INTO event (event_type, created)
VALUES (?, ?)`

	insertTop5SQL = `
INSERT OR IGNORE INTO top_5_signals (signals, signals_date)
VALUES (?, ?)`

	selectTop5SQL = `
SELECT
    signals_date,
    signals
FROM top_5_signals
WHERE
    signals_date = ?`

	selectTop5RangeSQL = `
SELECT
    COUNT(*),
    IFNULL(MIN(signals_date), 0),
    IFNULL(MAX(signals_date), 0)
FROM top_5_signals`

	selectTop5ListSQL = `
SELECT
    signals_date,
    signals
FROM top_5_signals
WHERE
    signals_date >= ? AND signals_date < ?
ORDER BY signals_date`

	insertDailyStatSQL = `
INSERT OR IGNORE INTO daily_stat_summary (dbm, number_of_new_sources, summary_date)
VALUES (?, ?, ?)`

	selectDailyStatSQL = `
SELECT
    summary_date,
    dbm,
    number_of_new_sources
FROM daily_stat_summary
WHERE
    summary_date = ?`

	selectDailyStatRangeSQL = `
SELECT
    COUNT(*),
    IFNULL(MIN(summary_date), 0),
    IFNULL(MAX(summary_date), 0)
FROM daily_stat_summary`

	selectDailyStatListSQL = `
SELECT
    summary_date,
    dbm,
    number_of_new_sources
FROM daily_stat_summary
WHERE
    summary_date >= ? AND summary_date < ?
ORDER BY summary_date`

	selectStateSQL = `
SELECT value
FROM engine_state
WHERE
    name = ?`

	// the stored value never moves backwards
	upsertMonotonicStateSQL = `
INSERT INTO engine_state (name, value)
VALUES (?, ?)
ON CONFLICT (name) DO UPDATE SET value = MAX(value, excluded.value)`

	deleteTop5BeforeSQL = `
DELETE FROM top_5_signals
WHERE
    signals_date < ?`

	deleteDailyStatBeforeSQL = `
DELETE FROM daily_stat_summary
WHERE
    summary_date < ?`

	upsertOperatorSQL = `
INSERT OR REPLACE INTO operators (mcc, mnc, operator_name)
VALUES (?, ?, ?)`

	selectOperatorSQL = `
SELECT operator_name
FROM operators
WHERE
    mcc = ? AND mnc = ?`
)

// Tables holding per-observation rows that are trimmed together with the readings.
var auxiliaryTables = []string{"orientation", "white_zone", "event"}

const watermarkStateName = "retention_watermark"
