package storage

import (
	"github.com/roman-kulish/signal-exposure/internal/signal"
)

// DailyStat is the exposure summary of one calendar day.
type DailyStat struct {
	Day        int64 `json:"day"`        // Local midnight of the day, epoch milliseconds
	Dbm        int   `json:"dbm"`        // Exposure derived from the average power of the day's valid hours
	NewSources int   `json:"newSources"` // Number of Wi-Fi and Bluetooth sources seen for the first time
}

// Top5Record holds the strongest distinct antennas of one calendar day.
type Top5Record struct {
	Day     int64            `json:"day"`     // Local midnight of the day, epoch milliseconds
	Signals []signal.Reading `json:"signals"` // At most five readings, strongest first
}

// DateRange is the span of days covered by a summary table.
type DateRange struct {
	Count  int64 // Number of stored days
	Oldest int64 // Oldest stored day, epoch milliseconds, 0 when empty
	Newest int64 // Newest stored day, epoch milliseconds, 0 when empty
}

// Empty reports whether the table holds no day at all.
func (r DateRange) Empty() bool {
	return r.Count == 0
}

// Operator maps a country and network code pair to a carrier name.
type Operator struct {
	MCC  int
	MNC  int
	Name string
}

// PurgeRequest describes one retention pass. All timestamps are epoch milliseconds.
type PurgeRequest struct {
	Watermark  int64 // Oldest timestamp still retained, persisted without moving backwards
	Cutoff     int64 // Readings, auxiliary rows and daily summaries before it are deleted
	Top5Cutoff int64 // Top-5 records before it are deleted
}
