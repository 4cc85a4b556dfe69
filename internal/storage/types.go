package storage

import "time"

// Axis selects which pair of tables a query runs against.
type Axis int

const (
	// AxisPage keys records by exact URI.
	AxisPage Axis = iota
	// AxisOrigin keys records by scheme://host[:port].
	AxisOrigin
)

func (a Axis) String() string {
	if a == AxisOrigin {
		return "origin"
	}
	return "page"
}

// TopLevelRecord is a navigation target the user has loaded.
type TopLevelRecord struct {
	ID        int64
	Key       string
	LoadCount int
	LastLoad  time.Time
}

// SubresourceRecord is something fetched while its parent was loading.
type SubresourceRecord struct {
	ID       int64
	ParentID int64
	Key      string
	HitCount int
	LastHit  time.Time
}

// RedirectRecord is a known redirect away from a top-level page.
type RedirectRecord struct {
	ID       int64
	ParentID int64
	URI      string
	Origin   string
	HitCount int
	LastHit  time.Time
}

// StartupPageRecord is an origin loaded shortly after process start.
type StartupPageRecord struct {
	ID       int64
	Origin   string
	HitCount int
	LastHit  time.Time
}

// StartupCounter is the singleton row counting process startups.
type StartupCounter struct {
	Count       int
	LastStartup time.Time
}

// Stats holds row counts for every table plus the startup counter.
type Stats struct {
	Tables            []TableCount
	Startups          StartupCounter
	DatabaseSizeBytes int64
}

// TableCount pairs a table name with its row count.
type TableCount struct {
	Table string
	Rows  int64
}

func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}
