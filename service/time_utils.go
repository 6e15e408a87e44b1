package service

import "time"

// NowMillis returns the current wall clock as epoch milliseconds. All
// game-state timestamps use this representation.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// CivilDate formats an epoch-ms timestamp as YYYY-MM-DD in the reference
// timezone. Once-per-day semantics compare civil dates, not epoch-day
// arithmetic, so day boundaries match the designated zone.
func CivilDate(millis int64, loc *time.Location) string {
	return time.UnixMilli(millis).In(loc).Format("2006-01-02")
}
