package sqlitestore

import "time"

// timeLayout matches the teacher's RFC3339Nano timestamp columns.
const timeLayout = time.RFC3339Nano

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
