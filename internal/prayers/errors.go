package prayers

import "errors"

var (
	ErrPrayerNotFound = errors.New("prayer not found")
	ErrNotPermitted   = errors.New("operation not permitted")
	ErrPrayerClosed   = errors.New("prayer is not open")
)
