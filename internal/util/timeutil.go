package util

import (
	"fmt"
	"strings"
	"time"
)

// timestamp layouts accepted on the command line, tried in order
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseLocalTime parses a CLI timestamp in the machine's local zone, the
// zone the meter clock runs in.
func ParseLocalTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q (want e.g. 2006-01-02 15:04:05)", s)
}
