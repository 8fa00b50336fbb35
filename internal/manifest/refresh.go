package manifest

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseRefreshTime parses a metric refresh time. A Go duration ("30m")
// refreshes at a fixed interval; anything else is read as a standard cron
// spec ("0 */2 * * *") or descriptor ("@hourly").
func ParseRefreshTime(s string) (cron.Schedule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty refresh time")
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("refresh interval %s must be positive", s)
		}
		return cron.Every(d), nil
	}
	sched, err := cron.ParseStandard(s)
	if err != nil {
		return nil, fmt.Errorf("refresh time %q is neither a duration nor a cron spec: %w", s, err)
	}
	return sched, nil
}
