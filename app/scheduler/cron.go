package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronLabels maps the fixed schedule labels the admin surface offers to
// cron expressions. Unknown labels fall through to a raw expression parse.
var cronLabels = map[string]string{
	"EVERY_MINUTE":     "* * * * *",
	"EVERY_5_MINUTES":  "*/5 * * * *",
	"EVERY_10_MINUTES": "*/10 * * * *",
	"EVERY_15_MINUTES": "*/15 * * * *",
	"EVERY_20_MINUTES": "*/20 * * * *",
	"EVERY_30_MINUTES": "*/30 * * * *",
	"EVERY_HOUR":       "0 * * * *",
	"EVERY_2_HOURS":    "0 */2 * * *",
	"EVERY_3_HOURS":    "0 */3 * * *",
	"EVERY_4_HOURS":    "0 */4 * * *",
	"EVERY_6_HOURS":    "0 */6 * * *",
	"EVERY_12_HOURS":   "0 */12 * * *",
	"EVERY_DAY":        "0 0 * * *",
}

// resolveSchedule turns a feed's cron label (or raw cron expression) into a
// schedule.
func resolveSchedule(label string) (cron.Schedule, error) {
	expr, ok := cronLabels[label]
	if !ok {
		expr = label
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("unresolvable cron label %q: %w", label, err)
	}
	return schedule, nil
}
