package assistant

import (
	"fmt"
	"strconv"
	"strings"
)

// DescribeSchedule renders a cron expression for the /start reply. Daily
// schedules at fixed hours read as "07:00, 13:00, and 19:00"; anything else
// is shown as the raw expression.
func DescribeSchedule(cron string) string {
	fields := strings.Fields(cron)
	if len(fields) != 5 || fields[2] != "*" || fields[3] != "*" || fields[4] != "*" {
		return "on schedule " + cron
	}
	minute, err := strconv.Atoi(fields[0])
	if err != nil || minute < 0 || minute > 59 {
		return "on schedule " + cron
	}

	var times []string
	for _, h := range strings.Split(fields[1], ",") {
		hour, err := strconv.Atoi(h)
		if err != nil || hour < 0 || hour > 23 {
			return "on schedule " + cron
		}
		times = append(times, fmt.Sprintf("%02d:%02d", hour, minute))
	}

	switch len(times) {
	case 1:
		return "at " + times[0]
	case 2:
		return "at " + times[0] + " and " + times[1]
	default:
		return "at " + strings.Join(times[:len(times)-1], ", ") + ", and " + times[len(times)-1]
	}
}
