package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronParser: пять полей плюс дескрипторы вида @every 5m, @hourly.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule разбирает расписание ping'ов.
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return schedule, nil
}
