package cron

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named function run on a cron schedule.
type Job struct {
	Name string

	// Schedule accepts 6-field (with seconds) or standard 5-field
	// expressions and descriptors such as @every 5m.
	Schedule string

	// Timeout bounds one execution. Zero uses the scheduler default.
	Timeout time.Duration

	Run func(ctx context.Context) error
}

// Execution records the outcome of the last run of a job.
type Execution struct {
	Name       string        `json:"name"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
	Successful bool          `json:"successful"`
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// normalizeSchedule prefixes a 5-field expression with a zero seconds field.
func normalizeSchedule(schedule string) string {
	schedule = strings.TrimSpace(schedule)
	if len(strings.Fields(schedule)) == 5 {
		return "0 " + schedule
	}
	return schedule
}

// ParseSchedule validates a schedule expression.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if strings.TrimSpace(schedule) == "" {
		return nil, &InvalidScheduleError{Schedule: schedule, Message: "empty expression"}
	}
	s, err := parser.Parse(normalizeSchedule(schedule))
	if err != nil {
		return nil, &InvalidScheduleError{Schedule: schedule, Message: err.Error()}
	}
	return s, nil
}
