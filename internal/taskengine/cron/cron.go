// Package cron parses cron expressions and computes fire times, grounded
// on the teacher's schedule model which parses with robfig/cron/v3 at
// registration time.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
)

// standardParser accepts the classic 5-field form (minute, hour,
// day-of-month, month, day-of-week).
var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// secondsParser additionally accepts a leading seconds field.
var secondsParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse validates a cron expression, trying the 6-field (seconds) form
// first and falling back to the standard 5-field form. This mirrors the
// common two-parser idiom in cron-based schedulers that need sub-minute
// granularity for tests and demos without giving up the standard form.
func Parse(expr string) (cron.Schedule, error) {
	if sched, err := secondsParser.Parse(expr); err == nil {
		return sched, nil
	}
	sched, err := standardParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidCronExpression, err)
	}
	return sched, nil
}

// NextAfter returns the next fire time strictly after fromTime.
func NextAfter(expr string, fromTime time.Time) (time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(fromTime), nil
}
