// Package cron implements the persistent cron scheduler: a SQLite-backed
// job table and a once-per-second dispatch loop.
package cron

import (
	"fmt"
	"strings"
	"time"

	robfig "github.com/robfig/cron/v3"
)

// parser accepts 6-field expressions with a leading seconds field.
var parser = robfig.NewParser(
	robfig.Second | robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow,
)

// Job is a scheduled cron entry as persisted.
type Job struct {
	ID          string     `json:"id"`
	Expression  string     `json:"expression"`
	Command     string     `json:"command"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	NextRun     time.Time  `json:"next_run"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastStatus  string     `json:"last_status,omitempty"`
	LastOutput  string     `json:"last_output,omitempty"`
}

// Task is the caller-facing shape used when adding a job.
type Task struct {
	ID          string
	Expression  string
	Command     string
	Description string
}

// NormalizeExpression converts an expression to the 6-field form with a
// leading seconds field. 5-field crontab syntax gets seconds pinned to 0;
// 6-field is the identity; the optional trailing year of a 7-field
// expression is dropped since the schedule engine does not model years.
func NormalizeExpression(expression string) (string, error) {
	expression = strings.TrimSpace(expression)
	fields := strings.Fields(expression)

	switch len(fields) {
	case 5:
		return "0 " + strings.Join(fields, " "), nil
	case 6:
		return strings.Join(fields, " "), nil
	case 7:
		return strings.Join(fields[:6], " "), nil
	default:
		return "", fmt.Errorf("invalid cron expression: %s (expected 5, 6, or 7 fields, got %d)", expression, len(fields))
	}
}

// NextRun computes the next occurrence strictly after from, in UTC.
func NextRun(expression string, from time.Time) (time.Time, error) {
	normalized, err := NormalizeExpression(expression)
	if err != nil {
		return time.Time{}, err
	}
	schedule, err := parser.Parse(normalized)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %s: %w", expression, err)
	}

	next := schedule.Next(from.UTC())
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no future occurrence for expression: %s", expression)
	}
	return next.UTC(), nil
}
