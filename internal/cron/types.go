package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Job is a watchlist entry: a company re-investigated on a cron schedule.
type Job struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Company     string   `json:"company"`
	Ticker      string   `json:"ticker,omitempty"`
	Schedule    string   `json:"schedule"`
	Enabled     bool     `json:"enabled"`
	CreatedAtMs int64    `json:"createdAtMs"`
	State       JobState `json:"state"`
}

type JobState struct {
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
	LastReport  string `json:"lastReport,omitempty"`
}

// NewJob returns an enabled job. An empty name defaults to the company.
func NewJob(name, company, ticker, schedule string) Job {
	company = strings.TrimSpace(company)
	if strings.TrimSpace(name) == "" {
		name = company
	}
	return Job{
		ID:          uuid.NewString()[:8],
		Name:        name,
		Company:     company,
		Ticker:      strings.ToUpper(strings.TrimSpace(ticker)),
		Schedule:    strings.TrimSpace(schedule),
		Enabled:     true,
		CreatedAtMs: time.Now().UnixMilli(),
	}
}

// ValidateSchedule accepts standard 5-field cron expressions and the
// @hourly/@daily/@every descriptors.
func ValidateSchedule(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("schedule is empty")
	}
	if _, err := rcron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// NextRun reports when the schedule fires next after t.
func NextRun(expr string, t time.Time) (time.Time, error) {
	sched, err := rcron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t), nil
}
