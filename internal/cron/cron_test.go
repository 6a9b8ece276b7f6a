package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewJob(t *testing.T) {
	job := NewJob("", " Acme Holdings ", "acme", "0 9 * * 1")
	if job.ID == "" {
		t.Error("job ID should not be empty")
	}
	if job.Name != "Acme Holdings" {
		t.Errorf("name = %q, want company name", job.Name)
	}
	if job.Ticker != "ACME" {
		t.Errorf("ticker = %q, want ACME", job.Ticker)
	}
	if !job.Enabled {
		t.Error("job should be enabled by default")
	}
	if other := NewJob("x", "y", "", "@daily"); other.ID == job.ID {
		t.Error("job IDs should be unique")
	}
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 9 * * 1", false},
		{"*/15 * * * *", false},
		{"@daily", false},
		{"@every 6h", false},
		{"", true},
		{"invalid", true},
		{"0 0 9 * * 1", true}, // seconds field not accepted
	}
	for _, tt := range tests {
		err := ValidateSchedule(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestNextRun(t *testing.T) {
	from := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) // Monday
	next, err := NextRun("0 9 * * 1", from)
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}
	if want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestService_AddAndListJobs(t *testing.T) {
	tmpDir := t.TempDir()
	storePath := filepath.Join(tmpDir, "watch.json")
	s := NewService(storePath)

	job, err := s.AddJob("weekly", "Acme Holdings", "", "0 9 * * 1")
	if err != nil {
		t.Fatalf("AddJob error: %v", err)
	}
	if job.Name != "weekly" {
		t.Errorf("name = %q, want weekly", job.Name)
	}

	jobs := s.ListJobs()
	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(jobs))
	}
	if jobs[0].Company != "Acme Holdings" {
		t.Errorf("jobs[0].company = %q, want Acme Holdings", jobs[0].Company)
	}

	// Verify persistence
	data, err := os.ReadFile(storePath)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	var stored []Job
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored jobs = %d, want 1", len(stored))
	}
	if _, err := os.Stat(storePath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp store file should be renamed away")
	}
}

func TestService_AddJob_Rejects(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "watch.json"))

	if _, err := s.AddJob("bad", "Acme", "", "every tuesday"); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if _, err := s.AddJob("blank", "  ", "", "@daily"); err == nil {
		t.Error("expected error for empty company")
	}
	if len(s.ListJobs()) != 0 {
		t.Error("rejected jobs should not be stored")
	}
}

func TestService_AddJob_SaveFailureLeavesNoJob(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	s := NewService(filepath.Join(blocker, "watch.json"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	if _, err := s.AddJob("unsaved", "Acme", "", "@daily"); err == nil {
		t.Fatal("expected save error")
	}
	if n := len(s.ListJobs()); n != 0 {
		t.Errorf("jobs = %d, want 0 after failed save", n)
	}
	s.mu.Lock()
	entries := len(s.entryMap)
	scheduled := len(s.cron.Entries())
	s.mu.Unlock()
	if entries != 0 || scheduled != 0 {
		t.Errorf("entryMap = %d, scheduler entries = %d, want none", entries, scheduled)
	}
}

func TestService_RemoveJob(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "watch.json"))

	job, _ := s.AddJob("rm-test", "Acme", "", "@daily")

	if !s.RemoveJob(job.ID) {
		t.Error("RemoveJob returned false")
	}
	if len(s.ListJobs()) != 0 {
		t.Error("job not removed")
	}

	// Remove nonexistent
	if s.RemoveJob("nonexistent") {
		t.Error("RemoveJob should return false for nonexistent")
	}
}

func TestService_EnableJob(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "watch.json"))

	job, _ := s.AddJob("toggle", "Acme", "", "@daily")

	updated, err := s.EnableJob(job.ID, false)
	if err != nil {
		t.Fatalf("EnableJob error: %v", err)
	}
	if updated.Enabled {
		t.Error("job should be disabled")
	}

	updated, err = s.EnableJob(job.ID, true)
	if err != nil {
		t.Fatalf("EnableJob error: %v", err)
	}
	if !updated.Enabled {
		t.Error("job should be enabled")
	}

	// Nonexistent job
	_, err = s.EnableJob("nonexistent", true)
	if err == nil {
		t.Error("expected error for nonexistent job")
	}
}

func TestService_StartStop(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "watch.json"))

	ctx, cancel := context.WithCancel(context.Background())

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	cancel()
	s.Stop()
}

func TestService_Start_ParentCancelInvokesStop(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "watch.json"))

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		stopped := s.cancel == nil && s.stopCh == nil
		s.mu.Unlock()
		if stopped {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	s.Stop()
	t.Fatal("expected parent context cancellation to trigger Stop")
}

func TestService_Persistence(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "watch.json")

	s1 := NewService(storePath)
	s1.AddJob("persist1", "Acme", "", "@daily")
	s1.AddJob("persist2", "Widget Corp", "WIDG", "0 9 * * 1")

	// A fresh service sees the stored jobs before Start.
	s2 := NewService(storePath)
	jobs := s2.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 persisted jobs, got %d", len(jobs))
	}
	if jobs[1].Ticker != "WIDG" {
		t.Errorf("ticker = %q, want WIDG", jobs[1].Ticker)
	}
}

func TestService_ExecuteJob_WithHandler(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "watch.json"))

	var received Job
	s.OnJob = func(ctx context.Context, job Job) (string, error) {
		received = job
		return "reports/Acme_Forensic_Report.md", nil
	}

	job, _ := s.AddJob("exec-test", "Acme", "", "@daily")

	report, err := s.executeJob(context.Background(), *job)
	if err != nil {
		t.Fatalf("executeJob error: %v", err)
	}
	if report != "reports/Acme_Forensic_Report.md" {
		t.Errorf("report = %q", report)
	}
	if received.Company != "Acme" {
		t.Errorf("company = %q, want Acme", received.Company)
	}

	jobs := s.ListJobs()
	if jobs[0].State.LastStatus != StatusOK {
		t.Errorf("lastStatus = %q, want ok", jobs[0].State.LastStatus)
	}
	if jobs[0].State.LastReport != report {
		t.Errorf("lastReport = %q, want %q", jobs[0].State.LastReport, report)
	}
	if jobs[0].State.LastRunAtMs == 0 {
		t.Error("lastRunAtMs not set")
	}
}

func TestService_ExecuteJob_NoHandler(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "watch.json"))

	job, _ := s.AddJob("no-handler", "Acme", "", "@daily")

	if _, err := s.executeJob(context.Background(), *job); err == nil {
		t.Error("expected error without handler")
	}
}

func TestService_ExecuteJob_HandlerError(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "watch.json"))

	s.OnJob = func(ctx context.Context, job Job) (string, error) {
		return "", fmt.Errorf("handler error")
	}

	job, _ := s.AddJob("error-test", "Acme", "", "@daily")
	s.executeJob(context.Background(), *job)

	jobs := s.ListJobs()
	if jobs[0].State.LastStatus != StatusError {
		t.Errorf("lastStatus = %q, want error", jobs[0].State.LastStatus)
	}
	if jobs[0].State.LastError != "handler error" {
		t.Errorf("lastError = %q, want 'handler error'", jobs[0].State.LastError)
	}
}

func TestService_RunJob(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "watch.json"))
	calls := 0
	s.OnJob = func(ctx context.Context, job Job) (string, error) {
		calls++
		return "out.md", nil
	}
	job, _ := s.AddJob("manual", "Acme", "", "0 0 1 1 *")

	if _, err := s.RunJob(context.Background(), job.ID); err != nil {
		t.Fatalf("RunJob error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if _, err := s.RunJob(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestService_FireSkipsDisabledJob(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "watch.json"))
	calls := 0
	s.OnJob = func(ctx context.Context, job Job) (string, error) {
		calls++
		return "", nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	job, _ := s.AddJob("off", "Acme", "", "@daily")
	s.EnableJob(job.ID, false)

	s.fire(job.ID)
	if calls != 0 {
		t.Errorf("disabled job ran %d times", calls)
	}

	s.EnableJob(job.ID, true)
	s.fire(job.ID)
	if calls != 1 {
		t.Errorf("enabled job ran %d times, want 1", calls)
	}
}

func TestService_CronFiresHandler(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "watch.json"))
	fired := make(chan Job, 1)
	s.OnJob = func(ctx context.Context, job Job) (string, error) {
		select {
		case fired <- job:
		default:
		}
		return "r.md", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	if _, err := s.AddJob("fast", "Acme", "", "@every 1s"); err != nil {
		t.Fatalf("AddJob error: %v", err)
	}

	select {
	case job := <-fired:
		if job.Company != "Acme" {
			t.Errorf("company = %q", job.Company)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not fire")
	}
}

func TestService_InvalidStoredScheduleIsSkipped(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "watch.json")

	jobs := []Job{{
		ID:       "bad-cron",
		Name:     "invalid-cron",
		Company:  "Acme",
		Enabled:  true,
		Schedule: "invalid",
	}}
	data, _ := json.MarshalIndent(jobs, "", "  ")
	os.WriteFile(storePath, data, 0644)

	s := NewService(storePath)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start should handle invalid cron expression gracefully
	if err := s.Start(ctx); err != nil {
		t.Errorf("Start should not error on invalid cron: %v", err)
	}
	if len(s.entryMap) != 0 {
		t.Errorf("expected no entries for invalid schedule, got %d", len(s.entryMap))
	}

	s.Stop()
}

func TestService_RegisterOnStart(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "watch.json")

	jobs := []Job{
		{ID: "on", Name: "on", Company: "Acme", Enabled: true, Schedule: "0 * * * *"},
		{ID: "off", Name: "off", Company: "Acme", Enabled: false, Schedule: "0 * * * *"},
	}
	data, _ := json.MarshalIndent(jobs, "", "  ")
	os.WriteFile(storePath, data, 0644)

	s := NewService(storePath)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if len(s.entryMap) != 1 {
		t.Errorf("expected 1 entry in entryMap, got %d", len(s.entryMap))
	}

	s.Stop()
}

func TestService_EnableJob_CronToggleUpdatesEntryMap(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "watch.json"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	job, err := s.AddJob("toggle-cron", "Acme", "", "*/5 * * * *")
	if err != nil {
		t.Fatalf("AddJob error: %v", err)
	}

	if len(s.entryMap) != 1 {
		t.Fatalf("expected 1 cron entry after add, got %d", len(s.entryMap))
	}

	if _, err := s.EnableJob(job.ID, false); err != nil {
		t.Fatalf("EnableJob(false) error: %v", err)
	}
	if len(s.entryMap) != 0 {
		t.Fatalf("expected 0 cron entries after disable, got %d", len(s.entryMap))
	}

	if _, err := s.EnableJob(job.ID, true); err != nil {
		t.Fatalf("EnableJob(true) error: %v", err)
	}
	if len(s.entryMap) != 1 {
		t.Fatalf("expected 1 cron entry after re-enable, got %d", len(s.entryMap))
	}

	if !s.RemoveJob(job.ID) {
		t.Fatal("RemoveJob returned false")
	}
	if len(s.entryMap) != 0 {
		t.Fatalf("expected 0 cron entries after remove, got %d", len(s.entryMap))
	}
}
