package core

import (
	"errors"
	"testing"

	"netsentry/database"
	"netsentry/models"
)

func newTestEngine(t *testing.T) (*Engine, *database.Store) {
	t.Helper()
	store, err := database.InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	// No internal clock: tests drive Tick themselves.
	engine := NewEngine(store, nil, nil, nil, EngineConfig{AutoStopSeconds: 30})
	return engine, store
}

func boolPtr(b bool) *bool { return &b }

func ingestFlagged(t *testing.T, engine *Engine, uid, url, level string) {
	t.Helper()
	if _, err := engine.Ingest(RawEvent{
		EventUID:   uid,
		URL:        url,
		Suspicious: boolPtr(true),
		Level:      level,
	}); err != nil {
		t.Fatalf("Ingest(%q) failed: %v", uid, err)
	}
}

func TestStartRejectsSecondSession(t *testing.T) {
	engine, _ := newTestEngine(t)

	session, err := engine.Start(models.CaptureSettings{InterfaceName: "eth0"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if session.Status != models.SessionStatusRunning || session.ID == 0 {
		t.Fatalf("unexpected session: %+v", session)
	}

	if _, err := engine.Start(models.CaptureSettings{}); !errors.Is(err, ErrSessionConflict) {
		t.Fatalf("second start: got %v, want ErrSessionConflict", err)
	}
}

func TestStartConflictAcrossEngines(t *testing.T) {
	engine, store := newTestEngine(t)
	if _, err := engine.Start(models.CaptureSettings{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// A second engine over the same store sees the persisted running session.
	other := NewEngine(store, nil, nil, nil, EngineConfig{AutoStopSeconds: 30})
	if _, err := other.Start(models.CaptureSettings{}); !errors.Is(err, ErrSessionConflict) {
		t.Fatalf("start on second engine: got %v, want ErrSessionConflict", err)
	}
}

func TestStopWritesReportAndCompletes(t *testing.T) {
	engine, store := newTestEngine(t)
	session, err := engine.Start(models.CaptureSettings{InterfaceName: "wlan0"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ingestFlagged(t, engine, "s-1", "http://malware-download.com/malware.exe", models.ThreatLevelHigh)
	ingestFlagged(t, engine, "s-2", "http://example.com/login", models.ThreatLevelMedium)
	if _, err := engine.Ingest(RawEvent{EventUID: "s-3", URL: "https://example.com/", Suspicious: boolPtr(false)}); err != nil {
		t.Fatalf("Ingest clean event failed: %v", err)
	}

	stopped, err := engine.Stop(models.SessionStatusCompleted)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if stopped.Status != models.SessionStatusCompleted || !stopped.EndedAt.Valid {
		t.Fatalf("unexpected stopped session: %+v", stopped)
	}

	summaries, _, err := store.GetSecurityLogEntries(models.SecurityLogFilters{SummariesOnly: true, SessionID: session.ID})
	if err != nil {
		t.Fatalf("summary query failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	stats := summaries[0].CaptureStats
	if stats == nil || stats.UrlsDetected != 3 || stats.HighCount != 1 || stats.MediumCount != 1 {
		t.Fatalf("unexpected summary stats: %+v", stats)
	}
	if summaries[0].Source != "wlan0" {
		t.Fatalf("summary source = %q, want interface name", summaries[0].Source)
	}

	details, _, err := store.GetSecurityLogEntries(models.SecurityLogFilters{SessionID: session.ID})
	if err != nil {
		t.Fatalf("detail query failed: %v", err)
	}
	// One summary plus one detail per flagged event; the clean event gets none.
	if len(details) != 3 {
		t.Fatalf("got %d log entries, want 3", len(details))
	}
}

func TestStopWithoutSession(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Stop(models.SessionStatusCompleted); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("got %v, want ErrNotRunning", err)
	}
}

func TestStopTwice(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Start(models.CaptureSettings{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := engine.Stop(models.SessionStatusCompleted); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if _, err := engine.Stop(models.SessionStatusCompleted); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("second stop: got %v, want ErrNotRunning", err)
	}
}

func TestAutoStopAfterTimeBudget(t *testing.T) {
	engine, store := newTestEngine(t)
	session, err := engine.Start(models.CaptureSettings{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ingestFlagged(t, engine, "auto-1", "http://phishing-attempt.org/verify", "")

	for i := 0; i < 29; i++ {
		engine.Tick()
	}
	if snapshot := engine.Snapshot(); !snapshot.Capturing || snapshot.ElapsedSeconds != 29 {
		t.Fatalf("after 29 ticks: %+v", snapshot)
	}

	engine.Tick()

	snapshot := engine.Snapshot()
	if snapshot.Capturing {
		t.Fatal("session should have auto-stopped at the time budget")
	}
	if snapshot.Status != models.SessionStatusCompleted {
		t.Fatalf("status = %q, want completed", snapshot.Status)
	}

	summaries, _, err := store.GetSecurityLogEntries(models.SecurityLogFilters{SummariesOnly: true, SessionID: session.ID})
	if err != nil || len(summaries) != 1 {
		t.Fatalf("summary query: entries=%d err=%v", len(summaries), err)
	}
	if summaries[0].CaptureStats.CaptureDurationSeconds != 30 {
		t.Fatalf("summary duration = %d, want 30", summaries[0].CaptureStats.CaptureDurationSeconds)
	}

	// Further ticks are no-ops once terminal.
	engine.Tick()
	if snapshot := engine.Snapshot(); snapshot.ElapsedSeconds != 30 {
		t.Fatalf("elapsed advanced after terminal state: %+v", snapshot)
	}
}

func TestResetClearsDisplayState(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Start(models.CaptureSettings{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ingestFlagged(t, engine, "r-1", "http://suspicious-site.net/", "")
	engine.Tick()

	if err := engine.Reset(); !errors.Is(err, ErrSessionConflict) {
		t.Fatalf("reset while running: got %v, want ErrSessionConflict", err)
	}

	if _, err := engine.Stop(models.SessionStatusCompleted); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := engine.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	snapshot := engine.Snapshot()
	if snapshot.SessionID != 0 || snapshot.ElapsedSeconds != 0 || snapshot.Counters.UrlsDetected != 0 {
		t.Fatalf("reset left state behind: %+v", snapshot)
	}
}

func TestResumeRestoresRunningSession(t *testing.T) {
	engine, store := newTestEngine(t)
	session, err := engine.Start(models.CaptureSettings{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ingestFlagged(t, engine, "p-1", "http://malware-download.com/", models.ThreatLevelHigh)
	ingestFlagged(t, engine, "p-2", "http://example.com/download", models.ThreatLevelMedium)

	// A fresh engine over the same store stands in for a process restart.
	restarted := NewEngine(store, nil, nil, nil, EngineConfig{AutoStopSeconds: 30})
	resumed, err := restarted.Resume()
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !resumed {
		t.Fatal("expected a session to resume")
	}

	snapshot := restarted.Snapshot()
	if snapshot.SessionID != session.ID || !snapshot.Capturing {
		t.Fatalf("unexpected snapshot after resume: %+v", snapshot)
	}
	if snapshot.Counters.UrlsDetected != 2 || snapshot.Counters.HighCount != 1 || snapshot.Counters.MediumCount != 1 {
		t.Fatalf("counters not rebuilt from persisted events: %+v", snapshot.Counters)
	}

	// Events already counted before the restart stay counted exactly once.
	if _, err := restarted.Ingest(RawEvent{EventUID: "p-1", URL: "http://malware-download.com/", Suspicious: boolPtr(true), Level: models.ThreatLevelHigh}); err != nil {
		t.Fatalf("re-ingest failed: %v", err)
	}
	if counters := restarted.Snapshot().Counters; counters.HighCount != 1 {
		t.Fatalf("re-ingest double-counted: %+v", counters)
	}
}

func TestResumeWithNothingRunning(t *testing.T) {
	engine, _ := newTestEngine(t)
	resumed, err := engine.Resume()
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed {
		t.Fatal("nothing should resume from an empty store")
	}
}
