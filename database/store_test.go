package database

import (
	"testing"
	"time"

	"netsentry/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newRunningSession(t *testing.T, store *Store, owner string) *models.CaptureSession {
	t.Helper()
	session := &models.CaptureSession{
		OwnerID:   owner,
		Status:    models.SessionStatusRunning,
		StartedAt: time.Now().UTC(),
		Settings:  models.CaptureSettings{InterfaceName: "eth0", ProtocolFilter: "http", DeepInspection: true},
	}
	id, err := store.CreateCaptureSession(session)
	if err != nil {
		t.Fatalf("CreateCaptureSession failed: %v", err)
	}
	session.ID = id
	return session
}

func TestCreateCaptureSessionConflict(t *testing.T) {
	store := newTestStore(t)
	session := newRunningSession(t, store, "alice")

	_, err := store.CreateCaptureSession(&models.CaptureSession{
		OwnerID:   "alice",
		StartedAt: time.Now().UTC(),
	})
	if err != ErrOwnerHasRunningSession {
		t.Fatalf("expected ErrOwnerHasRunningSession, got %v", err)
	}

	// A different owner is unaffected.
	if _, err := store.CreateCaptureSession(&models.CaptureSession{
		OwnerID:   "bob",
		StartedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create for second owner failed: %v", err)
	}

	// Once terminal, the owner can start again.
	if finished, err := store.FinishCaptureSession(session.ID, models.SessionStatusCompleted, time.Now().UTC()); err != nil || !finished {
		t.Fatalf("FinishCaptureSession failed: finished=%v err=%v", finished, err)
	}
	if _, err := store.CreateCaptureSession(&models.CaptureSession{
		OwnerID:   "alice",
		StartedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create after finish failed: %v", err)
	}
}

func TestFinishCaptureSessionIsOneShot(t *testing.T) {
	store := newTestStore(t)
	session := newRunningSession(t, store, "alice")

	finished, err := store.FinishCaptureSession(session.ID, models.SessionStatusCompleted, time.Now().UTC())
	if err != nil || !finished {
		t.Fatalf("first finish: finished=%v err=%v", finished, err)
	}

	finished, err = store.FinishCaptureSession(session.ID, models.SessionStatusFailed, time.Now().UTC())
	if err != nil {
		t.Fatalf("second finish errored: %v", err)
	}
	if finished {
		t.Fatal("second finish should affect zero rows")
	}

	loaded, err := store.GetCaptureSessionByID(session.ID)
	if err != nil {
		t.Fatalf("GetCaptureSessionByID failed: %v", err)
	}
	if loaded.Status != models.SessionStatusCompleted {
		t.Fatalf("status = %q, want completed", loaded.Status)
	}
	if !loaded.EndedAt.Valid {
		t.Fatal("ended_at should be set")
	}
	if loaded.Settings.InterfaceName != "eth0" {
		t.Fatalf("settings not round-tripped: %+v", loaded.Settings)
	}

	if _, err := store.FinishCaptureSession(session.ID, "bogus", time.Now().UTC()); err == nil {
		t.Fatal("finish with invalid status should error")
	}
}

func TestGetRunningSessionForOwner(t *testing.T) {
	store := newTestStore(t)

	session, err := store.GetRunningSessionForOwner("alice")
	if err != nil {
		t.Fatalf("query with no sessions failed: %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil session, got %+v", session)
	}

	created := newRunningSession(t, store, "alice")
	session, err = store.GetRunningSessionForOwner("alice")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if session == nil || session.ID != created.ID {
		t.Fatalf("got %+v, want session %d", session, created.ID)
	}
}

func TestInsertObservedUrlEventDeduplicates(t *testing.T) {
	store := newTestStore(t)
	session := newRunningSession(t, store, "alice")

	event := &models.ObservedUrlEvent{
		EventUID:   "uid-1",
		SessionID:  session.ID,
		URL:        "https://example.com/login",
		Protocol:   models.ProtocolHTTPS,
		ObservedAt: time.Now().UTC(),
	}
	id, inserted, err := store.InsertObservedUrlEvent(event)
	if err != nil || !inserted || id == 0 {
		t.Fatalf("first insert: id=%d inserted=%v err=%v", id, inserted, err)
	}

	_, inserted, err = store.InsertObservedUrlEvent(event)
	if err != nil {
		t.Fatalf("second insert errored: %v", err)
	}
	if inserted {
		t.Fatal("second insert of the same event_uid should be ignored")
	}

	events, err := store.GetEventsForSession(session.ID)
	if err != nil {
		t.Fatalf("GetEventsForSession failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

func TestInsertObservedUrlEventWithUnknownSession(t *testing.T) {
	store := newTestStore(t)

	// Events addressed to a session this node never saw are still kept as
	// raw records.
	event := &models.ObservedUrlEvent{
		EventUID:   "foreign",
		SessionID:  9999,
		URL:        "https://example.com/",
		Protocol:   models.ProtocolHTTPS,
		ObservedAt: time.Now().UTC(),
	}
	id, inserted, err := store.InsertObservedUrlEvent(event)
	if err != nil || !inserted || id == 0 {
		t.Fatalf("insert with unknown session: id=%d inserted=%v err=%v", id, inserted, err)
	}

	events, err := store.GetEventsForSession(9999)
	if err != nil {
		t.Fatalf("GetEventsForSession failed: %v", err)
	}
	if len(events) != 1 || events[0].EventUID != "foreign" {
		t.Fatalf("got %+v, want the foreign event", events)
	}
}

func TestGetObservedUrlEventsFilters(t *testing.T) {
	store := newTestStore(t)
	session := newRunningSession(t, store, "alice")

	base := time.Now().UTC().Add(-time.Minute)
	seed := []models.ObservedUrlEvent{
		{EventUID: "a", SessionID: session.ID, URL: "https://example.com/", Protocol: models.ProtocolHTTPS, ObservedAt: base},
		{EventUID: "b", SessionID: session.ID, URL: "http://malware-download.com/malware.exe", Protocol: models.ProtocolHTTP, Suspicious: true, ThreatLevel: models.ThreatLevelHigh, ObservedAt: base.Add(time.Second)},
		{EventUID: "c", URL: "https://google.com/search", Protocol: models.ProtocolHTTPS, ObservedAt: base.Add(2 * time.Second)},
	}
	for i := range seed {
		if _, _, err := store.InsertObservedUrlEvent(&seed[i]); err != nil {
			t.Fatalf("seed insert %q failed: %v", seed[i].EventUID, err)
		}
	}

	all, err := store.GetObservedUrlEvents(models.ObservedUrlFilters{})
	if err != nil {
		t.Fatalf("unfiltered query failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}
	if all[0].EventUID != "c" || all[2].EventUID != "a" {
		t.Fatalf("events not newest-first: %q, %q, %q", all[0].EventUID, all[1].EventUID, all[2].EventUID)
	}

	scoped, err := store.GetObservedUrlEvents(models.ObservedUrlFilters{SessionID: session.ID, SuspiciousOnly: true})
	if err != nil {
		t.Fatalf("filtered query failed: %v", err)
	}
	if len(scoped) != 1 || scoped[0].EventUID != "b" {
		t.Fatalf("suspicious filter returned %+v", scoped)
	}

	limited, err := store.GetObservedUrlEvents(models.ObservedUrlFilters{Limit: 2})
	if err != nil {
		t.Fatalf("limited query failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("got %d events, want 2", len(limited))
	}
}

func TestDistinctDomainsFromEvents(t *testing.T) {
	store := newTestStore(t)
	session := newRunningSession(t, store, "alice")

	urls := []string{
		"https://example.com/a",
		"https://example.com/b",
		"http://google.com/",
	}
	for i, u := range urls {
		event := &models.ObservedUrlEvent{
			EventUID: u, SessionID: session.ID, URL: u,
			Protocol: models.ProtocolHTTPS, ObservedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if _, _, err := store.InsertObservedUrlEvent(event); err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}
	}

	domains, err := store.DistinctDomainsFromEvents(session.ID)
	if err != nil {
		t.Fatalf("DistinctDomainsFromEvents failed: %v", err)
	}
	want := []string{"example.com", "google.com"}
	if len(domains) != len(want) {
		t.Fatalf("got domains %v, want %v", domains, want)
	}
	for i := range want {
		if domains[i] != want[i] {
			t.Fatalf("got domains %v, want %v", domains, want)
		}
	}
}

func TestAppendSummaryLogIdempotent(t *testing.T) {
	store := newTestStore(t)
	session := newRunningSession(t, store, "alice")

	stats := models.CaptureStats{
		PacketsCaptured:        10,
		CaptureDurationSeconds: 30,
		UrlsDetected:           10,
		HighCount:              2,
	}
	first, err := store.AppendSummaryLog(session, stats)
	if err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if !first.IsSummary || first.ThreatLevel != models.ThreatLevelHigh || first.Action != models.ActionBlocked {
		t.Fatalf("unexpected summary entry: %+v", first)
	}

	second, err := store.AppendSummaryLog(session, stats)
	if err != nil {
		t.Fatalf("second append failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("retried append created a new row: %d != %d", second.ID, first.ID)
	}

	entries, total, err := store.GetSecurityLogEntries(models.SecurityLogFilters{SummariesOnly: true})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if total != 1 || len(entries) != 1 {
		t.Fatalf("got %d summaries (total %d), want exactly 1", len(entries), total)
	}
	if entries[0].CaptureStats == nil || entries[0].CaptureStats.CaptureDurationSeconds != 30 {
		t.Fatalf("capture stats not round-tripped: %+v", entries[0].CaptureStats)
	}
}

func TestAppendSummaryLogCleanSession(t *testing.T) {
	store := newTestStore(t)
	session := newRunningSession(t, store, "alice")

	entry, err := store.AppendSummaryLog(session, models.CaptureStats{PacketsCaptured: 5, UrlsDetected: 5})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if entry.ThreatLevel != models.ThreatLevelLow {
		t.Fatalf("threat level = %q, want low", entry.ThreatLevel)
	}
	if entry.Action != models.ActionAllowed {
		t.Fatalf("action = %q, want allowed", entry.Action)
	}
}

func TestAppendDetailLog(t *testing.T) {
	store := newTestStore(t)
	session := newRunningSession(t, store, "alice")

	clean := &models.ObservedUrlEvent{EventUID: "clean", SessionID: session.ID, URL: "https://example.com/", ObservedAt: time.Now().UTC()}
	entry, err := store.AppendDetailLog(clean, nil)
	if err != nil {
		t.Fatalf("append for clean event errored: %v", err)
	}
	if entry != nil {
		t.Fatalf("clean event should produce no detail entry, got %+v", entry)
	}

	flagged := &models.ObservedUrlEvent{
		EventUID:   "flagged",
		SessionID:  session.ID,
		URL:        "http://phishing-attempt.org/verify",
		Suspicious: true,
		SourceIP:   "192.168.1.77",
		ObservedAt: time.Now().UTC(),
	}
	entry, err = store.AppendDetailLog(flagged, nil)
	if err != nil {
		t.Fatalf("append for flagged event failed: %v", err)
	}
	if entry.ThreatLevel != models.ThreatLevelHigh {
		t.Fatalf("default threat level = %q, want high", entry.ThreatLevel)
	}
	if entry.ThreatDetails == nil || entry.ThreatDetails.Type != "Suspicious URL" {
		t.Fatalf("placeholder details missing: %+v", entry.ThreatDetails)
	}

	again, err := store.AppendDetailLog(flagged, nil)
	if err != nil {
		t.Fatalf("retried append failed: %v", err)
	}
	if again.ID != entry.ID {
		t.Fatalf("retried append created a new row: %d != %d", again.ID, entry.ID)
	}
}

func TestAppendDetailLogFillsClassifierDetails(t *testing.T) {
	store := newTestStore(t)
	session := newRunningSession(t, store, "alice")

	event := &models.ObservedUrlEvent{
		EventUID:    "classified",
		SessionID:   session.ID,
		URL:         "http://example.com/login",
		Suspicious:  true,
		ThreatLevel: models.ThreatLevelMedium,
		SourceIP:    "192.168.1.42",
		ObservedAt:  time.Now().UTC(),
	}
	verdict := &models.ThreatDetails{
		Type:           "Insecure Connection",
		Description:    "Unencrypted HTTP connection detected",
		Recommendation: "Use HTTPS instead",
		Method:         "GET",
	}

	entry, err := store.AppendDetailLog(event, verdict)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if entry.ThreatDetails.IPAddress != "192.168.1.42" {
		t.Fatalf("ip address = %q, want the event source", entry.ThreatDetails.IPAddress)
	}
	if entry.ThreatDetails.DetectedAt.IsZero() {
		t.Fatal("detected-at should be filled from the observation")
	}
	if verdict.IPAddress != "" {
		t.Fatal("the caller's details must not be mutated")
	}

	stored, _, err := store.GetSecurityLogEntries(models.SecurityLogFilters{FilterSearchText: "unencrypted"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(stored) != 1 || stored[0].ThreatDetails.IPAddress != "192.168.1.42" {
		t.Fatalf("stored details: %+v", stored)
	}
}

func TestGetSecurityLogEntriesFilters(t *testing.T) {
	store := newTestStore(t)
	session := newRunningSession(t, store, "alice")

	events := []models.ObservedUrlEvent{
		{EventUID: "e1", SessionID: session.ID, URL: "http://malware-download.com/malware.exe", Suspicious: true, ThreatLevel: models.ThreatLevelHigh, SourceIP: "192.168.1.5", ObservedAt: time.Now().UTC().Add(-2 * time.Second)},
		{EventUID: "e2", SessionID: session.ID, URL: "http://example.com/login", Suspicious: true, ThreatLevel: models.ThreatLevelMedium, SourceIP: "192.168.1.6", ObservedAt: time.Now().UTC().Add(-time.Second)},
	}
	for i := range events {
		if _, err := store.AppendDetailLog(&events[i], nil); err != nil {
			t.Fatalf("seed detail append failed: %v", err)
		}
	}
	if _, err := store.AppendSummaryLog(session, models.CaptureStats{HighCount: 1, MediumCount: 1, UrlsDetected: 2}); err != nil {
		t.Fatalf("seed summary append failed: %v", err)
	}

	entries, total, err := store.GetSecurityLogEntries(models.SecurityLogFilters{})
	if err != nil {
		t.Fatalf("unfiltered query failed: %v", err)
	}
	if total != 3 || len(entries) != 3 {
		t.Fatalf("got %d entries (total %d), want 3", len(entries), total)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.After(entries[i-1].Timestamp) {
			t.Fatal("entries not newest-first")
		}
	}

	high, _, err := store.GetSecurityLogEntries(models.SecurityLogFilters{FilterThreatLevel: "HIGH"})
	if err != nil {
		t.Fatalf("threat level query failed: %v", err)
	}
	for _, entry := range high {
		if entry.ThreatLevel != models.ThreatLevelHigh {
			t.Fatalf("threat level filter leaked %q", entry.ThreatLevel)
		}
	}
	if len(high) != 2 {
		// The detail for e1 plus the session summary.
		t.Fatalf("got %d high entries, want 2", len(high))
	}

	search, _, err := store.GetSecurityLogEntries(models.SecurityLogFilters{FilterSearchText: "MALWARE"})
	if err != nil {
		t.Fatalf("search query failed: %v", err)
	}
	if len(search) != 1 || !search[0].URL.Valid || search[0].URL.String != "http://malware-download.com/malware.exe" {
		t.Fatalf("case-insensitive search returned %+v", search)
	}

	// The detail description is searchable, the rest of the details blob is
	// not: the stock recommendation text must never match.
	byDescription, _, err := store.GetSecurityLogEntries(models.SecurityLogFilters{FilterSearchText: "characteristics"})
	if err != nil {
		t.Fatalf("description search failed: %v", err)
	}
	if len(byDescription) != 2 {
		t.Fatalf("description search returned %d entries, want 2 detail entries", len(byDescription))
	}
	byRecommendation, _, err := store.GetSecurityLogEntries(models.SecurityLogFilters{FilterSearchText: "scan affected devices"})
	if err != nil {
		t.Fatalf("recommendation search failed: %v", err)
	}
	if len(byRecommendation) != 0 {
		t.Fatalf("recommendation text matched %d entries, want 0", len(byRecommendation))
	}

	limited, total, err := store.GetSecurityLogEntries(models.SecurityLogFilters{Limit: 1})
	if err != nil {
		t.Fatalf("limited query failed: %v", err)
	}
	if len(limited) != 1 || total != 3 {
		t.Fatalf("limit returned %d entries with total %d, want 1 and 3", len(limited), total)
	}
}
