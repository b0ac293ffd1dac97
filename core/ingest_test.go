package core

import (
	"errors"
	"testing"
	"time"

	"netsentry/models"
)

func TestIngestRejectsEmptyURL(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Ingest(RawEvent{URL: "   "})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if validationErr.Field != "url" {
		t.Fatalf("validation field = %q, want url", validationErr.Field)
	}
}

func TestIngestNormalizesEvent(t *testing.T) {
	engine, _ := newTestEngine(t)

	event, err := engine.Ingest(RawEvent{URL: "https://example.com/profile", Suspicious: boolPtr(false)})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if event.EventUID == "" {
		t.Fatal("event uid should be assigned")
	}
	if event.Protocol != models.ProtocolHTTPS {
		t.Fatalf("protocol = %q, want HTTPS", event.Protocol)
	}
	if event.SourceIP != models.DefaultSourceIP {
		t.Fatalf("source = %q, want default placeholder", event.SourceIP)
	}
	if event.ObservedAt.IsZero() {
		t.Fatal("observed_at should be stamped")
	}
	if event.ID == 0 {
		t.Fatal("event should be persisted with a store id")
	}
}

func TestIngestInfersProtocolFromScheme(t *testing.T) {
	engine, _ := newTestEngine(t)

	event, err := engine.Ingest(RawEvent{URL: "http://example.com/", Suspicious: boolPtr(false)})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if event.Protocol != models.ProtocolHTTP {
		t.Fatalf("protocol = %q, want HTTP", event.Protocol)
	}
}

func TestIngestClassifiesUnlabeledEvents(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Start(models.CaptureSettings{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// No suspicious flag on the wire: the heuristic classifier flags the
	// known-bad hostname at high severity.
	event, err := engine.Ingest(RawEvent{URL: "https://malware-download.com/update"})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if !event.Suspicious || event.ThreatLevel != models.ThreatLevelHigh {
		t.Fatalf("unexpected classification: suspicious=%v level=%q", event.Suspicious, event.ThreatLevel)
	}

	// Plain HTTP to a clean host is flagged at medium.
	event, err = engine.Ingest(RawEvent{URL: "http://example.com/images"})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if !event.Suspicious || event.ThreatLevel != models.ThreatLevelMedium {
		t.Fatalf("unexpected classification: suspicious=%v level=%q", event.Suspicious, event.ThreatLevel)
	}

	counters := engine.Snapshot().Counters
	if counters.HighCount != 1 || counters.MediumCount != 1 || counters.UrlsDetected != 2 {
		t.Fatalf("unexpected counters: %+v", counters)
	}
}

func TestIngestDefaultsBareSuspiciousToHigh(t *testing.T) {
	engine, _ := newTestEngine(t)

	event, err := engine.Ingest(RawEvent{URL: "https://example.com/", Suspicious: boolPtr(true)})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if event.ThreatLevel != models.ThreatLevelHigh {
		t.Fatalf("threat level = %q, want high default", event.ThreatLevel)
	}
}

func TestIngestExactlyOncePerEventUID(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Start(models.CaptureSettings{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	raw := RawEvent{EventUID: "dup", URL: "http://suspicious-site.net/", Suspicious: boolPtr(true)}
	for i := 0; i < 3; i++ {
		if _, err := engine.Ingest(raw); err != nil {
			t.Fatalf("Ingest attempt %d failed: %v", i, err)
		}
	}

	counters := engine.Snapshot().Counters
	if counters.UrlsDetected != 1 || counters.HighCount != 1 {
		t.Fatalf("duplicate deliveries were counted: %+v", counters)
	}
}

func TestIngestRoutesToActiveSession(t *testing.T) {
	engine, _ := newTestEngine(t)
	session, err := engine.Start(models.CaptureSettings{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	event, err := engine.Ingest(RawEvent{URL: "https://example.com/", Suspicious: boolPtr(false)})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if event.SessionID != session.ID {
		t.Fatalf("event routed to session %d, want %d", event.SessionID, session.ID)
	}
}

func TestIngestIgnoresOtherSessionsForCounters(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Start(models.CaptureSettings{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Addressed to a different session: persisted, not aggregated.
	if _, err := engine.Ingest(RawEvent{
		EventUID:   "other",
		SessionID:  9999,
		URL:        "http://suspicious-site.net/",
		Suspicious: boolPtr(true),
	}); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if counters := engine.Snapshot().Counters; counters.UrlsDetected != 0 {
		t.Fatalf("foreign-session event was aggregated: %+v", counters)
	}
}

func TestIngestWithoutRunningSession(t *testing.T) {
	engine, _ := newTestEngine(t)

	event, err := engine.Ingest(RawEvent{URL: "https://example.com/", Suspicious: boolPtr(false)})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if event.SessionID != 0 {
		t.Fatalf("event without a session got session %d", event.SessionID)
	}
	if counters := engine.Snapshot().Counters; counters.UrlsDetected != 0 {
		t.Fatalf("unassociated event was aggregated: %+v", counters)
	}
}

func TestIngestJSON(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Start(models.CaptureSettings{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	observedAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{
		"id": "wire-1",
		"url": "http://malware-download.com/malware.exe",
		"protocol": "HTTP",
		"suspicious": true,
		"threat_level": "high",
		"sourceIp": "192.168.1.42",
		"timestamp": "2026-08-30T12:00:00Z"
	}`)

	event, err := engine.IngestJSON(payload)
	if err != nil {
		t.Fatalf("IngestJSON failed: %v", err)
	}
	if event.EventUID != "wire-1" || !event.Suspicious || event.ThreatLevel != models.ThreatLevelHigh {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.SourceIP != "192.168.1.42" {
		t.Fatalf("camelCase source alias not honored: %q", event.SourceIP)
	}
	if !event.ObservedAt.Equal(observedAt) {
		t.Fatalf("observed_at = %v, want %v", event.ObservedAt, observedAt)
	}
}

func TestIngestJSONRejectsMalformedPayload(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.IngestJSON([]byte(`{"url": `))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("got %v, want ValidationError", err)
	}

	// Valid JSON without a url is still rejected.
	if _, err := engine.IngestJSON([]byte(`{"suspicious": true}`)); err == nil {
		t.Fatal("payload without url should be rejected")
	}
}
