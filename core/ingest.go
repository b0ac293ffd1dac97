package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"netsentry/logger"
	"netsentry/models"
)

// Ingest normalizes a raw feed event into an ObservedUrlEvent, classifies it
// when the feed did not, folds it into the active session's counters and
// persists it. Re-ingesting an event uid already recorded is a no-op for
// both the counters and the store; the persisted row is returned either way.
func (e *Engine) Ingest(raw RawEvent) (*models.ObservedUrlEvent, error) {
	rawURL := strings.TrimSpace(raw.URL)
	if rawURL == "" {
		return nil, &ValidationError{Field: "url", Reason: "must not be empty"}
	}

	event := &models.ObservedUrlEvent{
		EventUID: strings.TrimSpace(raw.EventUID),
		URL:      rawURL,
		Protocol: raw.Protocol,
		SourceIP: raw.SourceIP,
	}
	if event.EventUID == "" {
		event.EventUID = uuid.NewString()
	}
	if event.Protocol == "" {
		if strings.HasPrefix(rawURL, "https://") {
			event.Protocol = models.ProtocolHTTPS
		} else {
			event.Protocol = models.ProtocolHTTP
		}
	}
	if event.SourceIP == "" {
		event.SourceIP = models.DefaultSourceIP
	}
	if raw.ObservedAt.IsZero() {
		event.ObservedAt = time.Now().UTC()
	} else {
		event.ObservedAt = raw.ObservedAt.UTC()
	}

	var details *models.ThreatDetails
	if raw.Suspicious != nil {
		event.Suspicious = *raw.Suspicious
		event.ThreatLevel = raw.Level
	} else {
		verdict := e.classifier.Classify(rawURL, event.Protocol)
		event.Suspicious = verdict.Suspicious
		event.ThreatLevel = verdict.Level
		details = verdict.Details
	}
	if event.Suspicious && event.ThreatLevel == "" {
		event.ThreatLevel = models.ThreatLevelHigh
	}

	// Route to the active session when the feed did not address one.
	e.mu.Lock()
	active := e.session != nil && e.session.Status == models.SessionStatusRunning
	var activeID int64
	if active {
		activeID = e.session.ID
	}
	event.SessionID = raw.SessionID
	if event.SessionID == 0 && active {
		event.SessionID = activeID
	}
	aggregate := active && event.SessionID == activeID
	counted := false
	if aggregate {
		counted = e.agg.OnEvent(event)
		if counted && details != nil {
			e.details[event.EventUID] = details
		}
	}
	e.mu.Unlock()

	id, inserted, err := e.store.InsertObservedUrlEvent(event)
	if err != nil {
		return nil, &PersistenceError{Op: "ingest", Err: err}
	}
	event.ID = id

	if inserted {
		e.broadcast.Publish(StreamMessage{Type: "url", Data: event})
		if event.Suspicious {
			logger.EngineDebug("Flagged %s URL %s (%s) from %s", event.ThreatLevel, event.URL, event.Protocol, event.SourceIP)
		}
	} else if counted {
		logger.EngineDebug("Event %s already persisted; counters unchanged", event.EventUID)
	}
	return event, nil
}

// IngestJSON parses a feed payload and forwards it to Ingest. Field names
// follow the wire format of the push feed; unknown fields are ignored and
// camelCase aliases are accepted.
func (e *Engine) IngestJSON(payload []byte) (*models.ObservedUrlEvent, error) {
	if !gjson.ValidBytes(payload) {
		return nil, &ValidationError{Field: "payload", Reason: "is not valid JSON"}
	}
	parsed := gjson.ParseBytes(payload)

	raw := RawEvent{
		EventUID: firstString(parsed, "id", "event_uid"),
		URL:      parsed.Get("url").String(),
		Protocol: parsed.Get("protocol").String(),
		Level:    firstString(parsed, "threat_level", "level"),
		SourceIP: firstString(parsed, "source_ip", "sourceIp"),
	}
	if v := parsed.Get("session_id"); v.Exists() {
		raw.SessionID = v.Int()
	} else if v := parsed.Get("sessionId"); v.Exists() {
		raw.SessionID = v.Int()
	}
	if v := parsed.Get("suspicious"); v.Exists() {
		suspicious := v.Bool()
		raw.Suspicious = &suspicious
	}
	if v := parsed.Get("timestamp"); v.Exists() {
		if ts, err := time.Parse(time.RFC3339, v.String()); err == nil {
			raw.ObservedAt = ts
		}
	}
	return e.Ingest(raw)
}

func firstString(parsed gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := parsed.Get(path); v.Exists() {
			return v.String()
		}
	}
	return ""
}
