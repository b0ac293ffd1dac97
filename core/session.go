package core

import (
	"database/sql"
	"sync"
	"time"

	"netsentry/database"
	"netsentry/logger"
	"netsentry/models"
)

// EngineConfig carries the tunables for a capture engine.
type EngineConfig struct {
	// AutoStopSeconds is the time budget after which a running session
	// self-terminates. Defaults to 30.
	AutoStopSeconds int
	// TickInterval drives the internal elapsed-time clock. Zero disables the
	// internal ticker; Tick must then be called by the owner (tests do this).
	TickInterval time.Duration
}

// Engine owns the capture session lifecycle: it is the single writer for the
// active session, serializes counter mutation through the aggregator, and is
// the only component that touches persisted session state (via the store).
type Engine struct {
	store      *database.Store
	identity   IdentityProvider
	classifier Classifier
	broadcast  *Broadcaster

	autoStopSeconds int
	tickInterval    time.Duration

	mu       sync.Mutex
	session  *models.CaptureSession
	elapsed  int
	agg      *Aggregator
	details  map[string]*models.ThreatDetails
	stopTick chan struct{}

	feedRemovers []func()
}

// EngineSnapshot is the read-only view exposed to the presentation layer.
type EngineSnapshot struct {
	Capturing       bool              `json:"capturing"`
	SessionID       int64             `json:"session_id,omitempty"`
	Status          string            `json:"status,omitempty"`
	ElapsedSeconds  int               `json:"elapsed_seconds"`
	AutoStopSeconds int               `json:"auto_stop_seconds"`
	Counters        AggregateCounters `json:"counters"`
}

func NewEngine(store *database.Store, identity IdentityProvider, classifier Classifier, broadcast *Broadcaster, cfg EngineConfig) *Engine {
	if cfg.AutoStopSeconds <= 0 {
		cfg.AutoStopSeconds = 30
	}
	if identity == nil {
		identity = AnonymousProvider{}
	}
	if classifier == nil {
		classifier = HeuristicClassifier{}
	}
	if broadcast == nil {
		broadcast = NewBroadcaster()
	}
	return &Engine{
		store:           store,
		identity:        identity,
		classifier:      classifier,
		broadcast:       broadcast,
		autoStopSeconds: cfg.AutoStopSeconds,
		tickInterval:    cfg.TickInterval,
		agg:             NewAggregator(),
		details:         make(map[string]*models.ThreatDetails),
	}
}

// Broadcaster exposes the push-notification hub for stream subscribers.
func (e *Engine) Broadcaster() *Broadcaster {
	return e.broadcast
}

// Start creates a new running session for the current user. It fails with
// ErrSessionConflict while the owner already has a running session; the
// store's unique-running-session index backs this check even across
// processes.
func (e *Engine) Start(settings models.CaptureSettings) (*models.CaptureSession, error) {
	owner := e.identity.CurrentUserID()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil && e.session.Status == models.SessionStatusRunning {
		return nil, ErrSessionConflict
	}

	existing, err := e.store.GetRunningSessionForOwner(owner)
	if err != nil {
		return nil, &PersistenceError{Op: "start", Err: err}
	}
	if existing != nil {
		logger.EngineInfo("Start rejected: owner '%s' already has running session %d", owner, existing.ID)
		return nil, ErrSessionConflict
	}

	session := &models.CaptureSession{
		OwnerID:   owner,
		Status:    models.SessionStatusRunning,
		StartedAt: time.Now().UTC(),
		Settings:  settings,
	}
	id, err := e.store.CreateCaptureSession(session)
	if err != nil {
		if err == database.ErrOwnerHasRunningSession {
			return nil, ErrSessionConflict
		}
		return nil, &PersistenceError{Op: "start", Err: err}
	}
	session.ID = id

	e.session = session
	e.elapsed = 0
	e.agg.Reset()
	e.details = make(map[string]*models.ThreatDetails)
	e.startClockLocked()

	logger.EngineInfo("Capture session %d started for owner '%s' on interface '%s'", id, owner, settings.InterfaceName)
	sessionCopy := *session
	return &sessionCopy, nil
}

// Tick advances the elapsed-time clock by one second. Reaching the auto-stop
// threshold triggers Stop("completed") exactly once; the losing side of any
// race with a manual stop observes ErrNotRunning, which is benign.
func (e *Engine) Tick() {
	e.mu.Lock()
	if e.session == nil || e.session.Status != models.SessionStatusRunning {
		e.mu.Unlock()
		return
	}
	e.elapsed++
	reached := e.elapsed >= e.autoStopSeconds
	elapsed := e.elapsed
	e.mu.Unlock()

	if !reached {
		return
	}
	logger.EngineInfo("Auto-stop threshold reached after %d seconds", elapsed)
	if _, err := e.stop(models.SessionStatusCompleted, true); err != nil && err != ErrNotRunning {
		logger.EngineError("Auto-stop failed: %v", err)
	}
}

// Stop terminates the running session, materializes the summary and detail
// security logs, and returns the terminal session. It is safe to retry after
// a PersistenceError: report writes are idempotent per session and event.
func (e *Engine) Stop(reason string) (*models.CaptureSession, error) {
	return e.stop(reason, false)
}

func (e *Engine) stop(status string, auto bool) (*models.CaptureSession, error) {
	if status != models.SessionStatusCompleted && status != models.SessionStatusFailed {
		status = models.SessionStatusFailed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || e.session.Status != models.SessionStatusRunning {
		return nil, ErrNotRunning
	}
	session := e.session

	// Report generation runs before the status flip and every write in it is
	// deduplicated, so a failed stop can be re-invoked as a whole unit
	// without duplicating rows. Local clock and counters are kept on failure.
	stats := e.agg.Stats(int64(e.elapsed))
	summary, err := e.store.AppendSummaryLog(session, stats)
	if err != nil {
		return nil, e.stopFailureLocked("stop: append summary", err, auto)
	}

	events, err := e.store.GetEventsForSession(session.ID)
	if err != nil {
		return nil, e.stopFailureLocked("stop: load session events", err, auto)
	}
	for i := range events {
		event := &events[i]
		if !event.Suspicious {
			continue
		}
		detail, err := e.store.AppendDetailLog(event, e.details[event.EventUID])
		if err != nil {
			return nil, e.stopFailureLocked("stop: append detail", err, auto)
		}
		if detail != nil {
			e.broadcast.Publish(StreamMessage{Type: "log", Data: detail})
		}
	}

	endedAt := time.Now().UTC()
	finished, err := e.store.FinishCaptureSession(session.ID, status, endedAt)
	if err != nil {
		return nil, e.stopFailureLocked("stop: finish session", err, auto)
	}
	if !finished {
		// Another stop won the race and the session is already terminal.
		logger.EngineInfo("Stop of session %d lost the race; already terminal", session.ID)
		e.stopClockLocked()
		if persisted, loadErr := e.store.GetCaptureSessionByID(session.ID); loadErr == nil && persisted != nil {
			e.session = persisted
		}
		return nil, ErrNotRunning
	}

	session.Status = status
	session.EndedAt = sql.NullTime{Time: endedAt, Valid: true}
	e.stopClockLocked()

	e.broadcast.Publish(StreamMessage{Type: "log", Data: summary})
	logger.EngineInfo("Capture session %d stopped (%s): %d packets, %d URLs, %d high threats",
		session.ID, status, stats.PacketsCaptured, stats.UrlsDetected, stats.HighCount)

	sessionCopy := *session
	return &sessionCopy, nil
}

// stopFailureLocked wraps a failed stop-path write. On the auto-stop path the
// session is additionally marked failed-safe: the clock halts and a
// best-effort failed status is persisted, since no caller is left to retry.
// Clients re-query session status rather than trusting the local timer.
func (e *Engine) stopFailureLocked(op string, err error, auto bool) error {
	logger.EngineError("%s failed for session %d: %v", op, e.session.ID, err)
	if auto {
		endedAt := time.Now().UTC()
		if _, markErr := e.store.FinishCaptureSession(e.session.ID, models.SessionStatusFailed, endedAt); markErr != nil {
			logger.EngineError("Failed-safe status write for session %d also failed: %v", e.session.ID, markErr)
		}
		e.session.Status = models.SessionStatusFailed
		e.session.EndedAt = sql.NullTime{Time: endedAt, Valid: true}
		e.stopClockLocked()
	}
	return &PersistenceError{Op: op, Err: err}
}

// Reset clears the local elapsed-time and counter display state. It is
// permitted only when no session is running and never mutates persisted
// terminal sessions.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil && e.session.Status == models.SessionStatusRunning {
		return ErrSessionConflict
	}
	e.session = nil
	e.elapsed = 0
	e.agg.Reset()
	e.details = make(map[string]*models.ThreatDetails)
	return nil
}

// Resume re-attaches to a persisted running session for the current user,
// restoring the elapsed clock from its start time and rebuilding counters
// from the persisted events. It reports whether a session was resumed.
func (e *Engine) Resume() (bool, error) {
	owner := e.identity.CurrentUserID()
	session, err := e.store.GetRunningSessionForOwner(owner)
	if err != nil {
		return false, &PersistenceError{Op: "resume", Err: err}
	}
	if session == nil {
		return false, nil
	}

	events, err := e.store.GetEventsForSession(session.ID)
	if err != nil {
		return false, &PersistenceError{Op: "resume", Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = session
	e.elapsed = int(time.Since(session.StartedAt).Seconds())
	if e.elapsed < 0 {
		e.elapsed = 0
	}
	e.agg.Reset()
	e.details = make(map[string]*models.ThreatDetails)
	for i := range events {
		e.agg.OnEvent(&events[i])
	}
	e.startClockLocked()

	logger.EngineInfo("Resumed running session %d for owner '%s' at %d elapsed seconds", session.ID, owner, e.elapsed)
	return true, nil
}

// Snapshot returns the current counters and clock for display.
func (e *Engine) Snapshot() EngineSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := EngineSnapshot{
		ElapsedSeconds:  e.elapsed,
		AutoStopSeconds: e.autoStopSeconds,
		Counters:        e.agg.Snapshot(),
	}
	if e.session != nil {
		snapshot.SessionID = e.session.ID
		snapshot.Status = e.session.Status
		snapshot.Capturing = e.session.Status == models.SessionStatusRunning
	}
	return snapshot
}

// AttachFeed subscribes the engine to a live feed. Delivered events flow
// through Ingest; per-event failures are logged and never abort the session.
func (e *Engine) AttachFeed(feed Feed) func() {
	remove := feed.OnEvent(func(raw RawEvent) {
		if _, err := e.Ingest(raw); err != nil {
			logger.EngineError("Feed event rejected: %v", err)
		}
	})
	e.mu.Lock()
	e.feedRemovers = append(e.feedRemovers, remove)
	e.mu.Unlock()
	return remove
}

// DetachFeeds removes every feed listener registered via AttachFeed.
func (e *Engine) DetachFeeds() {
	e.mu.Lock()
	removers := e.feedRemovers
	e.feedRemovers = nil
	e.mu.Unlock()
	for _, remove := range removers {
		remove()
	}
}

func (e *Engine) startClockLocked() {
	e.stopClockLocked()
	if e.tickInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	e.stopTick = stop
	go func() {
		ticker := time.NewTicker(e.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.Tick()
			}
		}
	}()
}

func (e *Engine) stopClockLocked() {
	if e.stopTick != nil {
		close(e.stopTick)
		e.stopTick = nil
	}
}
