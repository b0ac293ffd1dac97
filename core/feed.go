package core

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"netsentry/logger"
	"netsentry/models"
)

// RawEvent is the payload shape delivered by a live feed before
// normalization. Only URL is required.
type RawEvent struct {
	EventUID   string
	SessionID  int64
	URL        string
	Protocol   string
	Suspicious *bool // nil means the classifier decides
	Level      string
	SourceIP   string
	ObservedAt time.Time
}

// Feed is the push contract for a live event source: listeners are invoked
// for every delivered event, at whatever rate the source produces them,
// including bursts. OnEvent returns a function that removes the listener.
type Feed interface {
	Connect() error
	Disconnect()
	OnEvent(fn func(RawEvent)) (remove func())
}

// listenerSet is the shared listener registry used by feed implementations.
type listenerSet struct {
	mu        sync.Mutex
	listeners map[int]func(RawEvent)
	next      int
}

func (l *listenerSet) add(fn func(RawEvent)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listeners == nil {
		l.listeners = make(map[int]func(RawEvent))
	}
	id := l.next
	l.next++
	l.listeners[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

func (l *listenerSet) deliver(event RawEvent) {
	l.mu.Lock()
	fns := make([]func(RawEvent), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(event)
	}
}

var demoDomains = []string{
	"example.com",
	"google.com",
	"facebook.com",
	"twitter.com",
	"amazon.com",
	"microsoft.com",
	"apple.com",
	"suspicious-site.net",
	"malware-download.com",
	"phishing-attempt.org",
}

var demoPaths = []string{
	"/login",
	"/download",
	"/search",
	"/index.html",
	"/images",
	"/profile",
	"/settings",
	"/malware.exe",
	"/update",
	"/verify",
}

// DemoFeed is a synthetic traffic generator: while connected it emits one
// random URL observation per interval. It stands in for a real capture
// source behind the same push contract.
type DemoFeed struct {
	listeners listenerSet
	interval  time.Duration
	rng       *rand.Rand

	mu   sync.Mutex
	stop chan struct{}
}

func NewDemoFeed(interval time.Duration) *DemoFeed {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &DemoFeed{
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (f *DemoFeed) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stop != nil {
		return nil
	}
	f.stop = make(chan struct{})
	go f.run(f.stop)
	logger.EngineInfo("Demo feed connected, emitting every %s", f.interval)
	return nil
}

func (f *DemoFeed) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stop == nil {
		return
	}
	close(f.stop)
	f.stop = nil
	logger.EngineInfo("Demo feed disconnected")
}

func (f *DemoFeed) OnEvent(fn func(RawEvent)) func() {
	return f.listeners.add(fn)
}

func (f *DemoFeed) run(stop chan struct{}) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f.listeners.deliver(f.randomEvent())
		}
	}
}

func (f *DemoFeed) randomEvent() RawEvent {
	f.mu.Lock()
	domain := demoDomains[f.rng.Intn(len(demoDomains))]
	path := demoPaths[f.rng.Intn(len(demoPaths))]
	secure := f.rng.Float64() > 0.3
	suspicious := f.rng.Float64() > 0.7
	octet := f.rng.Intn(255)
	f.mu.Unlock()

	scheme := "https"
	protocol := models.ProtocolHTTPS
	if !secure {
		scheme = "http"
		protocol = models.ProtocolHTTP
	}

	return RawEvent{
		URL:        fmt.Sprintf("%s://%s%s", scheme, domain, path),
		Protocol:   protocol,
		Suspicious: &suspicious,
		SourceIP:   fmt.Sprintf("192.168.1.%d", octet),
		ObservedAt: time.Now().UTC(),
	}
}
