package core

import (
	"context"
	"errors"
	"io"
	"log" // Standard log package for goproxy.Logger config
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/google/uuid"

	"netsentry/logger"
	"netsentry/models"
)

// ProxyFeed observes real traffic through a local HTTP proxy and emits one
// event per request. Plain HTTP requests carry the full URL; HTTPS traffic is
// observed at CONNECT time and emitted as an https://host event without
// decrypting the tunnel.
type ProxyFeed struct {
	port      string
	listeners listenerSet

	mu     sync.Mutex
	server *http.Server
}

func NewProxyFeed(port string) *ProxyFeed {
	return &ProxyFeed{port: port}
}

func (f *ProxyFeed) OnEvent(fn func(RawEvent)) func() {
	return f.listeners.add(fn)
}

// Connect starts the proxy listener. It returns once the server is accepting
// connections; serving continues in the background until Disconnect.
func (f *ProxyFeed) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.server != nil {
		return nil
	}

	proxy := goproxy.NewProxyHttpServer()
	proxy.Logger = log.New(io.Discard, "", 0)

	proxy.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		f.emit(RawEvent{
			URL:      "https://" + strings.TrimSuffix(host, ":443"),
			Protocol: models.ProtocolHTTPS,
			SourceIP: remoteIP(ctx.Req),
		})
		return goproxy.OkConnect, host
	}))

	proxy.OnRequest().DoFunc(func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		f.emit(RawEvent{
			URL:      r.URL.String(),
			Protocol: models.ProtocolHTTP,
			SourceIP: remoteIP(r),
		})
		return r, nil
	})

	server := &http.Server{Addr: ":" + f.port, Handler: proxy}
	f.server = server

	go func() {
		logger.EngineInfo("Capture proxy listening on :%s", f.port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.EngineError("Capture proxy stopped: %v", err)
		}
	}()
	return nil
}

func (f *ProxyFeed) Disconnect() {
	f.mu.Lock()
	server := f.server
	f.server = nil
	f.mu.Unlock()
	if server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.EngineError("Failed to shut down capture proxy: %v", err)
		return
	}
	logger.EngineInfo("Capture proxy on :%s shut down", f.port)
}

func (f *ProxyFeed) emit(raw RawEvent) {
	raw.EventUID = uuid.NewString()
	raw.ObservedAt = time.Now().UTC()
	f.listeners.deliver(raw)
}

func remoteIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		return addr[:idx]
	}
	return addr
}
