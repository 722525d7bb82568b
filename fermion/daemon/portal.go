package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

const shutdownTimeout = 2 * time.Second

// portalServer serves the configuration form while the device waits for one.
type portalServer struct {
	log     logr.Logger
	addr    string
	handler http.Handler

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
}

func newPortalServer(log logr.Logger, addr string, handler http.Handler) *portalServer {
	return &portalServer{
		log:     log.WithName("portal").WithValues("address", addr),
		addr:    addr,
		handler: handler,
	}
}

func (p *portalServer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.server != nil {
		return nil
	}
	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           p.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	p.server, p.ln = server, ln
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Error(err, "Configuration portal failed")
		}
	}()
	p.log.Info("Configuration portal started", "listen", ln.Addr().String())
	return nil
}

// Addr is the listening address, nil when stopped.
func (p *portalServer) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ln == nil {
		return nil
	}
	return p.ln.Addr()
}

func (p *portalServer) Stop() {
	p.mu.Lock()
	server := p.server
	p.server, p.ln = nil, nil
	p.mu.Unlock()
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		p.log.Error(err, "Stopping configuration portal")
		_ = server.Close()
	}
	p.log.Info("Configuration portal stopped")
}
