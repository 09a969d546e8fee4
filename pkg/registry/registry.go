// Package registry holds the process-wide context shared by every adapter:
// the logger, the store handle, the event bus and the command processor.
//
// A Registry is built once at startup and injected into adapters through
// SetRegistry. It also tracks connected clients across adapters so that
// operators can see who is attached.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/atlasfs/internal/logger"
	"github.com/marmos91/atlasfs/pkg/events"
	"github.com/marmos91/atlasfs/pkg/processor"
	"github.com/marmos91/atlasfs/pkg/store/kv"
)

// Components are the shared resources a Registry carries.
type Components struct {
	Logger    *logger.Logger
	Store     *kv.Handle
	Bus       *events.Bus
	Processor *processor.Processor
}

// ClientInfo describes a connected client.
type ClientInfo struct {
	ID          string
	Protocol    string
	RemoteAddr  string
	ConnectedAt time.Time

	seq uint64
}

// Registry is the explicit process context.
//
// Example usage:
//
//	reg, _ := registry.New(registry.Components{Logger: log, Store: h, Bus: bus, Processor: proc})
//	adapter.SetRegistry(reg)
//	...
//	reg.Close()
type Registry struct {
	log   *logger.Logger
	store *kv.Handle
	bus   *events.Bus
	proc  *processor.Processor

	mu      sync.RWMutex
	clients map[string]*ClientInfo
	nextSeq uint64

	closeOnce sync.Once
}

// New validates c and builds a Registry. The registry takes ownership of
// the store handle and the bus and releases them on Close.
func New(c Components) (*Registry, error) {
	if c.Store == nil {
		return nil, errors.New("registry: store handle is required")
	}
	if c.Bus == nil {
		return nil, errors.New("registry: event bus is required")
	}
	if c.Processor == nil {
		return nil, errors.New("registry: processor is required")
	}
	if c.Logger == nil {
		c.Logger = logger.Default()
	}

	return &Registry{
		log:     c.Logger,
		store:   c.Store,
		bus:     c.Bus,
		proc:    c.Processor,
		clients: make(map[string]*ClientInfo),
	}, nil
}

func (r *Registry) Logger() *logger.Logger {
	return r.log
}

// Store returns the shared handle. Callers that outlive a request should
// Clone it and close their clone.
func (r *Registry) Store() *kv.Handle {
	return r.store
}

func (r *Registry) Bus() *events.Bus {
	return r.bus
}

func (r *Registry) Processor() *processor.Processor {
	return r.proc
}

// RegisterClient records a connected client and returns its ID.
func (r *Registry) RegisterClient(protocol, remoteAddr string) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	r.clients[id] = &ClientInfo{
		ID:          id,
		Protocol:    protocol,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		seq:         r.nextSeq,
	}
	return id
}

// UnregisterClient forgets a client. Returns false if the ID was unknown.
func (r *Registry) UnregisterClient(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; !ok {
		return false
	}
	delete(r.clients, id)
	return true
}

// ListClients returns a snapshot of connected clients ordered by connect time.
func (r *Registry) ListClients() []ClientInfo {
	r.mu.RLock()
	out := make([]ClientInfo, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, *c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].seq < out[j].seq
	})
	return out
}

// CountClients returns the number of connected clients for protocol, or
// for all protocols when protocol is empty.
func (r *Registry) CountClients(protocol string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if protocol == "" {
		return len(r.clients)
	}
	n := 0
	for _, c := range r.clients {
		if c.Protocol == protocol {
			n++
		}
	}
	return n
}

// Close closes the bus, then releases the store handle.
func (r *Registry) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.bus.Close()
		if cerr := r.store.Close(); cerr != nil {
			err = fmt.Errorf("registry: close store: %w", cerr)
		}
	})
	return err
}
