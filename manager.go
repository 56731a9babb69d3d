// Package fabricmanager implements the fabric manager: a single process
// that discovers RPC services, allocates replicated shared-memory channels
// across a pool of host-backed memory devices, and brokers the replicated
// read/write path between clients and the servers they address.
package fabricmanager

import (
	"fmt"

	"github.com/cxlfabric/fabricmanager/internal/channeltable"
	"github.com/cxlfabric/fabricmanager/internal/constants"
	"github.com/cxlfabric/fabricmanager/internal/interfaces"
	"github.com/cxlfabric/fabricmanager/internal/logging"
	"github.com/cxlfabric/fabricmanager/internal/memdevice"
	"github.com/cxlfabric/fabricmanager/internal/registry"
)

const deviceHealthy = memdevice.StatusHealthy

// Config configures a Manager. It is the entire configuration surface this
// fabric has: there is no config file format, matching the CLI-only
// surface described in SPEC_FULL.md section 10.
type Config struct {
	ClientSocketPath string
	AdminSocketPath  string
	ReplicaSize      uint64
	ReplicaPaths     []string

	Logger   *logging.Logger
	Observer interfaces.Observer
}

// DefaultConfig returns the reference fabric's defaults: NUM_REPLICAS=3,
// 256 MiB per-region replica size. ReplicaPaths and the socket paths must
// still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		ReplicaSize: constants.DefaultReplicaRegionSize,
	}
}

// Manager owns every fabric component: the memory devices, the service
// registry, the channel table, and the connection registry, plus the
// single core-state goroutine that serializes access to all of them.
type Manager struct {
	cfg         Config
	logger      *logging.Logger
	observer    interfaces.Observer
	numReplicas int

	devices  []*memdevice.Device
	registry *registry.Registry
	channels *channeltable.Table

	// conns is only ever read or written from the core-state goroutine.
	conns map[int]*connHandle

	cmdCh chan func()
	done  chan struct{}
}

// New opens every backing file in cfg.ReplicaPaths and constructs a Manager
// ready to Run. It does not start accepting connections.
func New(cfg Config) (*Manager, error) {
	if cfg.ReplicaSize == 0 {
		cfg.ReplicaSize = constants.DefaultReplicaRegionSize
	}
	if len(cfg.ReplicaPaths) != constants.NumReplicas {
		return nil, fmt.Errorf("fabricmanager: need exactly %d replica paths, got %d", constants.NumReplicas, len(cfg.ReplicaPaths))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NoOpObserver{}
	}

	devices := make([]*memdevice.Device, 0, len(cfg.ReplicaPaths))
	for _, path := range cfg.ReplicaPaths {
		dev, err := memdevice.Open(path, cfg.ReplicaSize)
		if err != nil {
			for _, opened := range devices {
				opened.Close()
			}
			return nil, fmt.Errorf("fabricmanager: opening backing devices: %w", err)
		}
		devices = append(devices, dev)
	}

	return &Manager{
		cfg:         cfg,
		logger:      logger,
		observer:    observer,
		numReplicas: constants.NumReplicas,
		devices:     devices,
		registry:    registry.New(),
		channels:    channeltable.New(),
		conns:       make(map[int]*connHandle),
		cmdCh:       make(chan func(), constants.CommandQueueDepth),
		done:        make(chan struct{}),
	}, nil
}

// call enqueues fn on the core-state goroutine and blocks until it has run.
// Every handler in handlers.go is only ever invoked this way: the core-state
// goroutine is the sole mutator of the registry, channel table, and device
// allocators (SPEC_FULL.md section 5).
func (m *Manager) call(fn func()) {
	result := make(chan struct{})
	m.cmdCh <- func() {
		fn()
		close(result)
	}
	<-result
}

// runCore is the core-state goroutine's body: it drains cmdCh until Close is
// called, running each closure to completion before picking up the next.
func (m *Manager) runCore() {
	for {
		select {
		case fn := <-m.cmdCh:
			fn()
		case <-m.done:
			m.drainRemaining()
			return
		}
	}
}

// drainRemaining runs any closures already queued at shutdown time so
// in-flight requests get a response instead of hanging forever.
func (m *Manager) drainRemaining() {
	for {
		select {
		case fn := <-m.cmdCh:
			fn()
		default:
			return
		}
	}
}

// Close shuts down the core-state goroutine and unmaps every backing
// device. It does not close any listeners; Run calls it itself after closing
// both listeners and draining its connections (see eventloop.go).
func (m *Manager) Close() error {
	close(m.done)
	var firstErr error
	for _, dev := range m.devices {
		if err := dev.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Metrics exposes the manager's registered observer, if it is a *Metrics
// (constructed via NewMetrics); otherwise returns nil.
func (m *Manager) Metrics() *Metrics {
	if metrics, ok := m.observer.(*Metrics); ok {
		return metrics
	}
	return nil
}
