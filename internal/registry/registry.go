// Package registry implements the ServiceRegistry: a map from service name
// to the ordered list of server instances currently willing to serve it.
package registry

import "sync"

// Instance identifies one registered server.
type Instance struct {
	ServiceName string
	InstanceID  string
	ServerFD    int
}

// Registry maps service name to an ordered list of registered instances.
// Like MemDevice, it is driven entirely from the single core-state
// goroutine in this fabric's event loop; the embedded mutex exists so the
// type remains safe to reuse from a test harness that pokes at it from
// multiple goroutines, not because the hot path contends it.
type Registry struct {
	mu   sync.Mutex
	byService map[string][]Instance
}

// New returns an empty ServiceRegistry.
func New() *Registry {
	return &Registry{byService: make(map[string][]Instance)}
}

// ErrDuplicate is returned by Register when the exact (service, instance,
// fd) triple is already registered. See SPEC_FULL.md section 4.2 for why
// this implementation rejects rather than tolerates duplicates.
type ErrDuplicate struct {
	ServiceName string
	InstanceID  string
	ServerFD    int
}

func (e *ErrDuplicate) Error() string {
	return "registry: duplicate registration for service=" + e.ServiceName + " instance=" + e.InstanceID
}

// Register appends a new server instance for service. Returns ErrDuplicate
// if this exact (service, instance_id, server_fd) triple is already
// present.
func (r *Registry) Register(serviceName, instanceID string, serverFD int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byService[serviceName] {
		if existing.InstanceID == instanceID && existing.ServerFD == serverFD {
			return &ErrDuplicate{ServiceName: serviceName, InstanceID: instanceID, ServerFD: serverFD}
		}
	}
	r.byService[serviceName] = append(r.byService[serviceName], Instance{
		ServiceName: serviceName,
		InstanceID:  instanceID,
		ServerFD:    serverFD,
	})
	return nil
}

// Deregister removes the first instance matching (serviceName, instanceID,
// serverFD). Returns false if no such entry exists.
func (r *Registry) Deregister(serviceName, instanceID string, serverFD int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	instances := r.byService[serviceName]
	for i, inst := range instances {
		if inst.InstanceID == instanceID && inst.ServerFD == serverFD {
			r.byService[serviceName] = append(instances[:i], instances[i+1:]...)
			if len(r.byService[serviceName]) == 0 {
				delete(r.byService, serviceName)
			}
			return true
		}
	}
	return false
}

// Pick returns the earliest-registered still-live instance for service, or
// ok=false if none is registered.
func (r *Registry) Pick(serviceName string) (Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instances := r.byService[serviceName]
	if len(instances) == 0 {
		return Instance{}, false
	}
	return instances[0], true
}

// DropByFD removes every entry whose ServerFD equals fd, across every
// service name. Called from the disconnect path.
func (r *Registry) DropByFD(fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for service, instances := range r.byService {
		kept := instances[:0]
		for _, inst := range instances {
			if inst.ServerFD != fd {
				kept = append(kept, inst)
			}
		}
		if len(kept) == 0 {
			delete(r.byService, service)
		} else {
			r.byService[service] = kept
		}
	}
}
