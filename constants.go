package fabricmanager

import "github.com/cxlfabric/fabricmanager/internal/constants"

// Re-export fabric-wide constants for public API consumers.
const (
	NumReplicas              = constants.NumReplicas
	DefaultReplicaRegionSize = constants.DefaultReplicaRegionSize
	ServiceNameLen           = constants.ServiceNameLen
	InstanceIDLen            = constants.InstanceIDLen
)
