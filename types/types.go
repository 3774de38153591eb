package types

import "context"

// Service is anything the daemon runs alongside the engine: exporters, debug
// APIs and the like. Run blocks until ctx is done; Cleanup releases whatever
// Run left behind.
type Service interface {
	Run(ctx context.Context) error
	Cleanup() error
	String() string
}

// FamilyResolver resolves generic netlink family ids by name.
type FamilyResolver interface {
	ResolveFamily(ctx context.Context, name string) (FamilyInfo, error)
}

// FamilyInfo is what services get to know about a generic netlink family.
type FamilyInfo struct {
	Name    string            `json:"name"`
	ID      uint16            `json:"id"`
	Version uint8             `json:"version"`
	Groups  map[string]uint32 `json:"groups,omitempty"`
}
