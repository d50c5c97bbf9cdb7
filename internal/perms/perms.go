// Package perms implements the capability bitmask gating access to app data.
//
// Every grant is persisted as a single integer mask over eight independent
// capability bits. Values arriving from clients may be either a mask or a
// list of capability names; PermissionSet normalizes both forms to the
// canonical mask.
package perms

import "fmt"

// Capability is a single capability bit position.
type Capability int

// Capability bit positions. The order is part of the persisted format and
// must never change.
const (
	ViewAudience Capability = iota
	ViewServerLogs
	ViewClientLogs
	ViewMetrics
	ViewFeedback
	ViewKeys
	EditSettings
	EditPermissions

	capabilityCount
)

// AllMask has every capability bit set. Granted to the owner at app creation.
const AllMask = 1<<capabilityCount - 1

// String returns the canonical capability name.
func (c Capability) String() string {
	switch c {
	case ViewAudience:
		return "VIEW_AUDIENCE"
	case ViewServerLogs:
		return "VIEW_SERVER_LOGS"
	case ViewClientLogs:
		return "VIEW_CLIENT_LOGS"
	case ViewMetrics:
		return "VIEW_METRICS"
	case ViewFeedback:
		return "VIEW_FEEDBACK"
	case ViewKeys:
		return "VIEW_KEYS"
	case EditSettings:
		return "EDIT_SETTINGS"
	case EditPermissions:
		return "EDIT_PERMISSIONS"
	default:
		return fmt.Sprintf("Capability(%d)", int(c))
	}
}

// Description returns a human-readable description of the capability.
func (c Capability) Description() string {
	switch c {
	case ViewAudience:
		return "View audience information"
	case ViewServerLogs:
		return "View server logs"
	case ViewClientLogs:
		return "View client logs"
	case ViewMetrics:
		return "View system performance"
	case ViewFeedback:
		return "View feedback"
	case ViewKeys:
		return "View keys"
	case EditSettings:
		return "Change name and description"
	case EditPermissions:
		return "Change permissions"
	default:
		return ""
	}
}

// Valid reports whether c is a defined capability bit.
func (c Capability) Valid() bool {
	return c >= 0 && c < capabilityCount
}

// PermissionSet is the canonical form of a permission value. Construct it
// with FromMask or FromList; the zero value is the empty set.
type PermissionSet struct {
	mask int
}

// FromMask builds a PermissionSet from an integer bitmask. Bits outside the
// defined capability range are dropped.
func FromMask(mask int) PermissionSet {
	return PermissionSet{mask: mask & AllMask}
}

// FromList builds a PermissionSet from a list of capabilities. Unknown
// capabilities are ignored.
func FromList(caps []Capability) PermissionSet {
	var mask int
	for _, c := range caps {
		if c.Valid() {
			mask |= 1 << c
		}
	}
	return PermissionSet{mask: mask}
}

// All returns the set containing every capability.
func All() PermissionSet {
	return PermissionSet{mask: AllMask}
}

// Mask returns the canonical integer bitmask.
func (p PermissionSet) Mask() int {
	return p.mask
}

// List returns the capabilities present in the set, in bit order.
func (p PermissionSet) List() []Capability {
	caps := make([]Capability, 0, capabilityCount)
	for c := Capability(0); c < capabilityCount; c++ {
		if p.mask&(1<<c) != 0 {
			caps = append(caps, c)
		}
	}
	return caps
}

// Contains reports whether every capability in other is present in p.
func (p PermissionSet) Contains(other PermissionSet) bool {
	return p.mask&other.mask == other.mask
}

// Has reports whether the granted set satisfies the requested set.
// In "all" mode (any=false) every requested bit must be granted; in "any"
// mode one shared bit suffices. An empty request is vacuously satisfied
// in "all" mode.
func Has(requested, granted PermissionSet, any bool) bool {
	if any {
		return granted.mask&requested.mask != 0
	}
	return granted.mask&requested.mask == requested.mask
}

// Apply combines a requested set with a granted set: the intersection in
// "all" mode, the union in "any" mode. Used to compute the mask to persist
// for a grant.
func Apply(requested, granted PermissionSet, any bool) PermissionSet {
	if any {
		return PermissionSet{mask: granted.mask | requested.mask}
	}
	return PermissionSet{mask: granted.mask & requested.mask}
}

// Grant returns current with every capability of grant added.
func Grant(current, grant PermissionSet) PermissionSet {
	return PermissionSet{mask: current.mask | grant.mask}
}

// Revoke returns current with every capability of revoke removed.
func Revoke(current, revoke PermissionSet) PermissionSet {
	return PermissionSet{mask: current.mask &^ revoke.mask}
}
