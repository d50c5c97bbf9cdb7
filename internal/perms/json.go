package perms

import (
	"encoding/json"
	"fmt"
)

// capabilityByName maps canonical names back to bit positions.
var capabilityByName = func() map[string]Capability {
	m := make(map[string]Capability, capabilityCount)
	for c := Capability(0); c < capabilityCount; c++ {
		m[c.String()] = c
	}
	return m
}()

// MarshalJSON encodes the set as a list of capability names.
func (p PermissionSet) MarshalJSON() ([]byte, error) {
	caps := p.List()
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.String()
	}
	return json.Marshal(names)
}

// UnmarshalJSON accepts either an integer bitmask, a list of capability
// names, or a list of bit positions. All three forms normalize to the
// canonical mask.
func (p *PermissionSet) UnmarshalJSON(data []byte) error {
	var mask int
	if err := json.Unmarshal(data, &mask); err == nil {
		*p = FromMask(mask)
		return nil
	}

	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		caps := make([]Capability, 0, len(names))
		for _, name := range names {
			c, ok := capabilityByName[name]
			if !ok {
				return fmt.Errorf("unknown capability %q", name)
			}
			caps = append(caps, c)
		}
		*p = FromList(caps)
		return nil
	}

	var bits []Capability
	if err := json.Unmarshal(data, &bits); err == nil {
		*p = FromList(bits)
		return nil
	}

	return fmt.Errorf("permissions must be a bitmask or a capability list")
}
