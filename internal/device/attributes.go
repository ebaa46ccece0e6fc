package device

import (
	"fmt"
	"sort"

	"github.com/nerrad567/novacloud-core/internal/automation"
)

// attributeAccessors is the closed set of device attributes a strategy
// condition may read. Names outside this set are configuration errors.
var attributeAccessors = map[string]func(d *Device) any{
	"id":         func(d *Device) any { return d.ID },
	"identifier": func(d *Device) any { return d.Identifier },
	"name":       func(d *Device) any { return d.Name },
	"status":     func(d *Device) any { return string(d.Status) },
	"project_id": func(d *Device) any { return d.ProjectID },
	"last_seen": func(d *Device) any {
		if d.LastSeen == nil {
			return nil
		}
		return *d.LastSeen
	},
	"created_at": func(d *Device) any { return d.CreatedAt },
}

// Attribute returns the named attribute of d. Unknown names return an error
// wrapping automation.ErrUnknownAttribute.
func Attribute(d *Device, name string) (any, error) {
	accessor, ok := attributeAccessors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", automation.ErrUnknownAttribute, name)
	}
	return accessor(d), nil
}

// AttributeNames returns the readable attribute names, sorted.
func AttributeNames() []string {
	names := make([]string, 0, len(attributeAccessors))
	for name := range attributeAccessors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
