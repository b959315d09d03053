package models

// Availability represents whether an executor can accept work.
type Availability string

const (
	// AvailabilityAvailable indicates the executor can accept work.
	AvailabilityAvailable Availability = "available"
	// AvailabilityBusy indicates the executor is occupied.
	AvailabilityBusy Availability = "busy"
	// AvailabilityOffline indicates the executor is unreachable.
	AvailabilityOffline Availability = "offline"
)

// Valid returns true if the availability is a known value.
func (a Availability) Valid() bool {
	switch a {
	case AvailabilityAvailable, AvailabilityBusy, AvailabilityOffline:
		return true
	default:
		return false
	}
}

// ExecutorDescriptor describes a registered capability provider.
type ExecutorDescriptor struct {
	// ID is the unique registry key.
	ID string `json:"id" yaml:"id"`
	// Capabilities is the set of capability tags this executor serves.
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	// Availability is the executor's current availability.
	Availability Availability `json:"availability" yaml:"availability"`
}

// HasCapability reports whether the descriptor lists tag.
func (d ExecutorDescriptor) HasCapability(tag string) bool {
	for _, c := range d.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}
