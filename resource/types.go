package resource

// Handle is an opaque reference to a slot in a Store.
// The low 24 bits hold the slot number (1-based) and the high 8 bits hold the
// slot's generation at insertion time. Handle 0 is reserved and always invalid.
type Handle uint32

const (
	slotBits = 24
	slotMask = 1<<slotBits - 1

	// MaxSlots is the largest number of slots a Store allocates. Retired
	// slots count against it.
	MaxSlots = slotMask
)

func makeHandle(slot uint32, gen uint8) Handle {
	return Handle(uint32(gen)<<slotBits | slot&slotMask)
}

// Slot returns the 1-based slot number, or 0 for the null handle.
func (h Handle) Slot() uint32 {
	return uint32(h) & slotMask
}

// Generation returns the slot generation the handle was issued for.
func (h Handle) Generation() uint8 {
	return uint8(uint32(h) >> slotBits)
}

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	TypeID uint32
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}
