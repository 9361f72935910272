package device

// TypeHandler is the capability bundle registered for one sensor type tag.
//
// Handlers own the State payload of entries of their type. The registry,
// event router and health monitor reach type-specific behaviour only
// through this interface.
type TypeHandler interface {
	// Type returns the type tag this handler serves, e.g. "temperature".
	Type() string

	// InitContext derives the initial State from a descriptor. The returned
	// State is always usable; a non-nil error wraps ErrMalformedDescriptor
	// and only reports reported fields that were ignored.
	InitContext(d Descriptor) (State, error)

	// ApplyDescriptor refreshes e.State from a fresh descriptor. The
	// descriptor wins. Errors follow the InitContext contract.
	ApplyDescriptor(e *Entry, d Descriptor) error

	// HandleEvent applies an inbound event to e.State and reports whether
	// it was applied. Event types the handler does not recognise return
	// (false, nil). A recognised event with undecodable data returns an error.
	HandleEvent(e *Entry, ev Event) (bool, error)

	// UpdateHealth projects e.Active, e.Fault and e.LowBattery onto the
	// status fields this type exposes.
	UpdateHealth(e *Entry)

	// AllowedFields lists the State keys this type may expose.
	AllowedFields() []Field
}

// TypeLookup resolves a type tag to its handler.
type TypeLookup interface {
	Lookup(typeTag string) (TypeHandler, bool)
}

// Presenter is notified of entry lifecycle changes. Implementations receive
// copies and must not block for long; they run under the registry lock.
type Presenter interface {
	EntryRegistered(e Entry)
	EntryUpdated(e Entry)
	EntryUnregistered(e Entry)
}

// noopPresenter discards every notification.
type noopPresenter struct{}

func (noopPresenter) EntryRegistered(Entry)   {}
func (noopPresenter) EntryUpdated(Entry)      {}
func (noopPresenter) EntryUnregistered(Entry) {}

// ExclusionPolicy lists type tags and identifiers that must never have an
// entry. It is fixed for the lifetime of the process.
type ExclusionPolicy struct {
	types   map[string]struct{}
	devices map[string]struct{}
}

// NewExclusionPolicy builds a policy from excluded type tags and identifiers.
// Identifiers match either the full resource name or its serial number.
func NewExclusionPolicy(types, devices []string) ExclusionPolicy {
	p := ExclusionPolicy{
		types:   make(map[string]struct{}, len(types)),
		devices: make(map[string]struct{}, len(devices)),
	}
	for _, t := range types {
		p.types[t] = struct{}{}
	}
	for _, d := range devices {
		p.devices[d] = struct{}{}
	}
	return p
}

// Excludes reports whether an entry with this identifier and type must not exist.
func (p ExclusionPolicy) Excludes(id, typeTag string) bool {
	if _, ok := p.types[typeTag]; ok {
		return true
	}
	if _, ok := p.devices[id]; ok {
		return true
	}
	_, ok := p.devices[SerialNumber(id)]
	return ok
}

// PruneState removes keys from s that are not in allowed.
// It returns the removed keys.
func PruneState(s State, allowed []Field) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		set[string(f)] = struct{}{}
	}
	var removed []string
	for k := range s {
		if _, ok := set[k]; !ok {
			delete(s, k)
			removed = append(removed, k)
		}
	}
	return removed
}
