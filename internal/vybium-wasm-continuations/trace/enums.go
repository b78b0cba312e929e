package trace

import "fmt"

// StepKind classifies the effect of one executed instruction. Only the
// kinds that move frames, pages or host cursors are distinguished; every
// other opcode is Plain.
type StepKind uint8

const (
	Plain StepKind = iota
	Call
	CallIndirect
	CallHost
	Return
	MemoryGrow
)

var stepKindNames = []string{"plain", "call", "call_indirect", "call_host", "return", "memory_grow"}

// LocationType is the memory class of a cell
type LocationType uint8

const (
	Stack LocationType = iota
	Heap
	Global
)

var locationNames = []string{"stack", "heap", "global"}

// ValueType is the width of a stored value
type ValueType uint8

const (
	I32 ValueType = iota
	I64
)

var valueTypeNames = []string{"i32", "i64"}

// AccessType is the direction of a memory access. Init marks a value taken
// from the program image rather than from a prior write.
type AccessType uint8

const (
	Read AccessType = iota
	Write
	Init
)

var accessNames = []string{"read", "write", "init"}

// HostPlugin identifies the host function family of a CallHost step
type HostPlugin uint8

const (
	// HostInput is wasm_input; only calls flagged public advance the
	// public input index
	HostInput HostPlugin = iota
	ContextIn
	ContextOut
	// External covers foreign calls (hash, pairing, merkle)
	External
)

var hostPluginNames = []string{"host_input", "context_in", "context_out", "external"}

func enumString(names []string, v int, kind string) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", kind, v)
}

func enumParse(names []string, text []byte, kind string) (int, error) {
	s := string(text)
	for i, name := range names {
		if name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, s)
}

func (k StepKind) String() string { return enumString(stepKindNames, int(k), "StepKind") }

// MarshalText encodes the kind by name
func (k StepKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes the kind from its name
func (k *StepKind) UnmarshalText(text []byte) error {
	v, err := enumParse(stepKindNames, text, "step kind")
	*k = StepKind(v)
	return err
}

// IsCall reports whether the step opens a frame
func (k StepKind) IsCall() bool { return k == Call || k == CallIndirect }

func (l LocationType) String() string { return enumString(locationNames, int(l), "LocationType") }

func (l LocationType) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *LocationType) UnmarshalText(text []byte) error {
	v, err := enumParse(locationNames, text, "location type")
	*l = LocationType(v)
	return err
}

func (v ValueType) String() string { return enumString(valueTypeNames, int(v), "ValueType") }

func (v ValueType) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *ValueType) UnmarshalText(text []byte) error {
	n, err := enumParse(valueTypeNames, text, "value type")
	*v = ValueType(n)
	return err
}

func (a AccessType) String() string { return enumString(accessNames, int(a), "AccessType") }

func (a AccessType) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AccessType) UnmarshalText(text []byte) error {
	v, err := enumParse(accessNames, text, "access type")
	*a = AccessType(v)
	return err
}

func (p HostPlugin) String() string { return enumString(hostPluginNames, int(p), "HostPlugin") }

func (p HostPlugin) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *HostPlugin) UnmarshalText(text []byte) error {
	v, err := enumParse(hostPluginNames, text, "host plugin")
	*p = HostPlugin(v)
	return err
}
