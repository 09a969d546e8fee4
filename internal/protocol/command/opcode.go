package command

import (
	"fmt"
	"strings"
)

// Opcode selects which directory lifecycle action a Request performs.
//
// Wire values are part of the protocol and must not be renumbered. CREATE is
// the zero value, so a request that omits the operation field is a CREATE.
type Opcode int32

const (
	OpCreate Opcode = 0
	OpDelete Opcode = 1
	OpOpenRW Opcode = 2
	OpPeek   Opcode = 3
	OpPoke   Opcode = 4
	OpRemove Opcode = 5
	OpMkdir  Opcode = 6
	OpRmdir  Opcode = 7
)

var opcodeNames = map[Opcode]string{
	OpCreate: "CREATE",
	OpDelete: "DELETE",
	OpOpenRW: "OPEN_RW",
	OpPeek:   "PEEK",
	OpPoke:   "POKE",
	OpRemove: "REMOVE",
	OpMkdir:  "MKDIR",
	OpRmdir:  "RMDIR",
}

// String returns the opcode name, or OPCODE(n) for values outside the enum.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OPCODE(%d)", int32(o))
}

// Known reports whether o is one of the defined opcodes.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}

// Reserved reports whether o is recognized but has no behavior yet.
func (o Opcode) Reserved() bool {
	return o.Known() && o != OpCreate && o != OpDelete
}

// ParseOpcode looks up an opcode by name (e.g. "CREATE", "open_rw").
func ParseOpcode(name string) (Opcode, error) {
	for op, n := range opcodeNames {
		if strings.EqualFold(n, name) {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown opcode %q", name)
}
