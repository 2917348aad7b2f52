package watcher

import (
	"fmt"
	"strings"
)

// Op is a set of change kinds a watch subscribes to. The values match the
// inotify(7) mask bits so a mask can be handed to the kernel unchanged.
type Op uint32

const (
	OpModify    Op = 0x00000002
	OpMovedFrom Op = 0x00000040
	OpMovedTo   Op = 0x00000080
	OpCreate    Op = 0x00000100
	OpDelete    Op = 0x00000200

	// OpRename subscribes to both halves of a move.
	OpRename = OpMovedFrom | OpMovedTo
	// OpAll subscribes to every kind movewatch understands.
	OpAll = OpCreate | OpDelete | OpModify | OpRename
)

var opNames = []struct {
	name string
	op   Op
}{
	{"create", OpCreate},
	{"delete", OpDelete},
	{"modify", OpModify},
	{"moved_from", OpMovedFrom},
	{"moved_to", OpMovedTo},
}

// String returns the op names joined with "|".
func (o Op) String() string {
	if o == 0 {
		return "none"
	}
	var parts []string
	for _, n := range opNames {
		if o&n.op != 0 {
			parts = append(parts, n.name)
		}
	}
	if extra := o &^ OpAll; extra != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(extra)))
	}
	return strings.Join(parts, "|")
}

// ParseOps builds an Op from names such as "create" or "rename".
// An empty list means OpAll.
func ParseOps(names []string) (Op, error) {
	if len(names) == 0 {
		return OpAll, nil
	}

	var op Op
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "":
			continue
		case "all":
			op |= OpAll
		case "rename", "move":
			op |= OpRename
		default:
			found := false
			for _, n := range opNames {
				if n.name == name {
					op |= n.op
					found = true
					break
				}
			}
			if !found {
				return 0, fmt.Errorf("unknown event kind %q", raw)
			}
		}
	}

	if op == 0 {
		return OpAll, nil
	}
	return op, nil
}
