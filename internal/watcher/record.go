package watcher

// RecordKind is the kind of a decoded low-level change record.
type RecordKind int

const (
	RecordCreate RecordKind = iota
	RecordDelete
	RecordModify
	RecordMovedFrom
	RecordMovedTo
	// RecordIgnored reports that the kernel dropped a watch.
	RecordIgnored
	// RecordOverflow reports that the kernel queue overflowed and records were lost.
	RecordOverflow
)

// Mask bits decoded alongside the Op bits.
const (
	maskQueueOverflow uint32 = 0x00004000
	maskIgnored       uint32 = 0x00008000
	maskIsDir         uint32 = 0x40000000
)

// String returns the string representation of the record kind.
func (k RecordKind) String() string {
	switch k {
	case RecordCreate:
		return "create"
	case RecordDelete:
		return "delete"
	case RecordModify:
		return "modify"
	case RecordMovedFrom:
		return "moved_from"
	case RecordMovedTo:
		return "moved_to"
	case RecordIgnored:
		return "ignored"
	case RecordOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Record is one decoded change record from the notification facility.
type Record struct {
	Name    string
	WatchID int
	Cookie  uint32
	Kind    RecordKind
	IsDir   bool
}

// kindOf maps a raw inotify mask to a record kind. The order of the checks
// decides which kind wins when the kernel sets several bits.
func kindOf(mask uint32) (RecordKind, bool) {
	switch {
	case mask&maskQueueOverflow != 0:
		return RecordOverflow, true
	case mask&maskIgnored != 0:
		return RecordIgnored, true
	case mask&uint32(OpCreate) != 0:
		return RecordCreate, true
	case mask&uint32(OpDelete) != 0:
		return RecordDelete, true
	case mask&uint32(OpModify) != 0:
		return RecordModify, true
	case mask&uint32(OpMovedFrom) != 0:
		return RecordMovedFrom, true
	case mask&uint32(OpMovedTo) != 0:
		return RecordMovedTo, true
	default:
		return 0, false
	}
}
