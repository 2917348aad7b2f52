package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Defaults(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	assert.Equal(t, 250*time.Millisecond, opts.PollInterval)
	assert.Equal(t, 500*time.Millisecond, opts.DwellThreshold)
	assert.Equal(t, DefaultCapacity, opts.Capacity)
	assert.Equal(t, OverflowReject, opts.OverflowPolicy)
	assert.NotNil(t, opts.Clock)
	assert.False(t, opts.IgnoreHidden)
	assert.Empty(t, opts.IgnorePatterns)
}

func TestOptions_CustomValues(t *testing.T) {
	opts := Options{
		PollInterval:   10 * time.Millisecond,
		DwellThreshold: time.Second,
		Capacity:       -1,
		OverflowPolicy: OverflowEvictOldest,
	}
	opts.setDefaults()

	assert.Equal(t, 10*time.Millisecond, opts.PollInterval)
	assert.Equal(t, time.Second, opts.DwellThreshold)
	assert.Equal(t, 0, opts.Capacity, "negative capacity means unbounded")
	assert.Equal(t, OverflowEvictOldest, opts.OverflowPolicy)
}

func TestOptions_ShouldIgnore(t *testing.T) {
	opts := Options{
		IgnoreHidden:   true,
		IgnorePatterns: []string{"*.tmp", "*.swp", "4913"},
	}
	opts.setDefaults()

	tests := []struct {
		name   string
		input  string
		expect bool
	}{
		{"hidden file", ".hidden", true},
		{"hidden in absolute path", "/data/.git/config", true},
		{"tmp file", "file.tmp", true},
		{"editor swap", "notes.txt.swp", true},
		{"vim probe", "4913", true},
		{"normal file", "report.pdf", false},
		{"normal absolute path", "/data/in/report.pdf", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, opts.shouldIgnore(tt.input))
		})
	}
}

func TestOptions_ShouldIgnore_NoIgnoreHidden(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	assert.False(t, opts.shouldIgnore(".hidden"), "Should not ignore hidden when disabled")
	assert.False(t, opts.shouldIgnore("file.txt"))
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, OverflowReject, p)

	p, err = ParseOverflowPolicy(" Evict-Oldest ")
	require.NoError(t, err)
	assert.Equal(t, OverflowEvictOldest, p)

	_, err = ParseOverflowPolicy("drop-everything")
	assert.Error(t, err)
}

func TestParseOps(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    Op
		wantErr bool
	}{
		{"empty means all", nil, OpAll, false},
		{"single", []string{"create"}, OpCreate, false},
		{"rename expands", []string{"rename"}, OpMovedFrom | OpMovedTo, false},
		{"mixed case and spaces", []string{" Delete ", "MODIFY"}, OpDelete | OpModify, false},
		{"all", []string{"all"}, OpAll, false},
		{"blank entries only", []string{"", " "}, OpAll, false},
		{"unknown", []string{"create", "chmod"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOps(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "none", Op(0).String())
	assert.Equal(t, "create|moved_from|moved_to", (OpCreate | OpRename).String())
	assert.Equal(t, "modify|0x1000", (OpModify | Op(0x1000)).String())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		mask uint32
		want RecordKind
		ok   bool
	}{
		{uint32(OpCreate), RecordCreate, true},
		{uint32(OpCreate) | maskIsDir, RecordCreate, true},
		{uint32(OpDelete), RecordDelete, true},
		{uint32(OpModify), RecordModify, true},
		{uint32(OpMovedFrom), RecordMovedFrom, true},
		{uint32(OpMovedTo), RecordMovedTo, true},
		{maskIgnored, RecordIgnored, true},
		{maskQueueOverflow, RecordOverflow, true},
		{0x00000004, 0, false}, // IN_ATTRIB
	}

	for _, tt := range tests {
		got, ok := kindOf(tt.mask)
		assert.Equal(t, tt.ok, ok, "mask 0x%x", tt.mask)
		if tt.ok {
			assert.Equal(t, tt.want, got, "mask 0x%x", tt.mask)
		}
	}
}

func TestEventType_RoundTrip(t *testing.T) {
	for _, et := range EventTypes {
		parsed, err := ParseEventType(et.String())
		require.NoError(t, err)
		assert.Equal(t, et, parsed)
	}

	_, err := ParseEventType("exploded")
	assert.Error(t, err)
	assert.Equal(t, "unknown", EventType(99).String())
}
