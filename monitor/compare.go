package monitor

import (
	"fmt"
	"strings"
)

type ClassKind int

const (
	FirstCheck ClassKind = iota
	NoChange
	Changed
)

// Transition is one tracked field that moved between two checks.
type Transition struct {
	Field string
	Old   string
	New   string
}

func (t Transition) String() string {
	return fmt.Sprintf("%s: %s -> %s", t.Field, t.Old, t.New)
}

// Classification is the result of comparing the stored record with a new one.
// Transitions is only set for Changed.
type Classification struct {
	Kind        ClassKind
	Transitions []Transition
}

func (c Classification) String() string {
	switch c.Kind {
	case FirstCheck:
		return "FIRST_CHECK"
	case NoChange:
		return "NO_CHANGE"
	}
	parts := make([]string, 0, len(c.Transitions))
	for _, t := range c.Transitions {
		parts = append(parts, t.String())
	}
	return strings.Join(parts, ", ")
}

// Field labels are the register offsets the codes were read from.
const (
	FieldHealth        = "0x1F0"
	FieldSecondary     = "0x1F2"
	FieldRebuildStatus = "0x1F5"
	FieldRebuildPhase  = "0x1FA"
)

// Compare classifies cur against prev. Codes are compared as exact strings,
// so callers must hand in normalized two-digit codes.
func Compare(prev, cur *FlagRecord) Classification {
	if prev == nil {
		return Classification{Kind: FirstCheck}
	}
	tracked := []struct {
		field    string
		old, new string
	}{
		{FieldHealth, prev.Health, cur.Health},
		{FieldRebuildStatus, prev.RebuildStatus, cur.RebuildStatus},
		{FieldRebuildPhase, prev.RebuildPhase, cur.RebuildPhase},
	}
	var out []Transition
	for _, f := range tracked {
		if f.old != f.new {
			out = append(out, Transition{Field: f.field, Old: f.old, New: f.new})
		}
	}
	if len(out) == 0 {
		return Classification{Kind: NoChange}
	}
	return Classification{Kind: Changed, Transitions: out}
}
