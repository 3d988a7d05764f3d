package tiletask

import "strings"

// TaskSet names a category of tasks whose joint completion is reported to
// the runner's client.
type TaskSet uint8

const (
	// RequiredForActivation tags tiles needed before a pending tree can
	// be activated.
	RequiredForActivation TaskSet = iota

	// RequiredForDraw tags tiles needed to draw the active tree.
	RequiredForDraw

	// All tags every task.
	All
)

// NumTaskSets is the number of named task sets.
const NumTaskSets = 3

// String returns the task set name.
func (s TaskSet) String() string {
	switch s {
	case RequiredForActivation:
		return "RequiredForActivation"
	case RequiredForDraw:
		return "RequiredForDraw"
	case All:
		return "All"
	default:
		return "TaskSet(?)"
	}
}

// TaskSetCollection is a bitset over the named task sets.
// The zero value is the empty collection.
type TaskSetCollection uint8

// NewTaskSetCollection returns a collection holding sets.
func NewTaskSetCollection(sets ...TaskSet) TaskSetCollection {
	var c TaskSetCollection
	for _, s := range sets {
		c.Set(s)
	}
	return c
}

// Set adds s to the collection.
func (c *TaskSetCollection) Set(s TaskSet) {
	*c |= 1 << s
}

// Clear removes s from the collection.
func (c *TaskSetCollection) Clear(s TaskSet) {
	*c &^= 1 << s
}

// Has reports whether s is in the collection.
func (c TaskSetCollection) Has(s TaskSet) bool {
	return c&(1<<s) != 0
}

// Any reports whether at least one set is present.
func (c TaskSetCollection) Any() bool {
	return c != 0
}

// Empty reports whether no set is present.
func (c TaskSetCollection) Empty() bool {
	return c == 0
}

// Each calls fn for every set in the collection in ascending order.
func (c TaskSetCollection) Each(fn func(TaskSet)) {
	for s := TaskSet(0); s < NumTaskSets; s++ {
		if c.Has(s) {
			fn(s)
		}
	}
}

func (c TaskSetCollection) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	c.Each(func(s TaskSet) {
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(s.String())
	})
	b.WriteByte('}')
	return b.String()
}
