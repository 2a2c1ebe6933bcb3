// Package optconfig is a minimal, self-contained overlay config map: a
// priority-ordered chain of Getters consulted in order until one reports a
// value, plus a fan-out Setter and a reflection-based struct binder. It is
// the generic machinery the scheme option assembler (schemeopt) is built
// on: URI query values overlaid on top of configured properties.
//
// The shape mirrors rclone's fs/config/configmap package (Simple/Getter/
// Setter/Mapper, PriorityNormal/PriorityConfig/PriorityDefault), trimmed to
// what this repository's scheme-option overlay actually needs.
package optconfig

import (
	"fmt"
	"sort"
	"strings"
)

// Priority controls the order Getters are consulted in. Lower values win:
// a value found at a lower Priority shadows the same key at a higher one.
type Priority int8

const (
	// PriorityNormal is the priority command-line/URI-derived overlays are
	// typically registered at: they should win over stored configuration.
	PriorityNormal Priority = 0
	// PriorityConfig is the priority persisted configuration is registered
	// at.
	PriorityConfig Priority = 1
	// PriorityDefault is the priority built-in defaults are registered at;
	// consulted last.
	PriorityDefault Priority = 2
)

// Getter provides name/value lookups for a config source.
type Getter interface {
	Get(key string) (value string, ok bool)
}

// Setter can persist a key/value pair back to a config source. AddSetter
// registers one; Set fans a write out to every registered Setter.
type Setter interface {
	Set(key, value string)
}

// Mapper is the union Get/Set interface a Map itself satisfies, so a Map
// can be layered inside another Map.
type Mapper interface {
	Getter
	Setter
}

// Simple is a Getter/Setter/Mapper backed directly by a plain map. It is
// the concrete type both URI query maps and flat properties maps use.
type Simple map[string]string

// Get implements Getter.
func (c Simple) Get(key string) (string, bool) {
	v, ok := c[key]
	return v, ok
}

// Set implements Setter. A nil Simple silently discards the write, the way
// a read-only overlay source would.
func (c Simple) Set(key, value string) {
	if c == nil {
		return
	}
	c[key] = value
}

// String renders c as a sorted, single-quote-escaped "key='value'" list,
// the human/debug rendering used when logging an assembled option set.
func (c Simple) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s='%s'", k, strings.ReplaceAll(c[k], "'", "''")))
	}
	return strings.Join(out, ",")
}

type getprio struct {
	getter Getter
	prio   Priority
}

// Map is a priority-ordered chain of Getters plus a fan-out list of
// Setters. Get consults getters in ascending Priority order (PriorityNormal
// first) and returns the first hit; Set writes to every registered Setter.
type Map struct {
	getters []getprio
	setters []Setter
}

// New returns an empty Map.
func New() *Map {
	return &Map{}
}

// AddGetter registers g to be consulted at the given priority. Getters at
// the same priority are consulted in registration order; across
// priorities, lower Priority values are consulted first.
func (m *Map) AddGetter(g Getter, priority Priority) *Map {
	m.getters = append(m.getters, getprio{g, priority})
	sort.SliceStable(m.getters, func(i, j int) bool {
		return m.getters[i].prio < m.getters[j].prio
	})
	return m
}

// ClearGetters removes every getter registered at or above the given
// priority (i.e. priority and anything consulted later).
func (m *Map) ClearGetters(priority Priority) *Map {
	kept := m.getters[:0:0]
	for _, gp := range m.getters {
		if gp.prio < priority {
			kept = append(kept, gp)
		}
	}
	m.getters = kept
	return m
}

// AddSetter registers s to receive every future Set call.
func (m *Map) AddSetter(s Setter) *Map {
	m.setters = append(m.setters, s)
	return m
}

// ClearSetters removes every registered Setter.
func (m *Map) ClearSetters() *Map {
	m.setters = nil
	return m
}

// Get returns the first value found for key across all registered
// getters, in priority order.
func (m *Map) Get(key string) (string, bool) {
	return m.GetPriority(key, PriorityDefault+1)
}

// GetPriority is like Get but only consults getters registered strictly
// below maxPriority (exclusive) — e.g. GetPriority(k, PriorityConfig) skips
// any PriorityDefault getter.
func (m *Map) GetPriority(key string, maxPriority Priority) (string, bool) {
	for _, gp := range m.getters {
		if gp.prio >= maxPriority {
			continue
		}
		if v, ok := gp.getter.Get(key); ok {
			return v, true
		}
	}
	return "", false
}

// Set writes key/value to every registered Setter.
func (m *Map) Set(key, value string) {
	for _, s := range m.setters {
		s.Set(key, value)
	}
}

var (
	_ Getter = Simple(nil)
	_ Setter = Simple(nil)
	_ Mapper = Simple(nil)
	_ Getter = (*Map)(nil)
	_ Setter = (*Map)(nil)
)
