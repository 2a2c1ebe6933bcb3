package optconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapGet(t *testing.T) {
	m := New()

	_, found := m.Get("config1")
	assert.False(t, found)

	m1 := Simple{"config1": "one"}
	m.AddGetter(m1, PriorityNormal)

	value, found := m.Get("config1")
	assert.True(t, found)
	assert.Equal(t, "one", value)

	_, found = m.Get("config2")
	assert.False(t, found)

	m2 := Simple{"config1": "one2", "config2": "two2"}
	m.AddGetter(m2, PriorityConfig)

	value, found = m.Get("config1")
	assert.True(t, found)
	assert.Equal(t, "one", value, "normal-priority getter should still win")

	value, found = m.Get("config2")
	assert.True(t, found)
	assert.Equal(t, "two2", value)
}

func TestMapGetPriority(t *testing.T) {
	m := New()
	m.AddGetter(Simple{"k": "normal"}, PriorityNormal)
	m.AddGetter(Simple{"k": "config"}, PriorityConfig)
	m.AddGetter(Simple{"k": "default"}, PriorityDefault)

	value, found := m.GetPriority("k", PriorityNormal)
	assert.False(t, found, "PriorityNormal getters are excluded at maxPriority=PriorityNormal")

	value, found = m.GetPriority("k", PriorityConfig)
	assert.True(t, found)
	assert.Equal(t, "normal", value)

	value, found = m.GetPriority("k", PriorityDefault+1)
	assert.True(t, found)
	assert.Equal(t, "normal", value)
}

func TestMapSet(t *testing.T) {
	m := New()
	m1 := Simple{}
	m2 := Simple{}
	m.AddSetter(m1).AddSetter(m2)

	m.Set("a", "1")
	assert.Equal(t, "1", m1["a"])
	assert.Equal(t, "1", m2["a"])

	m.ClearSetters()
	m.Set("a", "2")
	assert.Equal(t, "1", m1["a"], "cleared setters must not receive further writes")
}

func TestMapClearGetters(t *testing.T) {
	m := New()
	m.AddGetter(Simple{"k": "normal"}, PriorityNormal)
	m.AddGetter(Simple{"k": "config"}, PriorityConfig)
	m.AddGetter(Simple{"k": "default"}, PriorityDefault)

	m.ClearGetters(PriorityConfig)
	value, found := m.Get("k")
	assert.True(t, found)
	assert.Equal(t, "normal", value)
}

func TestSimpleString(t *testing.T) {
	assert.Equal(t, "", Simple(nil).String())
	assert.Equal(t, "config1='one'", Simple{"config1": "one"}.String())
	assert.Equal(t, "apple='',config1='o''n''e'", Simple{
		"config1": "o'n'e",
		"apple":   "",
	}.String())
}
