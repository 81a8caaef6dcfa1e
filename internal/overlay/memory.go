package overlay

import (
	"context"
	"sort"
	"sync"
)

// Op is one recorded surface call.
type Op struct {
	Kind  string // "set" or "remove"
	Chart string
	Name  string
}

// MemorySurface keeps lines in memory and records every call.
type MemorySurface struct {
	mu      sync.Mutex
	charts  map[string]map[string]Line
	history []Op
}

// NewMemorySurface creates an empty MemorySurface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{charts: make(map[string]map[string]Line)}
}

func (m *MemorySurface) SetLine(_ context.Context, line Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines, ok := m.charts[line.Chart]
	if !ok {
		lines = make(map[string]Line)
		m.charts[line.Chart] = lines
	}
	lines[line.Name] = line
	m.history = append(m.history, Op{Kind: "set", Chart: line.Chart, Name: line.Name})
	return nil
}

func (m *MemorySurface) RemoveLine(_ context.Context, chart, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.charts[chart], name)
	m.history = append(m.history, Op{Kind: "remove", Chart: chart, Name: name})
	return nil
}

// Lines returns the lines of chart sorted by name.
func (m *MemorySurface) Lines(chart string) []Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Line, 0, len(m.charts[chart]))
	for _, l := range m.charts[chart] {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Line returns one line by name.
func (m *MemorySurface) Line(chart, name string) (Line, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.charts[chart][name]
	return l, ok
}

// History returns the recorded calls in order.
func (m *MemorySurface) History() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Op, len(m.history))
	copy(out, m.history)
	return out
}
