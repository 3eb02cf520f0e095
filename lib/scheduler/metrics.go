package scheduler

import "sync"

type tickMetrics struct {
	mu       sync.Mutex
	selected int
	checked  int
	failed   int
	skipped  int
}

func (m *tickMetrics) ok() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checked++
}

func (m *tickMetrics) fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
}

func (m *tickMetrics) skip() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}

func (m *tickMetrics) logArgs(extra ...any) []any {
	m.mu.Lock()
	defer m.mu.Unlock()

	args := []any{"selected", m.selected}
	if m.checked != 0 {
		args = append(args, "checked", m.checked)
	}
	if m.failed != 0 {
		args = append(args, "failed", m.failed)
	}
	if m.skipped != 0 {
		args = append(args, "skipped", m.skipped)
	}
	return append(args, extra...)
}
