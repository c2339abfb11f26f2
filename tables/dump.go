package tables

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Info returns the summary of a single table.
func (m *Registry) Info(sel Selector) (Summary, error) {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()

	t, err := m.resolve(sel)
	if err != nil {
		return Summary{}, err
	}

	return t.summary(), nil
}

// ForEachTable calls fn for every table in kidx order until it returns
// false.
//
// The configuration lock is held for reading while fn runs, so fn must not
// call back into the registry mutating operations.
func (m *Registry) ForEachTable(fn func(Summary) bool) {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()

	m.objects.all(func(t *table) bool {
		return fn(t.summary())
	})
}

// ListTables returns the summaries of tables whose name matches the glob
// pattern. Empty pattern matches every table.
func (m *Registry) ListTables(pattern string) ([]Summary, error) {
	var matcher glob.Glob
	if pattern != "" {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to compile pattern %q: %v", ErrInvalidArgument, pattern, err)
		}
		matcher = g
	}

	out := []Summary{}
	m.ForEachTable(func(s Summary) bool {
		if matcher == nil || matcher.Match(s.Name) {
			out = append(out, s)
		}
		return true
	})

	return out, nil
}

// DumpTable calls fn for every entry of the table until it returns false.
//
// Enumeration runs under the read configuration lock only: it never blocks
// lookups and observes every completed commit.
func (m *Registry) DumpTable(sel Selector, fn func(Entry) bool) error {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()

	t, err := m.resolve(sel)
	if err != nil {
		return err
	}

	t.algo.algo.ForEach(t.state, t.ti, fn)
	return nil
}

// ExportTable serializes the table into a buffer of at most bufSize bytes.
//
// When the table does not fit, a *BufferTooSmallError carrying the
// required size is returned; the caller retries with a larger buffer.
func (m *Registry) ExportTable(sel Selector, bufSize int) ([]byte, error) {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()

	t, err := m.resolve(sel)
	if err != nil {
		return nil, err
	}

	entries := []Entry{}
	t.algo.algo.ForEach(t.state, t.ti, func(e Entry) bool {
		entries = append(entries, e)
		return true
	})

	required := ExportSize(len(entries))
	if bufSize < required {
		return nil, &BufferTooSmallError{Required: required}
	}

	return encodeExport(t.summary(), entries), nil
}

// ListAlgorithms returns the registered algorithms in registration order.
func (m *Registry) ListAlgorithms() []AlgorithmInfo {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()

	return m.algos.info()
}
