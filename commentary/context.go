package commentary

import "sync"

const (
	// maxContextEntries bounds the per-match rolling history
	maxContextEntries = 20

	// promptContextEntries is how many recent lines feed the prompt
	promptContextEntries = 5
)

// contextBuffer keeps a bounded rolling history of posted commentary per
// match so the model stays consistent with what was already said.
type contextBuffer struct {
	mu      sync.Mutex
	entries map[string][]string
}

func newContextBuffer() *contextBuffer {
	return &contextBuffer{entries: make(map[string][]string)}
}

// Add appends one line to a match's history, dropping the oldest entry
// once the buffer is full.
func (b *contextBuffer) Add(matchID, line string) {
	if line == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	history := append(b.entries[matchID], line)
	if len(history) > maxContextEntries {
		history = history[len(history)-maxContextEntries:]
	}
	b.entries[matchID] = history
}

// Recent returns up to promptContextEntries of the latest lines
func (b *contextBuffer) Recent(matchID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	history := b.entries[matchID]
	if len(history) <= promptContextEntries {
		return append([]string(nil), history...)
	}
	return append([]string(nil), history[len(history)-promptContextEntries:]...)
}

// Forget drops a match's history once the session ends
func (b *contextBuffer) Forget(matchID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, matchID)
}
