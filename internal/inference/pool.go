package inference

import "sync"

// CredentialPool is a ranked set of interchangeable credentials for one
// provider. Each credential carries a failed flag set on rate-limit or auth
// rejection; when every credential is flagged the pool clears all flags and
// starts over. Safe for concurrent use; marking is at-least-once, so a
// credential may occasionally be retried once after being flagged.
type CredentialPool struct {
	mu     sync.Mutex
	keys   []string
	failed []bool
	next   int
}

// NewCredentialPool creates a pool over the given keys, in rank order.
func NewCredentialPool(keys []string) *CredentialPool {
	return &CredentialPool{
		keys:   keys,
		failed: make([]bool, len(keys)),
	}
}

// Size returns the total number of credentials.
func (p *CredentialPool) Size() int {
	return len(p.keys)
}

// Next returns the next usable credential, rotating round-robin and
// skipping failed ones. When all credentials are flagged, every flag is
// cleared and rotation restarts from the full set.
func (p *CredentialPool) Next() (int, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return 0, "", false
	}

	available := 0
	for _, f := range p.failed {
		if !f {
			available++
		}
	}
	if available == 0 {
		for i := range p.failed {
			p.failed[i] = false
		}
	}

	for i := 0; i < len(p.keys); i++ {
		idx := (p.next + i) % len(p.keys)
		if !p.failed[idx] {
			p.next = (idx + 1) % len(p.keys)
			return idx, p.keys[idx], true
		}
	}
	return 0, "", false
}

// MarkFailed flags a credential as temporarily unusable.
func (p *CredentialPool) MarkFailed(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx >= 0 && idx < len(p.failed) {
		p.failed[idx] = true
	}
}

// IsFailed reports whether a credential is currently flagged.
func (p *CredentialPool) IsFailed(idx int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return idx >= 0 && idx < len(p.failed) && p.failed[idx]
}

// FailedCount returns how many credentials are currently flagged.
func (p *CredentialPool) FailedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, f := range p.failed {
		if f {
			n++
		}
	}
	return n
}

// Reset clears every failed flag.
func (p *CredentialPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.failed {
		p.failed[i] = false
	}
}
