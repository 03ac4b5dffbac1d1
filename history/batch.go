package history

// Batch runs fn with history appends redirected into a single entry, per
// SPEC_FULL.md §4.6: ops still dispatch immediately as fn runs, but their
// reverse ops land in one undo entry and the caller emits one coalesced
// notification once fn returns, instead of one per op.
//
// notify is called exactly once, after fn returns, only if fn actually
// produced history items (mirrors the room's rule that an empty batch —
// e.g. updatePresence calls with no listeners, or a no-op mutation —
// emits nothing). Nested calls to Batch panic: SPEC_FULL.md §7 treats
// that as a caller programming error, not a recoverable condition.
func (s *Stacks) Batch(fn func(), notify func()) {
	if s.batching {
		panic("history: nested batch")
	}
	s.BeginBatch()
	defer func() {
		_, produced := s.EndBatch()
		if produced && notify != nil {
			notify()
		}
	}()
	fn()
}
