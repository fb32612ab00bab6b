package app

// journal remembers the latest applied sequence per (event, subject). The
// backend stamps every notification with a ULID in fanout order, so plain
// string comparison gives time order and a repeated or older stamp means
// the notification was already applied.
type journal struct {
	seen map[string]string
}

func newJournal() *journal {
	return &journal{seen: make(map[string]string)}
}

// observe records the stamp and reports whether the notification is fresh.
// An empty stamp cannot be de-duplicated and always passes.
func (j *journal) observe(event, subject, seq string) bool {
	if seq == "" {
		return true
	}
	key := event + "|" + subject
	if last, ok := j.seen[key]; ok && seq <= last {
		return false
	}
	j.seen[key] = seq
	return true
}

// reset drops all stamps. Called on every room switch; stamps never
// carry over between sessions.
func (j *journal) reset() {
	j.seen = make(map[string]string)
}
