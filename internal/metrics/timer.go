package metrics

import (
	"time"

	"github.com/LavishGent/imgcache/internal/types"
)

// Timer measures one operation and reports it as a timing on Stop.
// A Timer with a nil publisher only measures.
type Timer struct {
	publisher types.Publisher
	name      string
	tags      []string
	start     time.Time
}

func NewTimer(publisher types.Publisher, name string, tags ...string) *Timer {
	return &Timer{
		publisher: publisher,
		name:      name,
		tags:      tags,
		start:     time.Now(),
	}
}

// Tag appends tags known only once the operation finishes, such as a status code.
func (t *Timer) Tag(tags ...string) *Timer {
	t.tags = append(t.tags, tags...)
	return t
}

// Stop records the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)
	if t.publisher != nil {
		t.publisher.Timing(t.name, duration, t.tags...)
	}
	return duration
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
