package pipeline

import (
	"log"
	"sync"
	"time"

	"threadlens/models"
)

// Consumer read timeouts per operation kind. Expand runs a full re-search
// plus collection, so its observer waits longer between events.
const (
	DefaultReadTimeout = 120 * time.Second
	ExpandReadTimeout  = 300 * time.Second

	// abandonedGrace bounds how long a finished stream waits for an
	// observer before its entry is dropped from the registry.
	abandonedGrace = 10 * time.Minute

	streamBuffer = 64
)

// ReadTimeout returns the maximum wait per event read for an operation kind.
// A consumer timeout is a broken connection, not a pipeline failure: the
// worker keeps running and committing regardless.
func ReadTimeout(kind string) time.Duration {
	if kind == models.OpExpand {
		return ExpandReadTimeout
	}
	return DefaultReadTimeout
}

type streamKey struct {
	researchID string
	kind       string
}

// Registry tracks the live progress stream for each (research, operation
// kind) pair. Each entry is single-producer/single-consumer: one worker
// writes, one observer drains. At most one worker per key may be active,
// and the registry entry doubles as that lock: it lives from Open until
// the stream's own Release, never removed on behalf of a mere observer.
type Registry struct {
	mu      sync.Mutex
	streams map[streamKey]*Stream
}

// NewRegistry creates an empty progress registry.
func NewRegistry() *Registry {
	return &Registry{streams: make(map[streamKey]*Stream)}
}

// Stream is the handle for one worker's progress events: the worker
// publishes through it, the observer drains Events and calls Release once
// done.
type Stream struct {
	registry *Registry
	key      streamKey
	ch       chan models.ProgressEvent

	mu     sync.Mutex
	closed bool
}

// Open registers a new stream for (researchID, kind). It fails when a
// worker of the same kind is already active for the research, which is how
// duplicate triggers are rejected before any work starts.
func (r *Registry) Open(researchID, kind string) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := streamKey{researchID: researchID, kind: kind}
	if _, exists := r.streams[key]; exists {
		return nil, false
	}
	stream := &Stream{
		registry: r,
		key:      key,
		ch:       make(chan models.ProgressEvent, streamBuffer),
	}
	r.streams[key] = stream
	return stream, true
}

// Attach returns the stream for (researchID, kind), or false when no
// operation of that kind is active.
func (r *Registry) Attach(researchID, kind string) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, ok := r.streams[streamKey{researchID: researchID, kind: kind}]
	if !ok {
		return nil, false
	}
	return stream, true
}

// Active reports whether a worker of the given kind is running for the
// research.
func (r *Registry) Active(researchID, kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.streams[streamKey{researchID: researchID, kind: kind}]
	return ok
}

// release drops the registry entry, but only while it still belongs to this
// stream. A stale grace timer from an earlier run must not evict the entry
// a newer worker holds as its duplicate-trigger lock.
func (r *Registry) release(stream *Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.streams[stream.key] == stream {
		delete(r.streams, stream.key)
	}
}

// Events returns the consumer side of the stream.
func (s *Stream) Events() <-chan models.ProgressEvent {
	return s.ch
}

// Release drops this stream from the registry once its terminal event has
// been drained. Calling it for a stream whose worker is still publishing
// would reopen the duplicate-trigger window, so consumers that merely give
// up waiting must not call it.
func (s *Stream) Release() {
	s.registry.release(s)
}

// Publish appends an event. A terminal event closes the channel and
// schedules the registry entry for removal in case no observer ever drains
// it. Events published after the terminal one are discarded.
func (s *Stream) Publish(event models.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if event.Terminal() {
		// The terminal event is the close signal and must reach whoever
		// drains the channel. With no observer and a full buffer, evict
		// the oldest progress events until it fits.
		delivered := false
		for !delivered {
			select {
			case s.ch <- event:
				delivered = true
			default:
				select {
				case <-s.ch:
				default:
				}
			}
		}
		s.closed = true
		close(s.ch)
		time.AfterFunc(abandonedGrace, s.Release)
		return
	}

	select {
	case s.ch <- event:
	default:
		// Nobody is draining and the buffer is full. Progress events are
		// transient; dropping one beats blocking the worker.
		log.Printf("[Progress] Buffer full for %s/%s, dropping %q", s.key.researchID, s.key.kind, event.Stage)
	}
}

// Progress publishes a non-terminal stage update.
func (s *Stream) Progress(stage, message string, percent int) {
	s.Publish(models.ProgressEvent{Stage: stage, Message: message, Progress: percent})
}

// Complete publishes the terminal success event.
func (s *Stream) Complete(message string) {
	s.Publish(models.ProgressEvent{Stage: models.StageComplete, Message: message, Progress: 100})
}

// Error publishes the terminal error event.
func (s *Stream) Error(message string) {
	s.Publish(models.ProgressEvent{Stage: models.StageError, Message: message, Progress: 0})
}
