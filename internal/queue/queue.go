// Package queue serializes writes to the memory store.
//
// Each subject has its own FIFO lane with at most one job in flight, so a
// subject's writes reach the store in submission order. Lanes of different
// subjects drain independently. A Queue has a single owner: the ingestion
// pipeline that constructed it.
package queue

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/mnemo/internal/errors"
	"github.com/hpungsan/mnemo/internal/metrics"
	"github.com/hpungsan/mnemo/internal/observe"
	"github.com/hpungsan/mnemo/internal/store"
)

// ErrClosed is the drop reason for jobs submitted after Close.
var ErrClosed = stderrors.New("queue: closed")

// ErrEmptyJob is the drop reason for jobs with nothing to write.
var ErrEmptyJob = stderrors.New("queue: job has no message and no segments")

// Mode selects how callers wait on submitted jobs.
type Mode int

const (
	// NonBlocking callers enqueue and return; outcomes are only logged.
	NonBlocking Mode = iota
	// Blocking callers wait for each job's outcome.
	Blocking
)

func (m Mode) String() string {
	if m == Blocking {
		return "blocking"
	}
	return "non-blocking"
}

// Writer is the subset of the store adapter the queue needs.
type Writer interface {
	AppendMessages(ctx context.Context, conversationID string, messages []store.Message) error
	AppendFact(ctx context.Context, subjectID, text string) error
}

// Job is one unit of storage work: a direct message or ordered segments.
type Job struct {
	ID             string
	SubjectID      string
	ConversationID string
	Message        *store.Message
	Segments       []string
}

// DirectJob builds a job that appends msg to a conversation.
func DirectJob(subjectID, conversationID string, msg store.Message) Job {
	return Job{SubjectID: subjectID, ConversationID: conversationID, Message: &msg}
}

// SegmentedJob builds a job that ingests segments, in order, as facts.
func SegmentedJob(subjectID string, segments []string) Job {
	return Job{SubjectID: subjectID, Segments: segments}
}

// Kind names the write path of the job.
func (j Job) Kind() string {
	if j.Message != nil {
		return "direct"
	}
	return "segmented"
}

// Status is the best-effort result of a job.
type Status int

const (
	Delivered Status = iota
	Dropped
)

func (s Status) String() string {
	if s == Delivered {
		return "delivered"
	}
	return "dropped"
}

// Outcome reports what happened to a job. Reason is set for dropped jobs.
// Written counts the writes that succeeded (segments for segmented jobs).
type Outcome struct {
	JobID     string
	SubjectID string
	Kind      string
	Status    Status
	Reason    error
	Written   int
	Elapsed   time.Duration
}

// Ticket tracks one submitted job.
type Ticket struct {
	ID   string
	done chan Outcome
}

// Done delivers exactly one Outcome when the job finishes.
func (t *Ticket) Done() <-chan Outcome {
	return t.done
}

// Wait blocks until the job finishes or ctx ends. The job itself is never
// cancelled; a ctx error only stops the waiting.
func (t *Ticket) Wait(ctx context.Context) (Outcome, error) {
	select {
	case o := <-t.done:
		return o, nil
	case <-ctx.Done():
		return Outcome{JobID: t.ID}, ctx.Err()
	}
}

// Options configures a Queue.
type Options struct {
	Mode Mode
	// WarnDepth is the soft backpressure threshold. Zero disables the warning.
	WarnDepth int
	Observer  *observe.Observer
	Metrics   *metrics.Metrics
	// OnOutcome, when set, is called after every job finishes.
	OnOutcome func(Outcome)
}

type entry struct {
	job    Job
	ticket *Ticket
}

type lane struct {
	pending []*entry
}

// Queue is the ordered write queue.
type Queue struct {
	writer Writer
	opts   Options
	obs    *observe.Observer

	mu     sync.Mutex
	lanes  map[string]*lane
	depth  int
	warned bool
	closed bool
	idle   chan struct{}
}

// New creates a Queue writing through w.
func New(w Writer, opts Options) *Queue {
	obs := opts.Observer
	if obs == nil {
		obs = observe.Discard()
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		writer: w,
		opts:   opts,
		obs:    obs,
		lanes:  make(map[string]*lane),
		idle:   idle,
	}
}

// Mode returns the configured execution mode.
func (q *Queue) Mode() Mode {
	return q.opts.Mode
}

// Depth returns the number of queued and in-flight jobs.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}

// Submit enqueues job and returns its ticket. Submit never blocks and never
// rejects for depth: past WarnDepth it only logs a warning. Jobs submitted
// after Close, or with nothing to write, finish immediately as Dropped.
func (q *Queue) Submit(job Job) *Ticket {
	if job.ID == "" {
		job.ID = newJobID()
	}
	t := &Ticket{ID: job.ID, done: make(chan Outcome, 1)}

	if job.Message == nil && len(job.Segments) == 0 {
		q.finish(t, Outcome{JobID: job.ID, SubjectID: job.SubjectID, Kind: job.Kind(), Status: Dropped, Reason: ErrEmptyJob})
		return t
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.finish(t, Outcome{JobID: job.ID, SubjectID: job.SubjectID, Kind: job.Kind(), Status: Dropped, Reason: ErrClosed})
		return t
	}

	if q.depth == 0 {
		q.idle = make(chan struct{})
	}
	q.depth++
	depth := q.depth
	q.opts.Metrics.SetDepth(depth)

	if q.opts.WarnDepth > 0 && depth > q.opts.WarnDepth && !q.warned {
		q.warned = true
		q.opts.Metrics.BackpressureWarning()
		q.obs.Log().Warn().
			Int("depth", depth).
			Int("threshold", q.opts.WarnDepth).
			Msg("write queue above soft threshold; writes may be lost if the process exits before they drain")
	}

	l, running := q.lanes[job.SubjectID]
	if !running {
		l = &lane{}
		q.lanes[job.SubjectID] = l
	}
	l.pending = append(l.pending, &entry{job: job, ticket: t})
	q.mu.Unlock()

	q.obs.Log().Debug().
		Str("job", job.ID).
		Str("subject", job.SubjectID).
		Str("kind", job.Kind()).
		Int("depth", depth).
		Msg("write job queued")

	if !running {
		go q.drain(job.SubjectID, l)
	}
	return t
}

// Close stops accepting jobs. Jobs already queued still run.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Flush blocks until every queued and in-flight job has been attempted, or
// ctx ends.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue: flush interrupted with %d jobs outstanding: %w", q.Depth(), ctx.Err())
	}
}

// Shutdown closes the queue and flushes it. In blocking mode the flush still
// matters: a caller whose context ended has stopped waiting, but its job runs on.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.Close()
	return q.Flush(ctx)
}

// drain runs the jobs of one subject lane, one at a time, in FIFO order.
// The lane is removed once empty; a later Submit starts a new drain.
func (q *Queue) drain(subjectID string, l *lane) {
	for {
		q.mu.Lock()
		if len(l.pending) == 0 {
			delete(q.lanes, subjectID)
			q.mu.Unlock()
			return
		}
		e := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		q.mu.Unlock()

		outcome := q.execute(e.job)
		q.finish(e.ticket, outcome)

		q.mu.Lock()
		q.depth--
		q.opts.Metrics.SetDepth(q.depth)
		if q.opts.WarnDepth > 0 && q.depth <= q.opts.WarnDepth {
			q.warned = false
		}
		if q.depth == 0 {
			close(q.idle)
		}
		q.mu.Unlock()
	}
}

// execute performs the writes of one job. Jobs run on a background context:
// once accepted they are not cancelled, and timeouts belong to the store
// transport.
func (q *Queue) execute(job Job) (out Outcome) {
	start := time.Now()
	out = Outcome{JobID: job.ID, SubjectID: job.SubjectID, Kind: job.Kind(), Status: Delivered}
	defer func() {
		if r := recover(); r != nil {
			out.Status = Dropped
			out.Reason = fmt.Errorf("queue: writer panicked: %v", r)
		}
		out.Elapsed = time.Since(start)
	}()

	ctx := context.Background()
	if job.Message != nil {
		if err := q.writer.AppendMessages(ctx, job.ConversationID, []store.Message{*job.Message}); err != nil {
			out.Status = Dropped
			out.Reason = err
			return out
		}
		out.Written = 1
		return out
	}

	for i, seg := range job.Segments {
		if err := q.writer.AppendFact(ctx, job.SubjectID, seg); err != nil {
			out.Status = Dropped
			out.Reason = fmt.Errorf("segment %d/%d: %w", i+1, len(job.Segments), err)
			return out
		}
		out.Written++
	}
	return out
}

// finish publishes an outcome to the ticket, metrics, log and hook.
func (q *Queue) finish(t *Ticket, o Outcome) {
	if o.Status == Delivered {
		q.opts.Metrics.ObserveJob(metrics.OutcomeDelivered, o.Elapsed)
		q.obs.Log().Debug().
			Str("job", o.JobID).
			Str("subject", o.SubjectID).
			Str("kind", o.Kind).
			Int("writes", o.Written).
			Msg("write job delivered")
	} else {
		q.opts.Metrics.ObserveJob(metrics.OutcomeDropped, o.Elapsed)
		q.obs.Log().Warn().
			Str("job", o.JobID).
			Str("subject", o.SubjectID).
			Str("kind", o.Kind).
			Str("class", errors.Class(o.Reason)).
			Int("writes", o.Written).
			Err(o.Reason).
			Msg("write job dropped")
	}

	t.done <- o
	if q.opts.OnOutcome != nil {
		q.opts.OnOutcome(o)
	}
}

// newJobID generates a new ULID.
func newJobID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
