package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint/memory"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

var errTransient = stderrors.New("connection reset by peer")

func request() xfertypes.TransferRequest {
	return xfertypes.TransferRequest{
		Source:      xfertypes.ObjectRef{Endpoint: "east", Object: "big.bin"},
		Destination: xfertypes.ObjectRef{Endpoint: "west", Object: "copy.bin"},
	}
}

func newEngine(src endpoint.Source, dst endpoint.Destination, partSize int64, mutate ...func(*Config)) *Engine {
	cfg := Config{
		TransferID:  "t-1",
		Request:     request(),
		Source:      src,
		Destination: dst,
		PartSize:    partSize,
		Concurrency: 1,
		Retry: retry.NewPolicy(xfertypes.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
		}),
		AbortTimeout: time.Second,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg)
}

func seeded(data []byte) *memory.Store {
	s := memory.New()
	s.Put("big.bin", data, "application/octet-stream")
	return s
}

func TestEngine_RoundTrip(t *testing.T) {
	const partSize = 16

	tests := []struct {
		name      string
		size      int
		wantParts int
	}{
		{name: "empty", size: 0, wantParts: 1},
		{name: "one byte", size: 1, wantParts: 1},
		{name: "exactly one part", size: partSize, wantParts: 1},
		{name: "one byte over", size: partSize + 1, wantParts: 2},
		{name: "several parts with remainder", size: 5*partSize + 7, wantParts: 6},
		{name: "several whole parts", size: 4 * partSize, wantParts: 4},
	}

	for _, tt := range tests {
		for _, concurrency := range []int{1, 4} {
			t.Run(fmt.Sprintf("%s/concurrency=%d", tt.name, concurrency), func(t *testing.T) {
				data := testutil.GenerateData(int64(tt.size), tt.size)
				src := seeded(data)
				dst := memory.New()

				out, err := newEngine(src, dst, partSize, func(c *Config) {
					c.Concurrency = concurrency
				}).Run(context.Background())
				require.NoError(t, err)

				assert.Equal(t, xfertypes.Committed, out.Kind)
				assert.Equal(t, "copy.bin", out.Object)
				assert.Equal(t, int64(tt.size), out.Size)
				assert.Equal(t, tt.wantParts, out.Parts)
				assert.Nil(t, out.Reason)

				got, ok := dst.Object("copy.bin")
				require.True(t, ok)
				assert.Equal(t, data, got)
				assert.Equal(t, "application/octet-stream", dst.ContentType("copy.bin"))

				calls := dst.Calls()
				assert.Equal(t, 1, calls.Open)
				assert.Equal(t, tt.wantParts, calls.PutPart)
				assert.Equal(t, 1, calls.Complete)
				assert.Equal(t, 0, calls.Abort)
				assert.Equal(t, 1, src.Calls().Head)
				if tt.size == 0 {
					assert.Equal(t, 0, src.Calls().GetRange)
				}
			})
		}
	}
}

// The 205 MiB / 100 MiB example scaled down to KiB.
func TestEngine_ScaledExample(t *testing.T) {
	const kib = 1024
	data := testutil.GenerateData(205, 205*kib)

	var mu sync.Mutex
	var ranges [][2]int64
	src := memory.New(memory.WithHooks(memory.Hooks{
		GetRange: func(_ string, start, end int64, _ int) error {
			mu.Lock()
			ranges = append(ranges, [2]int64{start, end})
			mu.Unlock()
			return nil
		},
	}))
	src.Put("big.bin", data, "")

	dst := &recordingDest{Store: memory.New()}
	out, err := newEngine(src, dst, 100*kib).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, out.Parts)

	assert.Equal(t, [][2]int64{
		{0, 102399},
		{102400, 204799},
		{204800, 209919},
	}, ranges)
	require.Len(t, dst.completed, 3)
	for i, p := range dst.completed {
		assert.Equal(t, int32(i+1), p.PartNumber)
		assert.NotEmpty(t, p.Token)
	}
}

func TestEngine_TransientFailureRecovers(t *testing.T) {
	data := testutil.GenerateData(1, 50)
	src := seeded(data)
	dst := memory.New(memory.WithHooks(memory.Hooks{
		PutPart: func(_ endpoint.Session, part int32, attempt int) error {
			if part == 2 && attempt == 1 {
				return errTransient
			}
			return nil
		},
	}))

	out, err := newEngine(src, dst, 10).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, xfertypes.Committed, out.Kind)
	assert.Equal(t, 5, out.Parts)

	got, _ := dst.Object("copy.bin")
	assert.Equal(t, data, got)
	assert.Equal(t, 6, dst.Calls().PutPart)
	assert.Equal(t, 0, dst.Calls().Abort)
}

func TestEngine_PermanentFailureAborts(t *testing.T) {
	src := seeded(testutil.GenerateData(2, 50))
	dst := memory.New(memory.WithHooks(memory.Hooks{
		PutPart: func(_ endpoint.Session, part int32, _ int) error {
			if part == 3 {
				return errors.ErrAccessDenied
			}
			return nil
		},
	}))
	tracker := &testutil.MockProgressTracker{}

	out, err := newEngine(src, dst, 10, func(c *Config) {
		c.Progress = tracker
	}).Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, xfertypes.Aborted, out.Kind)
	assert.ErrorIs(t, out.Reason, errors.ErrDestinationUnavailable)
	assert.ErrorIs(t, out.Reason, errors.ErrAccessDenied)
	assert.NotErrorIs(t, err, errors.ErrRetryBudgetExhausted)
	assert.Nil(t, out.CleanupErr)

	calls := dst.Calls()
	assert.Equal(t, 1, calls.Abort)
	assert.Equal(t, 0, calls.Complete)
	assert.Equal(t, 3, calls.PutPart, "no retries and no parts after the failure")
	assert.Equal(t, 0, dst.OpenUploads())
	_, ok := dst.Object("copy.bin")
	assert.False(t, ok)

	assert.Equal(t, 1, tracker.ErrorCalled)
	assert.Equal(t, 0, tracker.CompleteCalled)
}

func TestEngine_RetryBudgetExhausted(t *testing.T) {
	src := seeded(testutil.GenerateData(3, 30))
	dst := memory.New(memory.WithHooks(memory.Hooks{
		PutPart: func(_ endpoint.Session, part int32, _ int) error {
			if part == 2 {
				return errTransient
			}
			return nil
		},
	}))

	out, err := newEngine(src, dst, 10).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, xfertypes.Aborted, out.Kind)
	assert.ErrorIs(t, err, errors.ErrRetryBudgetExhausted)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, errors.CodeRetryBudgetExhausted, errors.CodeOf(err))
	assert.Equal(t, 1+3, dst.Calls().PutPart)
	assert.Equal(t, 1, dst.Calls().Abort)
}

func TestEngine_SourceFailureAborts(t *testing.T) {
	src := memory.New(memory.WithHooks(memory.Hooks{
		GetRange: func(_ string, start, _ int64, _ int) error {
			if start >= 20 {
				return errors.ErrAccessDenied
			}
			return nil
		},
	}))
	src.Put("big.bin", testutil.GenerateData(4, 40), "")
	dst := memory.New()

	out, err := newEngine(src, dst, 10).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, xfertypes.Aborted, out.Kind)
	assert.ErrorIs(t, err, errors.ErrSourceUnavailable)
	assert.Equal(t, 2, dst.Calls().PutPart)
	assert.Equal(t, 1, dst.Calls().Abort)
}

func TestEngine_ShortReadIsRetried(t *testing.T) {
	data := testutil.GenerateData(5, 20)
	src := &shortReadSource{Store: seeded(data)}
	dst := memory.New()

	out, err := newEngine(src, dst, 10).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, xfertypes.Committed, out.Kind)
	got, _ := dst.Object("copy.bin")
	assert.Equal(t, data, got)
}

func TestEngine_PlanningFailures(t *testing.T) {
	tests := []struct {
		name    string
		src     func() *memory.Store
		dst     func() *memory.Store
		part    int64
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "missing source object",
			src:     func() *memory.Store { return memory.New() },
			dst:     func() *memory.Store { return memory.New() },
			part:    10,
			wantErr: errors.ErrObjectNotFound,
		},
		{
			name:    "zero part size",
			src:     func() *memory.Store { return seeded([]byte("abc")) },
			dst:     func() *memory.Store { return memory.New() },
			part:    0,
			wantErr: errors.ErrInvalidInput,
		},
		{
			name: "part below destination minimum",
			src:  func() *memory.Store { return seeded(make([]byte, 100)) },
			dst: func() *memory.Store {
				return memory.New(memory.WithLimits(endpoint.PartLimits{MinSize: 50}))
			},
			part:    10,
			wantErr: errors.ErrInvalidInput,
		},
		{
			name:    "invalid metadata",
			src:     func() *memory.Store { return seeded([]byte("abc")) },
			dst:     func() *memory.Store { return memory.New() },
			part:    10,
			mutate:  func(c *Config) { c.Metadata = map[string]string{"": "x"} },
			wantErr: errors.ErrInvalidInput,
		},
		{
			name:    "same object",
			src:     func() *memory.Store { return seeded([]byte("abc")) },
			dst:     func() *memory.Store { return memory.New() },
			part:    10,
			mutate:  func(c *Config) { c.Request.Destination = c.Request.Source },
			wantErr: errors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := tt.dst()
			var mutate []func(*Config)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			e := newEngine(tt.src(), dst, tt.part, mutate...)
			out, err := e.Run(context.Background())

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, xfertypes.Aborted, out.Kind)
			assert.Equal(t, Failed, e.State())
			assert.Equal(t, 0, dst.Calls().Open, "no session may be opened")
			assert.Equal(t, 0, dst.Calls().Abort)
		})
	}
}

func TestEngine_OpenFailureDoesNotAbort(t *testing.T) {
	src := seeded([]byte("hello"))
	dst := memory.New(memory.WithHooks(memory.Hooks{
		Open: func(string) error { return errTransient },
	}))

	out, err := newEngine(src, dst, 10).Run(context.Background())
	assert.ErrorIs(t, err, errors.ErrDestinationUnavailable)
	assert.Equal(t, xfertypes.Aborted, out.Kind)
	assert.Equal(t, 0, dst.Calls().Abort)
	assert.Equal(t, 0, src.Calls().GetRange)
}

func TestEngine_CommitFailureAborts(t *testing.T) {
	src := seeded(testutil.GenerateData(6, 25))
	dst := memory.New(memory.WithHooks(memory.Hooks{
		Complete: func(endpoint.Session) error { return errTransient },
	}))

	out, err := newEngine(src, dst, 10).Run(context.Background())
	assert.ErrorIs(t, err, errors.ErrDestinationUnavailable)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, xfertypes.Aborted, out.Kind)
	assert.Equal(t, 1, dst.Calls().Complete)
	assert.Equal(t, 1, dst.Calls().Abort)
	assert.Equal(t, 0, dst.OpenUploads())
}

func TestEngine_AbortFailureReportsCleanup(t *testing.T) {
	abortErr := stderrors.New("abort rejected")
	src := seeded(testutil.GenerateData(7, 25))
	dst := memory.New(memory.WithHooks(memory.Hooks{
		PutPart: func(endpoint.Session, int32, int) error { return errors.ErrAccessDenied },
		Abort:   func(endpoint.Session) error { return abortErr },
	}))
	journal := &testutil.MemoryJournal{}

	out, err := newEngine(src, dst, 10, func(c *Config) {
		c.Journal = journal
	}).Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, xfertypes.Aborted, out.Kind)
	assert.ErrorIs(t, err, errors.ErrAccessDenied, "original cause is preserved")
	assert.ErrorIs(t, err, errors.ErrCleanupIncomplete)
	assert.True(t, errors.IsCleanupIncomplete(err))
	assert.ErrorIs(t, out.CleanupErr, abortErr)
	assert.NotErrorIs(t, out.Reason, errors.ErrCleanupIncomplete)
	assert.Equal(t, 1, dst.OpenUploads())
	assert.Equal(t, xfertypes.SessionOpen, journal.State("t-1"), "left for recovery")
}

func TestEngine_CancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := seeded(testutil.GenerateData(8, 50))
	dst := memory.New(memory.WithHooks(memory.Hooks{
		PutPart: func(_ endpoint.Session, part int32, _ int) error {
			if part == 2 {
				cancel()
				return context.Canceled
			}
			return nil
		},
	}))

	out, err := newEngine(src, dst, 10).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, xfertypes.Aborted, out.Kind)
	assert.Equal(t, 2, dst.Calls().PutPart, "no parts dispatched after cancellation")
	assert.Equal(t, 1, dst.Calls().Abort)
	assert.Equal(t, 0, dst.OpenUploads())
}

func TestEngine_BoundedConcurrency(t *testing.T) {
	src := seeded(testutil.GenerateData(9, 200))
	dst := &slowDest{Store: memory.New(), delay: 2 * time.Millisecond}

	out, err := newEngine(src, dst, 10, func(c *Config) {
		c.Concurrency = 3
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, out.Parts)
	assert.LessOrEqual(t, dst.peak.Load(), int32(3))
	assert.GreaterOrEqual(t, dst.peak.Load(), int32(1))
}

func TestEngine_CommitOrderIndependentOfCompletion(t *testing.T) {
	src := seeded(testutil.GenerateData(10, 100))
	rec := &recordingDest{Store: memory.New(), jitter: true}

	_, err := newEngine(src, rec, 10, func(c *Config) {
		c.Concurrency = 5
	}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.completed, 10)
	for i, p := range rec.completed {
		assert.Equal(t, int32(i+1), p.PartNumber)
	}
}

func TestEngine_StateSequence(t *testing.T) {
	src := seeded(testutil.GenerateData(11, 25))
	var states []State
	var parts []int32

	e := newEngine(src, memory.New(), 10, func(c *Config) {
		c.OnState = func(s State, part int32) {
			states = append(states, s)
			if s == PartInFlight {
				parts = append(parts, part)
			}
		}
	})
	_, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []State{
		Planning, SessionOpen,
		PartInFlight, PartInFlight, PartInFlight,
		PartsComplete, Committing, Committed,
	}, states)
	assert.Equal(t, []int32{1, 2, 3}, parts)
	assert.True(t, e.State().Terminal())
}

func TestEngine_Journal(t *testing.T) {
	t.Run("records and resolves committed", func(t *testing.T) {
		journal := &testutil.MemoryJournal{}
		_, err := newEngine(seeded([]byte("data")), memory.New(), 10, func(c *Config) {
			c.Journal = journal
		}).Run(context.Background())
		require.NoError(t, err)

		all, _ := journal.List(context.Background())
		require.Len(t, all, 1)
		assert.Equal(t, xfertypes.SessionCommitted, all[0].State)
		assert.Equal(t, "copy.bin", all[0].Destination.Object)
		assert.NotEmpty(t, all[0].UploadID)
	})

	t.Run("record failure aborts before any part", func(t *testing.T) {
		dst := memory.New()
		journal := &testutil.MemoryJournal{RecordErr: stderrors.New("disk full")}
		out, err := newEngine(seeded([]byte("data")), dst, 10, func(c *Config) {
			c.Journal = journal
		}).Run(context.Background())

		assert.ErrorIs(t, err, journal.RecordErr)
		assert.Equal(t, xfertypes.Aborted, out.Kind)
		assert.Equal(t, 0, dst.Calls().PutPart)
		assert.Equal(t, 1, dst.Calls().Abort)
	})

	t.Run("resolve failure does not undo a commit", func(t *testing.T) {
		journal := &testutil.MemoryJournal{ResolveErr: stderrors.New("locked")}
		out, err := newEngine(seeded([]byte("data")), memory.New(), 10, func(c *Config) {
			c.Journal = journal
		}).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, xfertypes.Committed, out.Kind)
	})
}

func TestEngine_Progress(t *testing.T) {
	tracker := &testutil.MockProgressTracker{}
	_, err := newEngine(seeded(testutil.GenerateData(12, 35)), memory.New(), 10, func(c *Config) {
		c.Progress = tracker
	}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, tracker.Updates, 4)
	assert.Equal(t, testutil.ProgressUpdate{Transferred: 35, Total: 35}, tracker.Updates[3])
	for i := 1; i < len(tracker.Updates); i++ {
		assert.Greater(t, tracker.Updates[i].Transferred, tracker.Updates[i-1].Transferred)
	}
	assert.Equal(t, 1, tracker.CompleteCalled)
	assert.Equal(t, 0, tracker.ErrorCalled)
}

func TestEngine_ContentTypeOverride(t *testing.T) {
	dst := memory.New()
	_, err := newEngine(seeded([]byte("data")), dst, 10, func(c *Config) {
		c.ContentType = "text/plain"
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "text/plain", dst.ContentType("copy.bin"))
}

// recordingDest captures the part list passed to commit.
type recordingDest struct {
	*memory.Store
	jitter    bool
	completed []endpoint.CompletedPart
}

func (d *recordingDest) PutPart(
	ctx context.Context, s endpoint.Session, n int32, body io.ReadSeeker, size int64,
) (string, error) {
	if d.jitter {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond) //nolint:gosec // test jitter
	}
	return d.Store.PutPart(ctx, s, n, body, size)
}

func (d *recordingDest) CompleteMultipart(
	ctx context.Context, s endpoint.Session, parts []endpoint.CompletedPart,
) (string, error) {
	d.completed = append([]endpoint.CompletedPart(nil), parts...)
	return d.Store.CompleteMultipart(ctx, s, parts)
}

// slowDest tracks peak concurrent PutPart calls.
type slowDest struct {
	*memory.Store
	delay    time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
}

func (d *slowDest) PutPart(
	ctx context.Context, s endpoint.Session, n int32, body io.ReadSeeker, size int64,
) (string, error) {
	cur := d.inflight.Add(1)
	defer d.inflight.Add(-1)
	for {
		p := d.peak.Load()
		if cur <= p || d.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	time.Sleep(d.delay)
	return d.Store.PutPart(ctx, s, n, body, size)
}

// shortReadSource truncates the first read of every range.
type shortReadSource struct {
	*memory.Store
	mu   sync.Mutex
	seen map[int64]bool
}

func (s *shortReadSource) GetRange(ctx context.Context, object string, start, end int64) (io.ReadCloser, error) {
	rc, err := s.Store.GetRange(ctx, object, start, end)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[int64]bool)
	}
	if !s.seen[start] {
		s.seen[start] = true
		return io.NopCloser(io.LimitReader(rc, (end-start+1)/2)), nil
	}
	return rc, nil
}
