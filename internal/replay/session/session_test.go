package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/format"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	aacFormat  = &core.FormatDescriptor{Codec: core.CodecAAC, SampleRate: 48000, ChannelCount: 2}
	h264Format = &core.FormatDescriptor{
		Codec: core.CodecH264, Width: 1280, Height: 720,
		SPS: []byte{0x67, 0x42, 0xc0, 0x1f, 0xd9}, PPS: []byte{0x68, 0xce, 0x38, 0x80},
	}
	fixedNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.Local)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func feed(s *Session, kind core.TrackKind, f *core.FormatDescriptor, frame time.Duration, count int) {
	for i := 0; i < count; i++ {
		s.OnSample(core.Sample{
			Kind:     kind,
			PTS:      time.Duration(i) * frame,
			Duration: frame,
			Format:   f,
			Data:     []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88},
			IsKey:    true,
		})
	}
}

func wait(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o, ok := <-ch:
		require.True(t, ok, "outcome channel closed without a value")
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for save outcome")
		return Outcome{}
	}
}

// stubWriter accepts every track. Start blocks until release is closed.
type stubWriter struct {
	release chan struct{}
	written atomic.Int64
}

func (w *stubWriter) factory(format.Container, io.WriteSeeker, *slog.Logger) (mux.ContainerWriter, error) {
	return w, nil
}

func (w *stubWriter) AddTrack(format.TrackSettings) (mux.TrackSink, error) { return w, nil }

func (w *stubWriter) Start(time.Duration) error {
	if w.release != nil {
		<-w.release
	}
	return nil
}

func (w *stubWriter) Finalize() error { return nil }

func (w *stubWriter) WriteSamples(samples []core.Sample) error {
	w.written.Add(int64(len(samples)))
	return nil
}

type recorder struct {
	mu        sync.Mutex
	completed []string
	stopped   int
}

func (r *recorder) OnCompleted(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, path)
}

func (r *recorder) onStopped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
}

func (r *recorder) counts() (completed []string, stopped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.completed...), r.stopped
}

func newTestSession(t *testing.T, w mux.WriterFactory) (*Session, *recorder, string) {
	t.Helper()
	dir := t.TempDir()
	rec := &recorder{}
	s := New(Config{
		WindowDuration:  30 * time.Second,
		MinDuration:     time.Second,
		Preferences:     format.DefaultPreferences(),
		OutputDirectory: dir,
		Notifier:        rec,
		OnStopped:       rec.onStopped,
		NewWriter:       w,
		Now:             func() time.Time { return fixedNow },
	}, testLogger())
	return s, rec, dir
}

func TestSaveRejectedWhenNothingBuffered(t *testing.T) {
	s, rec, dir := newTestSession(t, nil)
	s.StartBuffering()

	outcome := wait(t, s.RequestSave(context.Background(), 10))

	assert.Equal(t, StatusRejected, outcome.Status)
	var insufficient *mux.InsufficientDataError
	assert.ErrorAs(t, outcome.Err, &insufficient)
	assert.False(t, s.IsBuffering())

	completed, stopped := rec.counts()
	assert.Empty(t, completed)
	assert.Equal(t, 1, stopped)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveRejectedForShortVideoOnly(t *testing.T) {
	s, _, dir := newTestSession(t, nil)
	s.StartBuffering()
	feed(s, core.KindVideo, h264Format, time.Second/30, 15)

	outcome := wait(t, s.RequestSave(context.Background(), 10))

	assert.Equal(t, StatusRejected, outcome.Status)
	var insufficient *mux.InsufficientDataError
	assert.ErrorAs(t, outcome.Err, &insufficient)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveRejectedWhenNotBuffering(t *testing.T) {
	s, rec, _ := newTestSession(t, nil)

	outcome := wait(t, s.RequestSave(context.Background(), 10))

	assert.Equal(t, StatusRejected, outcome.Status)
	assert.ErrorIs(t, outcome.Err, ErrNotBuffering)
	_, stopped := rec.counts()
	assert.Zero(t, stopped)
}

func TestSaveRejectedForCancelledRequest(t *testing.T) {
	s, _, _ := newTestSession(t, nil)
	s.StartBuffering()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := wait(t, s.RequestSave(ctx, 10))
	assert.Equal(t, StatusRejected, outcome.Status)
	assert.ErrorIs(t, outcome.Err, context.Canceled)

	assert.True(t, s.IsBuffering())
}

func TestNonPositiveWindowIsASaveAttempt(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
	}{
		{"zero", 0},
		{"negative", -5},
		{"nan", math.NaN()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, rec, dir := newTestSession(t, nil)
			s.StartBuffering()
			feed(s, core.KindSystemAudio, aacFormat, 20*time.Millisecond, 250)

			outcome := wait(t, s.RequestSave(context.Background(), tt.seconds))

			assert.Equal(t, StatusRejected, outcome.Status)
			var insufficient *mux.InsufficientDataError
			assert.ErrorAs(t, outcome.Err, &insufficient)
			assert.False(t, s.IsBuffering())
			assert.Zero(t, s.Store().TotalDuration(core.KindSystemAudio))
			_, stopped := rec.counts()
			assert.Equal(t, 1, stopped)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestSecondsToWindow(t *testing.T) {
	assert.Equal(t, time.Duration(0), secondsToWindow(-1))
	assert.Equal(t, time.Duration(0), secondsToWindow(math.NaN()))
	assert.Equal(t, 2500*time.Millisecond, secondsToWindow(2.5))
	assert.Equal(t, time.Duration(math.MaxInt64), secondsToWindow(math.Inf(1)))
}

func TestStopLeavesStoreEmptyUnderConcurrentSamples(t *testing.T) {
	s, _, _ := newTestSession(t, nil)
	s.StartBuffering()

	var wg sync.WaitGroup
	quit := make(chan struct{})
	for _, kind := range core.Kinds {
		wg.Add(1)
		go func(kind core.TrackKind) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-quit:
					return
				default:
				}
				s.OnSample(core.Sample{
					Kind:     kind,
					PTS:      time.Duration(i) * time.Millisecond,
					Duration: time.Millisecond,
					Format:   aacFormat,
					Data:     []byte{0x01},
					IsKey:    true,
				})
			}
		}(kind)
	}

	time.Sleep(20 * time.Millisecond)
	s.StopBuffering()
	for _, kind := range core.Kinds {
		assert.Zero(t, s.Store().TotalDuration(kind), kind.String())
	}

	// Samples racing with stop must not land after the clear
	time.Sleep(20 * time.Millisecond)
	close(quit)
	wg.Wait()

	snap := s.Snapshot()
	assert.False(t, snap.Buffering)
	for _, tr := range snap.Tracks {
		assert.Zero(t, tr.Samples, tr.Kind)
	}
}

func TestSetWindowShrinksBuffer(t *testing.T) {
	s, _, _ := newTestSession(t, nil)
	s.StartBuffering()
	feed(s, core.KindSystemAudio, aacFormat, time.Second, 10)
	require.Equal(t, 10*time.Second, s.Store().TotalDuration(core.KindSystemAudio))

	s.SetWindow(4 * time.Second)
	assert.Equal(t, 4*time.Second, s.Window())
	assert.Equal(t, 4*time.Second, s.Snapshot().Window)
	assert.Equal(t, 4*time.Second, s.Store().TotalDuration(core.KindSystemAudio))

	s.SetWindow(0)
	assert.Equal(t, 4*time.Second, s.Window(), "non-positive windows are ignored")
}

func TestSaveCompletesAndStopsBuffering(t *testing.T) {
	s, rec, dir := newTestSession(t, nil)
	s.StartBuffering()
	feed(s, core.KindSystemAudio, aacFormat, 20*time.Millisecond, 250)
	feed(s, core.KindMicrophone, aacFormat, 20*time.Millisecond, 250)

	outcome := wait(t, s.RequestSave(context.Background(), 2))

	require.Equal(t, StatusCompleted, outcome.Status, outcome.Reason())
	assert.Equal(t, filepath.Join(dir, "Recording at 2026-10-15 at 09.30.00.m4a"), outcome.Path)
	assert.Equal(t, format.ContainerM4A, outcome.Container)
	assert.FileExists(t, outcome.Path)
	assert.Empty(t, outcome.Warnings)

	assert.False(t, s.IsBuffering())
	for _, st := range s.Store().Stats() {
		assert.Zero(t, st.Samples, st.Kind)
	}

	completed, stopped := rec.counts()
	assert.Equal(t, []string{outcome.Path}, completed)
	assert.Equal(t, 1, stopped)

	snap := s.Snapshot()
	require.NotNil(t, snap.LastSave)
	assert.Equal(t, StatusCompleted, snap.LastSave.Status)
	assert.Equal(t, outcome.Path, snap.LastSave.Path)
	assert.False(t, snap.SaveInProgress)
}

func TestSaveWritesOnlyRequestedWindow(t *testing.T) {
	w := &stubWriter{}
	s, _, _ := newTestSession(t, w.factory)
	s.StartBuffering()
	// 10s of audio, 2s requested
	feed(s, core.KindSystemAudio, aacFormat, 20*time.Millisecond, 500)

	outcome := wait(t, s.RequestSave(context.Background(), 2))

	require.Equal(t, StatusCompleted, outcome.Status, outcome.Reason())
	assert.Equal(t, int64(101), w.written.Load())
}

func TestConcurrentSaveRejected(t *testing.T) {
	w := &stubWriter{release: make(chan struct{})}
	s, rec, _ := newTestSession(t, w.factory)
	s.StartBuffering()
	feed(s, core.KindSystemAudio, aacFormat, 20*time.Millisecond, 100)

	first := s.RequestSave(context.Background(), 5)
	require.Eventually(t, s.SaveInProgress, time.Second, time.Millisecond)

	second := wait(t, s.RequestSave(context.Background(), 5))
	assert.Equal(t, StatusRejected, second.Status)
	assert.ErrorIs(t, second.Err, ErrSaveInProgress)

	// Stopping waits for the in-flight save
	stopped := make(chan struct{})
	go func() {
		s.StopBuffering()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("StopBuffering returned while a save was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(w.release)
	outcome := wait(t, first)
	assert.Equal(t, StatusCompleted, outcome.Status)
	<-stopped

	_, stopCount := rec.counts()
	assert.Equal(t, 1, stopCount)
	assert.False(t, s.SaveInProgress())
}

func TestSaveFailureStopsBuffering(t *testing.T) {
	failing := func(format.Container, io.WriteSeeker, *slog.Logger) (mux.ContainerWriter, error) {
		return nil, errors.New("encoder unavailable")
	}
	s, rec, dir := newTestSession(t, failing)
	s.StartBuffering()
	feed(s, core.KindSystemAudio, aacFormat, 20*time.Millisecond, 100)

	outcome := wait(t, s.RequestSave(context.Background(), 5))

	assert.Equal(t, StatusFailed, outcome.Status)
	var openErr *mux.WriterOpenError
	assert.ErrorAs(t, outcome.Err, &openErr)
	assert.False(t, s.IsBuffering())

	completed, stopped := rec.counts()
	assert.Empty(t, completed)
	assert.Equal(t, 1, stopped)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSamplesIgnoredWhileStopped(t *testing.T) {
	s, _, _ := newTestSession(t, nil)
	feed(s, core.KindSystemAudio, aacFormat, 20*time.Millisecond, 10)
	assert.Zero(t, s.Store().TotalDuration(core.KindSystemAudio))

	s.StartBuffering()
	feed(s, core.KindSystemAudio, aacFormat, 20*time.Millisecond, 10)
	assert.Equal(t, 200*time.Millisecond, s.Store().TotalDuration(core.KindSystemAudio))

	s.StopBuffering()
	assert.Zero(t, s.Store().TotalDuration(core.KindSystemAudio))
	s.StopBuffering()
}

func TestStartBufferingClearsPreviousSamples(t *testing.T) {
	s, rec, _ := newTestSession(t, nil)
	s.StartBuffering()
	feed(s, core.KindMicrophone, aacFormat, 20*time.Millisecond, 10)

	s.StartBuffering()
	assert.Zero(t, s.Store().TotalDuration(core.KindMicrophone))
	assert.True(t, s.IsBuffering())
	_, stopped := rec.counts()
	assert.Zero(t, stopped)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{"", "Recording at 2026-10-15 at 09.30.00"},
		{"Recording at %t", "Recording at 2026-10-15 at 09.30.00"},
		{"clip", "clip"},
		{"../%t/x", "..-2026-10-15 at 09.30.00-x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileName(tt.template, fixedNow), tt.template)
	}
}
