package client

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// captureLogs redirects the default logger for the duration of the test.
func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	out := &syncBuffer{}
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return out
}

// recorder counts the terminal callbacks a request receives.
type recorder struct {
	mu        sync.Mutex
	successes []message.Params
	errs      []error
	timeouts  int
}

func (r *recorder) request(command string, timeout time.Duration) *Request {
	return &Request{
		Command: command,
		Timeout: timeout,
		OnSuccess: func(params message.Params) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.successes = append(r.successes, params)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
		OnTimeout: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.timeouts++
		},
	}
}

func (r *recorder) counts() (successes, errs, timeouts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.successes), len(r.errs), r.timeouts
}

func (r *recorder) total() int {
	s, e, t := r.counts()
	return s + e + t
}

func (r *recorder) lastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

func (r *recorder) lastSuccess() message.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.successes) == 0 {
		return nil
	}
	return r.successes[len(r.successes)-1]
}

func response(t *testing.T, id string, params message.Params) *message.Message {
	t.Helper()
	m, err := message.NewResponse(id, params)
	require.NoError(t, err)
	return m
}

func TestPendingResolveResponse(t *testing.T) {
	table := NewPendingTable()
	rec := &recorder{}
	_, err := table.Add("a", rec.request("echo", time.Second))
	require.NoError(t, err)

	assert.True(t, table.Resolve(response(t, "a", message.Params{"x": 1.0})))
	assert.Equal(t, message.Params{"x": 1.0}, rec.lastSuccess())
	assert.Equal(t, 0, table.Len())

	assert.False(t, table.Resolve(response(t, "a", nil)), "second resolution must be ignored")
	assert.Equal(t, 1, rec.total())
}

func TestPendingResolveError(t *testing.T) {
	table := NewPendingTable()
	rec := &recorder{}
	_, err := table.Add("a", rec.request("echo", time.Second))
	require.NoError(t, err)

	m, err := message.NewError("a", message.CodeUnknownCommand, "unknown command: nope")
	require.NoError(t, err)
	assert.True(t, table.Resolve(m))

	var remote *RemoteError
	require.True(t, errors.As(rec.lastError(), &remote))
	assert.Equal(t, message.CodeUnknownCommand, remote.Code)
	assert.Equal(t, "unknown command: nope", remote.Message)
}

func TestPendingUnknownIDIsInert(t *testing.T) {
	logs := captureLogs(t)
	table := NewPendingTable()
	rec := &recorder{}
	_, err := table.Add("known", rec.request("echo", time.Second))
	require.NoError(t, err)

	assert.False(t, table.Resolve(response(t, "unknown", nil)))
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, 0, rec.total())
	assert.Contains(t, logs.String(), "Unmatched")
}

func TestPendingDuplicateID(t *testing.T) {
	table := NewPendingTable()
	rec := &recorder{}
	_, err := table.Add("a", rec.request("echo", time.Second))
	require.NoError(t, err)
	_, err = table.Add("a", rec.request("echo", time.Second))
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestPendingTimeoutFiresOnce(t *testing.T) {
	table := NewPendingTable()
	rec := &recorder{}
	_, err := table.Add("a", rec.request("echo", 50*time.Millisecond))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.total() == 1 }, time.Second, 5*time.Millisecond)
	_, _, timeouts := rec.counts()
	assert.Equal(t, 1, timeouts)

	// a response after the deadline is dropped
	assert.False(t, table.Resolve(response(t, "a", nil)))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.total())
}

func TestPendingWithdrawSilencesRequest(t *testing.T) {
	table := NewPendingTable()
	rec := &recorder{}
	_, err := table.Add("a", rec.request("echo", 20*time.Millisecond))
	require.NoError(t, err)

	req, ok := table.Withdraw("a")
	require.True(t, ok)
	assert.Equal(t, "echo", req.Command)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.total(), "withdrawn requests must not time out")

	_, ok = table.Withdraw("a")
	assert.False(t, ok)
}

func TestPendingFail(t *testing.T) {
	table := NewPendingTable()
	rec := &recorder{}
	_, err := table.Add("a", rec.request("echo", time.Second))
	require.NoError(t, err)

	assert.True(t, table.Fail("a", ErrSendFailed))
	assert.ErrorIs(t, rec.lastError(), ErrSendFailed)
	assert.False(t, table.Fail("a", ErrSendFailed))
	assert.Equal(t, 1, rec.total())
}

func TestPendingAtMostOnceUnderRace(t *testing.T) {
	const n = 200
	table := NewPendingTable()
	var fired [n]atomic.Int32
	replies := make([]*message.Message, n)

	for i := 0; i < n; i++ {
		i := i
		req := &Request{
			Command:   "echo",
			Timeout:   2 * time.Millisecond,
			OnSuccess: func(message.Params) { fired[i].Add(1) },
			OnError:   func(error) { fired[i].Add(1) },
			OnTimeout: func() { fired[i].Add(1) },
		}
		id := message.NewID()
		_, err := table.Add(id, req)
		require.NoError(t, err)
		replies[i] = response(t, id, nil)
	}

	var wg sync.WaitGroup
	for _, reply := range replies {
		wg.Add(2)
		go func(m *message.Message) {
			defer wg.Done()
			time.Sleep(2 * time.Millisecond)
			table.Resolve(m)
		}(reply)
		go func(id string) {
			defer wg.Done()
			time.Sleep(2 * time.Millisecond)
			table.Fail(id, ErrSendFailed)
		}(reply.ID())
	}
	wg.Wait()

	require.Eventually(t, func() bool { return table.Len() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	for i := range fired {
		assert.Equal(t, int32(1), fired[i].Load(), "request %d", i)
	}
}
