package progress_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/dualboot-images/pkg/progress"
)

func TestRecorder(t *testing.T) {
	rec := &progress.Recorder{}

	tr := rec.Start("partition 3", 11)
	data, err := io.ReadAll(tr.ProxyReader(strings.NewReader("hello world")))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	tr.Done(nil)

	failure := errors.New("short write")
	tr = rec.Start("partition 5", 100)
	tr.Done(failure)
	rec.Wait()

	require.Len(t, rec.Records, 2)
	assert.Equal(t, progress.Record{Name: "partition 3", Total: 11, Read: 11, Done: true}, *rec.Records[0])
	assert.Equal(t, progress.Record{Name: "partition 5", Total: 100, Done: true, Err: failure}, *rec.Records[1])
	assert.True(t, rec.Waited)
}

func TestNop(t *testing.T) {
	var r progress.Reporter = progress.Nop{}
	tr := r.Start("x", 3)
	src := strings.NewReader("abc")
	assert.Same(t, src, tr.ProxyReader(src))
	tr.Done(nil)
	r.Wait()
}

func TestBarReporterFinishes(t *testing.T) {
	var out bytes.Buffer
	r := progress.NewBarReporter(&out)

	ok := r.Start("partition 1", 4)
	_, err := io.Copy(io.Discard, ok.ProxyReader(strings.NewReader("data")))
	require.NoError(t, err)
	ok.Done(nil)

	// announced more than was read
	short := r.Start("partition 2", 1024)
	_, err = io.Copy(io.Discard, short.ProxyReader(strings.NewReader("data")))
	require.NoError(t, err)
	short.Done(nil)

	failed := r.Start("partition 3", 1024)
	failed.Done(errors.New("boom"))

	unknown := r.Start("partition 4", 0)
	_, err = io.Copy(io.Discard, unknown.ProxyReader(strings.NewReader("data")))
	require.NoError(t, err)
	unknown.Done(nil)

	waitReturns(t, r)
}

func TestBarReporterShortTransfer(t *testing.T) {
	r := progress.NewBarReporter(io.Discard)

	tr := r.Start("partition 12", 1024)
	buf := make([]byte, 4)
	_, err := io.ReadFull(tr.ProxyReader(bytes.NewReader(make([]byte, 1024))), buf)
	require.NoError(t, err)
	tr.Done(nil)

	waitReturns(t, r)
}

func waitReturns(t *testing.T, r progress.Reporter) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Wait did not return after all transfers were done")
	}
}
