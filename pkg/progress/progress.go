// Package progress reports byte transfers, either as terminal progress
// bars or not at all.
package progress

import (
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Reporter creates one Transfer per copied stream. Wait blocks until all
// transfers are done and must be called once at the end.
type Reporter interface {
	Start(name string, total int64) Transfer
	Wait()
}

// Transfer tracks a single stream. Done must be called exactly once, with
// the error the transfer ended with, if any.
type Transfer interface {
	ProxyReader(r io.Reader) io.Reader
	Done(err error)
}

// BarReporter draws one mpb progress bar per transfer.
type BarReporter struct {
	p *mpb.Progress
}

func NewBarReporter(w io.Writer) *BarReporter {
	return &BarReporter{
		p: mpb.New(mpb.WithOutput(w), mpb.WithWidth(48)),
	}
}

func (r *BarReporter) Start(name string, total int64) Transfer {
	bar := r.p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{C: decor.DindentRight | decor.DextraSpace}),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .2f / % .2f"),
			decor.Name(" "),
			decor.Percentage(),
		),
	)
	return &barTransfer{bar: bar, total: total}
}

func (r *BarReporter) Wait() {
	r.p.Wait()
}

type barTransfer struct {
	bar   *mpb.Bar
	total int64
}

func (t *barTransfer) ProxyReader(r io.Reader) io.Reader {
	return t.bar.ProxyReader(r)
}

func (t *barTransfer) Done(err error) {
	if err != nil {
		t.bar.Abort(false)
		return
	}
	// Bars with a positive total complete on their own once current
	// reaches it and ignore SetTotal, so fill them up instead.
	if t.total > 0 {
		t.bar.SetCurrent(t.total)
		return
	}
	t.bar.SetTotal(-1, true)
}

// Nop discards all progress.
type Nop struct{}

func (Nop) Start(name string, total int64) Transfer {
	return nopTransfer{}
}

func (Nop) Wait() {}

type nopTransfer struct{}

func (nopTransfer) ProxyReader(r io.Reader) io.Reader {
	return r
}

func (nopTransfer) Done(err error) {}

// Record is a finished or running transfer seen by a Recorder.
type Record struct {
	Name  string
	Total int64
	Read  int64
	Done  bool
	Err   error
}

// Recorder keeps track of all transfers, for tests and summaries.
type Recorder struct {
	mu      sync.Mutex
	Records []*Record
	Waited  bool
}

func (r *Recorder) Start(name string, total int64) Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := &Record{Name: name, Total: total}
	r.Records = append(r.Records, rec)
	return &recordTransfer{r: r, rec: rec}
}

func (r *Recorder) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Waited = true
}

type recordTransfer struct {
	r   *Recorder
	rec *Record
}

func (t *recordTransfer) ProxyReader(r io.Reader) io.Reader {
	return &countingReader{t: t, r: r}
}

func (t *recordTransfer) Done(err error) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	t.rec.Done = true
	t.rec.Err = err
}

type countingReader struct {
	t *recordTransfer
	r io.Reader
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.t.r.mu.Lock()
	c.t.rec.Read += int64(n)
	c.t.r.mu.Unlock()
	return n, err
}
