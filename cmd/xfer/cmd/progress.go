package cmd

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

// barTracker renders transfer progress as a terminal bar.
type barTracker struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

var _ xfertypes.ProgressTracker = (*barTracker)(nil)

func newBarTracker(w io.Writer, name string) *barTracker {
	p := mpb.New(mpb.WithOutput(w), mpb.WithWidth(48))
	bar := p.AddBar(0,
		mpb.PrependDecorators(
			decor.Name(name, decor.WCSyncSpaceR),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.OnComplete(decor.AverageSpeed(decor.SizeB1024(0), " % .2f"), " done"),
		),
	)
	return &barTracker{p: p, bar: bar}
}

func (t *barTracker) Update(bytesTransferred, totalBytes int64) {
	t.bar.SetTotal(totalBytes, false)
	t.bar.SetCurrent(bytesTransferred)
}

func (t *barTracker) Complete() {
	t.bar.SetTotal(-1, true)
}

func (t *barTracker) Error(error) {
	t.bar.Abort(false)
}

// Wait flushes the bar. A transfer that ended before reporting progress
// leaves the bar open, so it is aborted first.
func (t *barTracker) Wait() {
	if !t.bar.Completed() {
		t.bar.Abort(false)
	}
	t.p.Wait()
}
