package organize

import (
	"io"

	"github.com/cheggaaa/pb/v3"
)

// progress wraps a terminal progress bar; a nil bar makes every call a no-op.
type progress struct {
	bar *pb.ProgressBar
}

func newProgress(out io.Writer, label string, total int) *progress {
	if out == nil || total == 0 {
		return &progress{}
	}
	bar := pb.New(total)
	bar.SetWriter(out)
	bar.SetTemplateString(`{{string . "label"}} {{counters . }} {{bar . }} {{percent . }}`)
	bar.Set("label", label)
	bar.Start()
	return &progress{bar: bar}
}

func (p *progress) increment() {
	if p.bar != nil {
		p.bar.Increment()
	}
}

func (p *progress) finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}
