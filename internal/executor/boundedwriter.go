package executor

import (
	"io"

	"github.com/luis198755/execgateway/internal/metrics"
)

// boundedWriter enforces spec.md's output bound: it forwards at most
// maxLen bytes of program output to the underlying writer, then appends
// TruncationMarker exactly once and reports further writes as no-ops
// (Truncated() lets the caller stop reading early instead of discarding
// silently forever).
type boundedWriter struct {
	dst        io.Writer
	maxLen     int
	written    int
	truncated  bool
	markerSent bool
}

func newBoundedWriter(dst io.Writer, maxLen int) *boundedWriter {
	return &boundedWriter{dst: dst, maxLen: maxLen}
}

func (b *boundedWriter) Write(p []byte) (int, error) {
	if b.truncated {
		return len(p), nil
	}

	remaining := b.maxLen - b.written
	if len(p) <= remaining {
		n, err := b.dst.Write(p)
		b.written += n
		return len(p), err
	}

	if remaining > 0 {
		if _, err := b.dst.Write(p[:remaining]); err != nil {
			return 0, err
		}
		b.written += remaining
	}
	b.truncated = true
	if !b.markerSent {
		if _, err := io.WriteString(b.dst, TruncationMarker); err != nil {
			return 0, err
		}
		b.markerSent = true
		// A sandbox's writer nested inside the Executor's one leaves the
		// count to the outer writer, so each truncated run counts once.
		if _, nested := b.dst.(*boundedWriter); !nested {
			metrics.OutputTruncatedTotal.Inc()
		}
	}
	return len(p), nil
}

// Truncated reports whether the byte bound has been reached.
func (b *boundedWriter) Truncated() bool { return b.truncated }
