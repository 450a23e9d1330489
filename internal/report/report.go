// Package report renders per-recipient outcomes and derives the process
// exit code. Output goes to stdout; logging stays on stderr.
package report

import (
	"fmt"
	"io"

	"webtexter/internal/send"
)

// Render writes one line per attempted (number, chunk) pair followed by an
// aggregate summary.
func Render(w io.Writer, run *send.Run) {
	if run == nil {
		return
	}
	for _, res := range run.Results {
		part := ""
		if res.Chunk.Total > 1 {
			part = fmt.Sprintf(" [part %d/%d]", res.Chunk.Index, res.Chunk.Total)
		}
		if res.OK() {
			fmt.Fprintf(w, "%s%s: sent\n", res.Recipient, part)
		} else {
			fmt.Fprintf(w, "%s%s: FAILED: %v\n", res.Recipient, part, res.Err)
		}
	}

	total := len(run.Results)
	switch run.Status() {
	case send.StatusAll:
		fmt.Fprintf(w, "all %d message(s) sent\n", total)
	case send.StatusPartial:
		fmt.Fprintf(w, "%d of %d message(s) sent\n", total-run.Failed(), total)
	default:
		fmt.Fprintln(w, "no messages sent")
	}
}

// RenderAbort reports a run that never reached the send stage.
func RenderAbort(w io.Writer, err error) {
	fmt.Fprintf(w, "aborted: %v\n", err)
	fmt.Fprintln(w, "no messages sent")
}

// ExitCode is 0 only when every attempted send succeeded and nothing
// aborted the run.
func ExitCode(run *send.Run, err error) int {
	if err != nil {
		return 1
	}
	if run == nil || run.Status() != send.StatusAll {
		return 1
	}
	return 0
}
