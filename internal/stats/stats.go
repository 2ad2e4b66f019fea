// Package stats accumulates run-wide transfer statistics. Nothing here is
// persisted: every run derives its decisions fresh from server state.
package stats

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Outcome classifies what happened to one (message, folder-pair).
// Outcomes are never mutated after being recorded.
type Outcome int

const (
	Copied Outcome = iota
	SkippedDuplicate
	SkippedOversized
	SkippedLineTooLong
	SkippedZeroSize
	SkippedNoEnvelope
	SkippedQuota
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Copied:
		return "copied"
	case SkippedDuplicate:
		return "skipped-duplicate"
	case SkippedOversized:
		return "skipped-oversized"
	case SkippedLineTooLong:
		return "skipped-line-too-long"
	case SkippedZeroSize:
		return "skipped-zero-size"
	case SkippedNoEnvelope:
		return "skipped-no-envelope"
	case SkippedQuota:
		return "skipped-quota"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// TransferError attributes one failure to a specific message and folder.
type TransferError struct {
	Folder    string
	MessageID string
	Subject   string
	Size      int64
	Date      time.Time
	Reason    string
}

// Stats is the run-wide accumulator. It is updated only by the run
// coordinator after each outcome is produced, so a single mutex suffices.
type Stats struct {
	mu sync.Mutex

	Started time.Time

	SourceMessages      int
	DestinationMessages int
	SourceFolders       int
	DestinationFolders  int

	outcomes map[Outcome]int

	CopiedFolders          int
	FoldersAlreadyExisting int
	FoldersSkippedEmpty    int
	FoldersSkippedFiltered int

	errors []TransferError
}

func New() *Stats {
	return &Stats{Started: time.Now(), outcomes: make(map[Outcome]int)}
}

// Record tallies one transfer outcome.
func (s *Stats) Record(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[o]++
}

// Count returns how many messages ended with the given outcome.
func (s *Stats) Count(o Outcome) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcomes[o]
}

// Processed returns the number of messages with any recorded outcome.
func (s *Stats) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.outcomes {
		n += c
	}
	return n
}

// RecordError attributes a failure to a message and folder.
func (s *Stats) RecordError(e TransferError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, e)
}

// Errors returns a copy of the recorded failures.
func (s *Stats) Errors() []TransferError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransferError, len(s.errors))
	copy(out, s.errors)
	return out
}

// Summary renders the end-of-run report. The shape is identical for
// dry runs and live runs.
func (s *Stats) Summary(dryRun bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	elapsed := time.Since(s.Started).Round(10 * time.Millisecond)
	fmt.Fprintf(&b, "Copied %d/%d mails and %d/%d folders in %s\n",
		s.outcomes[Copied], s.SourceMessages, s.CopiedFolders, s.SourceFolders, elapsed)
	if dryRun {
		b.WriteString("\nEverything skipped! (dry-run)\n")
	}
	skippedFolders := s.FoldersSkippedEmpty + s.FoldersSkippedFiltered + s.FoldersAlreadyExisting
	fmt.Fprintf(&b, "\nSkipped folders   : %d\n", skippedFolders)
	fmt.Fprintf(&b, "├─ Empty          : %d (skip-empty-folders mode only)\n", s.FoldersSkippedEmpty)
	fmt.Fprintf(&b, "├─ By mailbox     : %d (source-mailbox mode only)\n", s.FoldersSkippedFiltered)
	fmt.Fprintf(&b, "└─ Already exists : %d\n", s.FoldersAlreadyExisting)

	skippedMails := s.outcomes[SkippedDuplicate] + s.outcomes[SkippedOversized] +
		s.outcomes[SkippedLineTooLong] + s.outcomes[SkippedZeroSize] +
		s.outcomes[SkippedNoEnvelope] + s.outcomes[SkippedQuota]
	fmt.Fprintf(&b, "\nSkipped mails     : %d\n", skippedMails)
	fmt.Fprintf(&b, "├─ Zero sized     : %d\n", s.outcomes[SkippedZeroSize])
	fmt.Fprintf(&b, "├─ Too large      : %d (max-mail-size mode only)\n", s.outcomes[SkippedOversized])
	fmt.Fprintf(&b, "├─ No envelope    : %d\n", s.outcomes[SkippedNoEnvelope])
	fmt.Fprintf(&b, "├─ Line length    : %d (max-line-length mode only)\n", s.outcomes[SkippedLineTooLong])
	fmt.Fprintf(&b, "├─ Quota          : %d\n", s.outcomes[SkippedQuota])
	fmt.Fprintf(&b, "└─ Already exists : %d\n", s.outcomes[SkippedDuplicate])

	fmt.Fprintf(&b, "\nErrors (%d):\n", len(s.errors))
	if len(s.errors) == 0 {
		b.WriteString("(no errors)\n")
	}
	for _, e := range s.errors {
		fmt.Fprintf(&b, "(%s) (%s) (%s) (%s) (%s): %s\n",
			HumanSize(e.Size), e.Date.Format("2006-01-02 15:04:05"), e.Folder,
			e.MessageID, e.Subject, e.Reason)
	}
	return b.String()
}

// HumanSize formats a byte count for the report.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
