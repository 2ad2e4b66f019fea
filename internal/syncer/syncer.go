package syncer

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pepperpark/imapcopy/internal/imaputil"
	"github.com/pepperpark/imapcopy/internal/mapping"
	"github.com/pepperpark/imapcopy/internal/mimeutil"
	"github.com/pepperpark/imapcopy/internal/stats"
)

const (
	// DefaultBufferSize bounds how many message bytes a single body
	// FETCH may carry.
	DefaultBufferSize = 10 << 20

	// DefaultRetries bounds reconnect-and-retry cycles for transient
	// connection failures.
	DefaultRetries = 3
)

// Options is the immutable per-run configuration. Construct once, then
// hand to New; the engine never mutates it.
type Options struct {
	DryRun           bool
	Incremental      bool
	BufferSize       int64
	MaxLineLength    int
	MaxMailSize      int64
	DeniedFlags      []string
	SkipEmptyFolders bool
	IgnoreQuota      bool
	Subscribe        bool
	AbortOnError     bool
	Retries          int
	Quiet            bool
	SourceRoot       string
	SourceMailboxes  []string
	Mapping          mapping.Config
}

// Source is the account messages are read from. *imaputil.Session
// implements it.
type Source interface {
	ListFolders(root string) ([]*imaputil.FolderNode, error)
	ScanFolder(ctx context.Context, folder string) (*imaputil.ScanResult, error)
	FetchBodies(ctx context.Context, uids []uint32, fn func(*imaputil.FetchedMessage) error) error
	Reconnect() error
}

// Destination is the account messages are written to. *imaputil.Session
// implements it.
type Destination interface {
	ListFolders(root string) ([]*imaputil.FolderNode, error)
	ScanFolder(ctx context.Context, folder string) (*imaputil.ScanResult, error)
	EnsureFolder(name string) (created bool, err error)
	Subscribe(name string) error
	Append(folder string, flags []string, date time.Time, body []byte) error
	QuotaUsage(mailbox string) (used, limit int64, ok bool, err error)
	Reconnect() error
}

// Syncer copies one mailbox account onto another. It owns both protocol
// sessions for the duration of the run and processes folder pairs
// sequentially; IMAP session state (the selected folder) is inherently
// single-threaded per connection.
type Syncer struct {
	src     Source
	dst     Destination
	opts    Options
	st      *stats.Stats
	events  chan Event
	guard   *quotaGuard
	denied  map[string]bool
	running atomic.Bool

	// destination identity keys per target folder; two source folders
	// can map to the same destination.
	destKeys map[string]keySet
}

// New wires a syncer over two open sessions. The statistics accumulator
// is shared with the caller so it can be rendered after the run.
func New(src Source, dst Destination, st *stats.Stats, opts Options) *Syncer {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	denied := map[string]bool{`\recent`: true}
	for _, f := range opts.DeniedFlags {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !strings.HasPrefix(f, `\`) {
			f = `\` + f
		}
		denied[f] = true
	}
	return &Syncer{
		src:      src,
		dst:      dst,
		opts:     opts,
		st:       st,
		events:   make(chan Event, 256),
		guard:    &quotaGuard{sess: dst, ignore: opts.IgnoreQuota, verbose: !opts.Quiet},
		denied:   denied,
		destKeys: make(map[string]keySet),
	}
}

// Events returns a read-only channel of progress events. It is closed
// when Run returns.
func (s *Syncer) Events() <-chan Event { return s.events }

// Run executes the whole copy. The returned error is fatal (connection,
// authentication, exhausted retries); per-message skips and failures are
// recorded in the statistics instead. Cancellation is honored at message
// boundaries, never mid-transfer.
func (s *Syncer) Run(ctx context.Context) error {
	// A Syncer is single-shot: a second Run would close the events
	// channel twice.
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sync already started")
	}
	defer close(s.events)

	sourceFolders, err := s.src.ListFolders(s.opts.SourceRoot)
	if err != nil {
		return fmt.Errorf("list source: %w", err)
	}
	sourceFolders = s.filterSource(sourceFolders)
	s.st.SourceFolders = len(sourceFolders)

	destFolders, err := s.dst.ListFolders("")
	if err != nil {
		return fmt.Errorf("list destination: %w", err)
	}
	s.st.DestinationFolders = len(destFolders)
	destIndex := make(map[string]*imaputil.FolderNode, len(destFolders))
	for _, f := range destFolders {
		destIndex[f.Path] = f
	}

	// One-time snapshot of the source tree. Folders changing mid-run are
	// deliberately not re-scanned.
	for _, f := range sourceFolders {
		s.emit(Event{Type: EventScanFolder, Folder: f.Path})
		res, err := s.src.ScanFolder(ctx, f.Path)
		if err != nil {
			return fmt.Errorf("scan source %s: %w", f.Path, err)
		}
		f.Records = res.Records
		f.Messages = len(res.Records)
		f.Size = res.Size
		s.st.SourceMessages += len(res.Records)
		for i := 0; i < res.NoEnvelope; i++ {
			s.st.Record(stats.SkippedNoEnvelope)
		}
	}

	mapper, err := mapping.New(s.opts.Mapping, sourceFolders, destFolders)
	if err != nil {
		return err
	}

	sort.Slice(sourceFolders, func(i, j int) bool {
		return strings.ToLower(sourceFolders[i].Path) < strings.ToLower(sourceFolders[j].Path)
	})

	for _, f := range sourceFolders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.syncFolder(ctx, f, mapper, destIndex); err != nil {
			return err
		}
	}
	return nil
}

// filterSource applies the non-recursive --source-mailbox filter.
func (s *Syncer) filterSource(folders []*imaputil.FolderNode) []*imaputil.FolderNode {
	if len(s.opts.SourceMailboxes) == 0 {
		return folders
	}
	wanted := make(map[string]bool, len(s.opts.SourceMailboxes))
	for _, name := range s.opts.SourceMailboxes {
		wanted[name] = true
	}
	kept := folders[:0]
	for _, f := range folders {
		if wanted[f.Path] {
			kept = append(kept, f)
		} else {
			s.st.FoldersSkippedFiltered++
		}
	}
	return kept
}

func (s *Syncer) syncFolder(ctx context.Context, f *imaputil.FolderNode, mapper *mapping.Mapper, destIndex map[string]*imaputil.FolderNode) error {
	target := mapper.Resolve(f)
	if !s.opts.Quiet {
		log.Printf("[folder] %s (%d mails, %s) -> %s", f.Path, f.Messages, stats.HumanSize(f.Size), target)
	}

	_, preexisting := destIndex[target]
	if preexisting {
		s.st.FoldersAlreadyExisting++
	} else {
		if s.opts.SkipEmptyFolders && len(f.Records) == 0 {
			s.st.FoldersSkippedEmpty++
			return nil
		}
		if s.opts.DryRun {
			s.st.CopiedFolders++
		} else {
			created, err := s.dst.EnsureFolder(target)
			if err != nil {
				if s.opts.AbortOnError {
					return err
				}
				s.st.RecordError(stats.TransferError{Folder: target, Reason: err.Error()})
				return nil
			}
			if created {
				s.st.CopiedFolders++
				if s.opts.Subscribe {
					if err := s.dst.Subscribe(target); err != nil && !s.opts.Quiet {
						log.Printf("[folder] subscribe %s: %v", target, err)
					}
				}
			} else {
				// existed after all, LIST raced folder creation
				preexisting = true
				s.st.FoldersAlreadyExisting++
			}
		}
	}

	keys, cached := s.destKeys[target]
	if !cached {
		keys = keySet{}
		// Without incremental mode every source message is copied, so the
		// destination is never scanned for duplicates.
		if preexisting && s.opts.Incremental {
			res, err := s.dst.ScanFolder(ctx, target)
			if err != nil {
				return fmt.Errorf("scan destination %s: %w", target, err)
			}
			s.st.DestinationMessages += len(res.Records)
			keys = newKeySet(res.Records)
		}
		s.destKeys[target] = keys
	}

	toCopy, duplicates := missing(f.Records, keys)
	for i := 0; i < duplicates; i++ {
		s.st.Record(stats.SkippedDuplicate)
	}

	// Size filters apply before any network write.
	transferable := toCopy[:0]
	var incoming int64
	for _, rec := range toCopy {
		switch {
		case rec.Size == 0:
			s.st.Record(stats.SkippedZeroSize)
		case s.opts.MaxMailSize > 0 && int64(rec.Size) > s.opts.MaxMailSize:
			s.st.Record(stats.SkippedOversized)
		default:
			transferable = append(transferable, rec)
			incoming += int64(rec.Size)
		}
	}

	total := len(transferable)
	s.emit(Event{Type: EventFolderStart, Folder: f.Path, Target: target, Total: total})

	if !s.guard.allow(target, incoming) {
		for range transferable {
			s.st.Record(stats.SkippedQuota)
		}
		if !s.opts.Quiet {
			log.Printf("[quota] %s: destination quota exhausted, skipping %d mails", target, total)
		}
		s.emit(Event{Type: EventFolderDone, Folder: f.Path, Target: target, Total: total})
		return nil
	}

	done := 0
	for _, batch := range batches(transferable, s.opts.BufferSize) {
		if err := s.transferBatch(ctx, f, target, batch, keys, total, &done); err != nil {
			return err
		}
	}
	s.emit(Event{Type: EventFolderDone, Folder: f.Path, Target: target, Total: total, Done: done})
	return nil
}

// batches groups records so each body FETCH stays within bufferSize
// bytes, always admitting at least one message per batch.
func batches(records []imaputil.MessageRecord, bufferSize int64) [][]imaputil.MessageRecord {
	var out [][]imaputil.MessageRecord
	var cur []imaputil.MessageRecord
	var size int64
	for _, rec := range records {
		if len(cur) > 0 && size+int64(rec.Size) > bufferSize {
			out = append(out, cur)
			cur, size = nil, 0
		}
		cur = append(cur, rec)
		size += int64(rec.Size)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// transferBatch fetches one batch of bodies from the source and appends
// them to the destination. A dropped source session is reconnected and
// the batch resumes with the messages not yet processed.
func (s *Syncer) transferBatch(ctx context.Context, f *imaputil.FolderNode, target string, batch []imaputil.MessageRecord, keys keySet, total int, done *int) error {
	byUID := make(map[uint32]imaputil.MessageRecord, len(batch))
	remaining := make([]uint32, 0, len(batch))
	for _, rec := range batch {
		byUID[rec.UID] = rec
		remaining = append(remaining, rec.UID)
	}

	reconnects := 0
	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed := make(map[uint32]bool, len(remaining))
		var fatal error
		err := s.src.FetchBodies(ctx, remaining, func(m *imaputil.FetchedMessage) error {
			rec := byUID[m.UID]
			processed[m.UID] = true
			outcome, ferr := s.transferMessage(target, rec, m)
			if ferr != nil {
				fatal = ferr
				return ferr
			}
			s.st.Record(outcome)
			if outcome == stats.Copied {
				keys.add(rec)
			}
			*done++
			s.emit(Event{Type: EventFolderProgress, Folder: f.Path, Target: target, Total: total, Done: *done})
			return nil
		})

		var left []uint32
		for _, uid := range remaining {
			if !processed[uid] {
				left = append(left, uid)
			}
		}
		remaining = left

		if fatal != nil {
			return fatal
		}
		if err == nil {
			// The server omitted some requested UIDs, most likely
			// expunged since the scan snapshot.
			for _, uid := range remaining {
				rec := byUID[uid]
				s.st.Record(stats.Failed)
				s.recordError(target, rec, fmt.Errorf("server did not return message"))
				*done++
			}
			break
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		switch Classify(err) {
		case FailureRejection:
			for _, uid := range remaining {
				rec := byUID[uid]
				s.st.Record(stats.Failed)
				s.recordError(target, rec, err)
				*done++
			}
			if s.opts.AbortOnError {
				return fmt.Errorf("fetch %s: %w", f.Path, err)
			}
			remaining = nil
		default:
			reconnects++
			if reconnects > s.opts.Retries {
				return fmt.Errorf("source connection lost in %s, %d reconnects exhausted: %w", f.Path, s.opts.Retries, err)
			}
			if !s.opts.Quiet {
				log.Printf("[reconnect] source dropped (%s), resuming %s: %v", Classify(err), f.Path, err)
			}
			if rerr := s.src.Reconnect(); rerr != nil {
				return fmt.Errorf("reconnect source: %w", rerr)
			}
		}
	}
	return nil
}

// transferMessage applies the per-message filters and appends the body
// with its original flags and internal date. The returned error is fatal
// for the run; recoverable failures come back as an outcome instead.
func (s *Syncer) transferMessage(target string, rec imaputil.MessageRecord, m *imaputil.FetchedMessage) (stats.Outcome, error) {
	// Workaround for destination servers that choke parsing very long
	// lines: never send such a message at all.
	if s.opts.MaxLineLength > 0 && exceedsLineLength(m.Body, s.opts.MaxLineLength) {
		return stats.SkippedLineTooLong, nil
	}
	if s.opts.DryRun {
		return stats.Copied, nil
	}

	flags := s.filterFlags(m.Flags)
	attempts := 0
	for {
		err := s.dst.Append(target, flags, m.InternalDate, m.Body)
		if err == nil {
			return stats.Copied, nil
		}
		switch Classify(err) {
		case FailureTransient:
			attempts++
			if attempts > s.opts.Retries {
				return 0, fmt.Errorf("append uid %d to %s: retries exhausted: %w", rec.UID, target, err)
			}
			if !s.opts.Quiet {
				log.Printf("[retry %d/%d] append uid %d to %s: %v", attempts, s.opts.Retries, rec.UID, target, err)
			}
			if rerr := s.dst.Reconnect(); rerr != nil {
				return 0, fmt.Errorf("reconnect destination: %w", rerr)
			}
		case FailureSessionTerminated:
			// Peer closed on us, typically after hitting its per-session
			// failure cap. Fresh session, then on with the next message.
			s.recordError(target, rec, err)
			if rerr := s.dst.Reconnect(); rerr != nil {
				return 0, fmt.Errorf("reconnect destination: %w", rerr)
			}
			return stats.Failed, nil
		case FailureRejection:
			if s.opts.AbortOnError {
				return 0, fmt.Errorf("append uid %d to %s: %w", rec.UID, target, err)
			}
			s.recordError(target, rec, err)
			return stats.Failed, nil
		}
	}
}

func (s *Syncer) filterFlags(flags []string) []string {
	kept := make([]string, 0, len(flags))
	for _, f := range flags {
		if s.denied[strings.ToLower(f)] {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func (s *Syncer) recordError(folder string, rec imaputil.MessageRecord, err error) {
	s.st.RecordError(stats.TransferError{
		Folder:    folder,
		MessageID: mimeutil.NormalizeMessageID(rec.MessageID),
		Subject:   mimeutil.DecodeHeader(rec.Subject),
		Size:      int64(rec.Size),
		Date:      rec.InternalDate,
		Reason:    err.Error(),
	})
}

// exceedsLineLength reports whether any single line in body is longer
// than max bytes.
func exceedsLineLength(body []byte, max int) bool {
	start := 0
	for {
		i := bytes.IndexByte(body[start:], '\n')
		if i < 0 {
			return len(body)-start > max
		}
		if i > max {
			return true
		}
		start += i + 1
	}
}

func (s *Syncer) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// drop if the consumer is slow
	}
}
