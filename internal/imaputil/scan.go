package imaputil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
)

// metadata FETCHes walk the folder in fixed-count batches; body FETCHes
// are grouped by byte size instead (see Syncer), since sizes are only
// known after this scan.
const scanBatch = 500

// MessageRecord is the per-message metadata snapshot used for diffing
// and transfer planning. UID is only meaningful on the server it came from.
type MessageRecord struct {
	UID          uint32
	Size         uint32
	Flags        []string
	InternalDate time.Time
	MessageID    string
	Subject      string
}

// ScanResult is the outcome of reading one folder's message metadata.
type ScanResult struct {
	Records    []MessageRecord
	Size       int64
	NoEnvelope int // messages the server returned without an ENVELOPE
}

// ScanFolder selects folder read-only and fetches size, envelope, flags
// and internal date for every message. The scan is a one-time snapshot;
// the engine never re-reads a folder mid-run.
func (s *Session) ScanFolder(ctx context.Context, folder string) (*ScanResult, error) {
	st, err := s.Select(folder, true)
	if err != nil {
		return nil, err
	}
	res := &ScanResult{}
	if st.Messages == 0 {
		return res, nil
	}

	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchRFC822Size,
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
	}
	total := st.Messages
	for start := uint32(1); start <= total; start += scanBatch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + scanBatch - 1
		if end > total {
			end = total
		}
		seq := new(imap.SeqSet)
		seq.AddRange(start, end)

		ch := make(chan *imap.Message, 64)
		done := make(chan error, 1)
		go func() {
			done <- s.c.Fetch(seq, items, ch)
		}()
		for msg := range ch {
			if msg == nil {
				continue
			}
			if msg.Envelope == nil {
				res.NoEnvelope++
				continue
			}
			res.Records = append(res.Records, MessageRecord{
				UID:          msg.Uid,
				Size:         msg.Size,
				Flags:        msg.Flags,
				InternalDate: msg.InternalDate,
				MessageID:    msg.Envelope.MessageId,
				Subject:      msg.Envelope.Subject,
			})
			res.Size += int64(msg.Size)
		}
		if err := <-done; err != nil {
			return nil, fmt.Errorf("fetch %s %d:%d: %w", folder, start, end, err)
		}
	}
	return res, nil
}

// FetchedMessage carries one full message body with the attributes
// needed to reproduce it on the destination.
type FetchedMessage struct {
	UID          uint32
	Flags        []string
	InternalDate time.Time
	Body         []byte
}

// FetchBodies retrieves full bodies for the given UIDs in one FETCH,
// invoking fn for each message as it arrives. Bodies are fetched with
// BODY.PEEK so the source's seen-flags are left untouched.
func (s *Session) FetchBodies(ctx context.Context, uids []uint32, fn func(*FetchedMessage) error) error {
	if len(uids) == 0 {
		return nil
	}
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchFlags,
		imap.FetchInternalDate,
		section.FetchItem(),
	}
	seq := new(imap.SeqSet)
	for _, uid := range uids {
		seq.AddNum(uid)
	}

	ch := make(chan *imap.Message, 8)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seq, items, ch)
	}()

	var fnErr error
	for msg := range ch {
		if msg == nil || fnErr != nil {
			continue // keep draining so the fetch goroutine can finish
		}
		lit := msg.GetBody(section)
		if lit == nil {
			fnErr = fmt.Errorf("uid %d: server returned no body", msg.Uid)
			continue
		}
		body, err := io.ReadAll(lit)
		if err != nil {
			fnErr = fmt.Errorf("uid %d: read body: %w", msg.Uid, err)
			continue
		}
		if err := ctx.Err(); err != nil {
			fnErr = err
			continue
		}
		fnErr = fn(&FetchedMessage{
			UID:          msg.Uid,
			Flags:        msg.Flags,
			InternalDate: msg.InternalDate,
			Body:         body,
		})
	}
	if err := <-done; err != nil {
		return fmt.Errorf("uid fetch: %w", err)
	}
	return fnErr
}

// Append stores a message body in folder with the given flags and
// internal date. The receiving server applies it atomically: the message
// either becomes fully visible or not at all.
func (s *Session) Append(folder string, flags []string, date time.Time, body []byte) error {
	if err := s.c.Append(folder, flags, date, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("append %s: %w", folder, err)
	}
	return nil
}
