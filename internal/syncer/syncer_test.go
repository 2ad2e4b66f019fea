package syncer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pepperpark/imapcopy/internal/imaputil"
	"github.com/pepperpark/imapcopy/internal/stats"
)

func sized(sizes ...uint32) []imaputil.MessageRecord {
	out := make([]imaputil.MessageRecord, len(sizes))
	for i, sz := range sizes {
		out[i] = imaputil.MessageRecord{UID: uint32(i + 1), Size: sz}
	}
	return out
}

func TestBatches(t *testing.T) {
	got := batches(sized(400, 400, 400, 400), 1000)
	if len(got) != 2 || len(got[0]) != 2 || len(got[1]) != 2 {
		t.Fatalf("unexpected grouping: %v", lens(got))
	}
}

func TestBatchesOversizedMessageGetsOwnBatch(t *testing.T) {
	// A message above the buffer size still has to move; it travels alone.
	got := batches(sized(100, 5000, 100), 1000)
	if len(got) != 3 {
		t.Fatalf("unexpected grouping: %v", lens(got))
	}
	for i, b := range got {
		if len(b) != 1 {
			t.Fatalf("batch %d holds %d messages, want 1", i, len(b))
		}
	}
}

func TestBatchesEmpty(t *testing.T) {
	if got := batches(nil, 1000); got != nil {
		t.Fatalf("expected no batches, got %v", lens(got))
	}
}

func TestBatchesPreserveOrder(t *testing.T) {
	records := sized(300, 300, 300, 300, 300)
	var flat []uint32
	for _, b := range batches(records, 700) {
		for _, rec := range b {
			flat = append(flat, rec.UID)
		}
	}
	if len(flat) != len(records) {
		t.Fatalf("lost messages: %d of %d", len(flat), len(records))
	}
	for i, uid := range flat {
		if uid != records[i].UID {
			t.Fatalf("order changed at %d: got uid %d", i, uid)
		}
	}
}

func lens(batches [][]imaputil.MessageRecord) []int {
	out := make([]int, len(batches))
	for i, b := range batches {
		out[i] = len(b)
	}
	return out
}

func TestFilterFlags(t *testing.T) {
	s := New(nil, nil, stats.New(), Options{DeniedFlags: []string{"Seen", `\Answered`, " flagged "}})
	got := s.filterFlags([]string{`\Seen`, `\Answered`, `\Flagged`, `\Recent`, `\Draft`, "$Forwarded"})
	want := []string{`\Draft`, "$Forwarded"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRecentAlwaysDenied(t *testing.T) {
	s := New(nil, nil, stats.New(), Options{})
	got := s.filterFlags([]string{`\Recent`, `\Seen`})
	if len(got) != 1 || got[0] != `\Seen` {
		t.Fatalf("got %v", got)
	}
}

func TestExceedsLineLength(t *testing.T) {
	long := strings.Repeat("x", 5000)
	body := []byte("Subject: ok\r\n\r\n" + long + "\r\nshort\r\n")
	if !exceedsLineLength(body, 4096) {
		t.Fatal("5000-byte line not caught at limit 4096")
	}
	if exceedsLineLength(body, 8192) {
		t.Fatal("5000-byte line flagged at limit 8192")
	}
}

func TestExceedsLineLengthNoTrailingNewline(t *testing.T) {
	body := bytes.Repeat([]byte("y"), 300)
	if !exceedsLineLength(body, 200) {
		t.Fatal("unterminated final line not measured")
	}
	if exceedsLineLength(body, 400) {
		t.Fatal("short unterminated line flagged")
	}
}

func TestDefaultsApplied(t *testing.T) {
	s := New(nil, nil, stats.New(), Options{})
	if s.opts.BufferSize != DefaultBufferSize {
		t.Fatalf("buffer size %d, want %d", s.opts.BufferSize, DefaultBufferSize)
	}
	if s.opts.Retries != DefaultRetries {
		t.Fatalf("retries %d, want %d", s.opts.Retries, DefaultRetries)
	}
}

func TestDryRunTransferCopiesWithoutSession(t *testing.T) {
	s := New(nil, nil, stats.New(), Options{DryRun: true})
	m := &imaputil.FetchedMessage{UID: 1, Body: []byte("Subject: x\r\n\r\nbody\r\n")}
	outcome, err := s.transferMessage("INBOX", imaputil.MessageRecord{UID: 1, Size: 20}, m)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != stats.Copied {
		t.Fatalf("got %v, want %v", outcome, stats.Copied)
	}
}

func TestLineLengthFilterBeforeAppend(t *testing.T) {
	s := New(nil, nil, stats.New(), Options{MaxLineLength: 10})
	m := &imaputil.FetchedMessage{UID: 1, Body: []byte(strings.Repeat("z", 64))}
	outcome, err := s.transferMessage("INBOX", imaputil.MessageRecord{UID: 1}, m)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != stats.SkippedLineTooLong {
		t.Fatalf("got %v, want %v", outcome, stats.SkippedLineTooLong)
	}
}
