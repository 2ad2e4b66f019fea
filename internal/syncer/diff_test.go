package syncer

import (
	"testing"
	"time"

	"github.com/pepperpark/imapcopy/internal/imaputil"
)

func rec(uid, size uint32, date time.Time, msgid, subject string) imaputil.MessageRecord {
	return imaputil.MessageRecord{
		UID:          uid,
		Size:         size,
		InternalDate: date,
		MessageID:    msgid,
		Subject:      subject,
	}
}

func TestMissingEmptyDestination(t *testing.T) {
	now := time.Now()
	src := []imaputil.MessageRecord{
		rec(1, 100, now, "<a@x>", ""),
		rec(2, 200, now, "<b@x>", ""),
	}
	toCopy, dups := missing(src, newKeySet(nil))
	if len(toCopy) != 2 || dups != 0 {
		t.Fatalf("got %d to copy, %d duplicates", len(toCopy), dups)
	}
}

func TestMissingIdempotent(t *testing.T) {
	now := time.Now()
	src := []imaputil.MessageRecord{
		rec(1, 100, now, "<a@x>", ""),
		rec(2, 200, now, "<b@x>", ""),
	}
	// Destination holds the same messages under different UIDs.
	dst := []imaputil.MessageRecord{
		rec(77, 100, now, "<a@x>", ""),
		rec(78, 200, now, "<b@x>", ""),
	}
	toCopy, dups := missing(src, newKeySet(dst))
	if len(toCopy) != 0 {
		t.Fatalf("re-run copied %d messages, want 0", len(toCopy))
	}
	if dups != 2 {
		t.Fatalf("got %d duplicates, want 2", dups)
	}
}

func TestMissingSizeMismatch(t *testing.T) {
	now := time.Now()
	src := []imaputil.MessageRecord{rec(1, 100, now, "<a@x>", "")}
	dst := []imaputil.MessageRecord{rec(50, 101, now, "<a@x>", "")}
	toCopy, _ := missing(src, newKeySet(dst))
	if len(toCopy) != 1 {
		t.Fatalf("size mismatch not treated as missing")
	}
}

func TestMissingDateMismatch(t *testing.T) {
	now := time.Now()
	src := []imaputil.MessageRecord{rec(1, 100, now, "<a@x>", "")}
	dst := []imaputil.MessageRecord{rec(50, 100, now.Add(time.Hour), "<a@x>", "")}
	toCopy, _ := missing(src, newKeySet(dst))
	if len(toCopy) != 1 {
		t.Fatalf("internal date mismatch not treated as missing")
	}
}

func TestMissingConsumesMatchesCountwise(t *testing.T) {
	now := time.Now()
	// Two identical source copies, one destination copy: exactly one
	// still has to move.
	src := []imaputil.MessageRecord{
		rec(1, 100, now, "<a@x>", ""),
		rec(2, 100, now, "<a@x>", ""),
	}
	dst := []imaputil.MessageRecord{rec(50, 100, now, "<a@x>", "")}
	toCopy, dups := missing(src, newKeySet(dst))
	if len(toCopy) != 1 || dups != 1 {
		t.Fatalf("got %d to copy, %d duplicates; want 1, 1", len(toCopy), dups)
	}
}

func TestKeyForNormalizesMessageID(t *testing.T) {
	now := time.Now()
	a := keyFor(rec(1, 100, now, "<a@x>", ""))
	b := keyFor(rec(2, 100, now, "a@x", ""))
	if a != b {
		t.Fatalf("angle brackets changed the identity key: %v vs %v", a, b)
	}
}

func TestKeyForTimezoneInsensitive(t *testing.T) {
	utc := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cet := utc.In(time.FixedZone("CET", 3600))
	a := keyFor(rec(1, 100, utc, "<a@x>", ""))
	b := keyFor(rec(2, 100, cet, "<a@x>", ""))
	if a != b {
		t.Fatalf("timezone changed the identity key")
	}
}

func TestKeyForDegenerateMessageID(t *testing.T) {
	// Lone-quote and lone-bracket Message-ID values come straight from
	// server envelopes and must not blow up the diff.
	now := time.Now()
	for _, id := range []string{"\"", "<", ">"} {
		k := keyFor(rec(1, 100, now, id, ""))
		if k.header != id {
			t.Fatalf("%q: got header %q", id, k.header)
		}
	}
}

func TestKeyForSubjectFallback(t *testing.T) {
	now := time.Now()
	a := keyFor(rec(1, 100, now, "", "hello"))
	b := keyFor(rec(2, 100, now, "", "hello"))
	c := keyFor(rec(3, 100, now, "", "other"))
	if a != b {
		t.Fatalf("equal subjects produced different keys")
	}
	if a == c {
		t.Fatalf("distinct subjects produced equal keys")
	}
}

func TestKeySetAdd(t *testing.T) {
	now := time.Now()
	ks := newKeySet(nil)
	r := rec(1, 100, now, "<a@x>", "")
	ks.add(r)
	toCopy, dups := missing([]imaputil.MessageRecord{r}, ks)
	if len(toCopy) != 0 || dups != 1 {
		t.Fatalf("added record not matched: %d to copy, %d duplicates", len(toCopy), dups)
	}
}
