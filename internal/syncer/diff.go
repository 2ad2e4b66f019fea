package syncer

import (
	"strings"
	"time"

	"github.com/pepperpark/imapcopy/internal/imaputil"
	"github.com/pepperpark/imapcopy/internal/mimeutil"
)

// identityKey identifies a message independently of server-assigned UIDs,
// which are not portable across servers. Size, internal date and a
// normalized header subset survive an APPEND unchanged, so a re-run over
// an already-synced pair matches every message it copied before.
type identityKey struct {
	size   uint32
	date   int64 // internal date, UTC, second granularity
	header string
}

func keyFor(rec imaputil.MessageRecord) identityKey {
	h := mimeutil.NormalizeMessageID(rec.MessageID)
	if h == "" {
		// Rare, but some mailers omit Message-ID entirely.
		h = strings.TrimSpace(rec.Subject)
	}
	return identityKey{
		size:   rec.Size,
		date:   rec.InternalDate.UTC().Truncate(time.Second).Unix(),
		header: h,
	}
}

// keySet indexes destination messages for duplicate detection. Values
// count occurrences so genuinely duplicated destination mail is matched
// message-for-message rather than swallowing every source copy.
type keySet map[identityKey]int

func newKeySet(records []imaputil.MessageRecord) keySet {
	ks := make(keySet, len(records))
	for _, rec := range records {
		ks[keyFor(rec)]++
	}
	return ks
}

func (ks keySet) add(rec imaputil.MessageRecord) {
	ks[keyFor(rec)]++
}

// missing computes the complement of src against the destination key set:
// everything not already present and therefore still to be copied.
// Matched source messages are consumed from the set one at a time.
func missing(src []imaputil.MessageRecord, dst keySet) (toCopy []imaputil.MessageRecord, duplicates int) {
	for _, rec := range src {
		k := keyFor(rec)
		if dst[k] > 0 {
			dst[k]--
			duplicates++
			continue
		}
		toCopy = append(toCopy, rec)
	}
	return toCopy, duplicates
}
