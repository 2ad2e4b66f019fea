package syncer

import "log"

// quotaQuerier is the slice of Destination the guard needs.
type quotaQuerier interface {
	QuotaUsage(mailbox string) (used, limit int64, ok bool, err error)
}

// quotaGuard halts transfers into the destination account once the
// incoming estimate would exceed its advertised storage quota. Servers
// without the QUOTA capability make the guard a no-op; the feature is
// best-effort.
type quotaGuard struct {
	sess      quotaQuerier
	ignore    bool
	verbose   bool
	exhausted bool
}

// allow reports whether the next folder's estimated incoming bytes fit
// within the destination quota. Once it returns false, it keeps
// returning false for the rest of the run.
func (g *quotaGuard) allow(folder string, incoming int64) bool {
	if g.exhausted {
		return false
	}
	if incoming == 0 {
		return true
	}
	used, limit, ok, err := g.sess.QuotaUsage(folder)
	if err != nil {
		// Treat a failed quota query like an unsupported one; the
		// append path still surfaces real over-quota rejections.
		if g.verbose {
			log.Printf("[quota] query failed, continuing without guard: %v", err)
		}
		return true
	}
	if !ok || limit <= 0 {
		return true
	}
	if used+incoming <= limit {
		return true
	}
	if g.ignore {
		if g.verbose {
			log.Printf("[quota] %s: %d bytes incoming would exceed %d/%d (ignoring)",
				folder, incoming, used, limit)
		}
		return true
	}
	g.exhausted = true
	return false
}
