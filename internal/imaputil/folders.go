package imaputil

import (
	"fmt"
	"strings"

	"github.com/emersion/go-imap"
	quota "github.com/emersion/go-imap-quota"
)

// Special-use attributes advertised via LIST (RFC 6154). Servers without
// SPECIAL-USE support are covered by the name heuristics below.
const (
	AttrArchive = "\\Archive"
	AttrDrafts  = "\\Drafts"
	AttrJunk    = "\\Junk"
	AttrSent    = "\\Sent"
	AttrTrash   = "\\Trash"
)

var specialUseAttrs = []string{AttrArchive, AttrDrafts, AttrJunk, AttrSent, AttrTrash}

// specialUseNames maps well-known folder names (lowercased) to the
// special-use attribute they conventionally serve.
var specialUseNames = map[string]string{
	"archive":       AttrArchive,
	"drafts":        AttrDrafts,
	"junk":          AttrJunk,
	"spam":          AttrJunk,
	"bulk mail":     AttrJunk,
	"sent":          AttrSent,
	"sent items":    AttrSent,
	"sent messages": AttrSent,
	"trash":         AttrTrash,
	"deleted items": AttrTrash,
}

// FolderNode is a read-only snapshot of one folder in a mailbox tree.
// Messages and Size are filled in by ScanFolder.
type FolderNode struct {
	Path       string
	Delimiter  string
	Attrs      []string
	SpecialUse string // one of the Attr* constants, or ""
	Messages   int
	Size       int64
	Records    []MessageRecord
}

// Leaf returns the last path segment.
func (f *FolderNode) Leaf() string {
	if f.Delimiter == "" {
		return f.Path
	}
	parts := strings.Split(f.Path, f.Delimiter)
	return parts[len(parts)-1]
}

// ListFolders enumerates all folders reachable under root ("" for the
// account root), detecting each one's special-use role from LIST
// attributes with a case-insensitive name fallback.
func (s *Session) ListFolders(root string) ([]*FolderNode, error) {
	ch := make(chan *imap.MailboxInfo, 32)
	done := make(chan error, 1)
	go func() {
		done <- s.c.List(root, "*", ch)
	}()

	var folders []*FolderNode
	for mb := range ch {
		if mb == nil {
			continue
		}
		node := &FolderNode{
			Path:      mb.Name,
			Delimiter: mb.Delimiter,
			Attrs:     mb.Attributes,
		}
		node.SpecialUse = detectSpecialUse(mb.Name, mb.Delimiter, mb.Attributes)
		folders = append(folders, node)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return folders, nil
}

func detectSpecialUse(name, delimiter string, attrs []string) string {
	for _, attr := range attrs {
		for _, want := range specialUseAttrs {
			if strings.EqualFold(attr, want) {
				return want
			}
		}
	}
	leaf := name
	if delimiter != "" {
		parts := strings.Split(name, delimiter)
		leaf = parts[len(parts)-1]
	}
	return specialUseNames[strings.ToLower(leaf)]
}

// EnsureFolder creates the folder if it does not exist. Create racing an
// existing folder is tolerated by re-checking with a select.
func (s *Session) EnsureFolder(name string) (created bool, err error) {
	if _, err := s.Select(name, true); err == nil {
		return false, nil
	}
	if err := s.c.Create(name); err != nil {
		if _, selErr := s.Select(name, true); selErr == nil {
			return false, nil
		}
		return false, fmt.Errorf("create folder %s: %w", name, err)
	}
	return true, nil
}

// Subscribe marks the folder subscribed so it shows up in mail clients.
func (s *Session) Subscribe(name string) error {
	return s.c.Subscribe(name)
}

// QuotaUsage reports the destination account's STORAGE quota in bytes for
// the quota root governing mailbox. ok is false when the server does not
// advertise the QUOTA capability or reports no storage resource.
func (s *Session) QuotaUsage(mailbox string) (used, limit int64, ok bool, err error) {
	supported, err := s.c.Support("QUOTA")
	if err != nil {
		return 0, 0, false, fmt.Errorf("capability: %w", err)
	}
	if !supported {
		return 0, 0, false, nil
	}
	qc := quota.NewClient(s.c)
	statuses, err := qc.GetQuotaRoot(mailbox)
	if err != nil {
		return 0, 0, false, fmt.Errorf("getquotaroot %s: %w", mailbox, err)
	}
	for _, st := range statuses {
		if res, found := st.Resources["STORAGE"]; found {
			// STORAGE is reported in units of 1024 octets (RFC 2087).
			return int64(res[0]) * 1024, int64(res[1]) * 1024, true, nil
		}
	}
	return 0, 0, false, nil
}
