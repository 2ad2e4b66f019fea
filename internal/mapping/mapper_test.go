package mapping

import (
	"testing"

	"github.com/pepperpark/imapcopy/internal/imaputil"
)

func folders(delim string, paths ...string) []*imaputil.FolderNode {
	out := make([]*imaputil.FolderNode, 0, len(paths))
	for _, p := range paths {
		out = append(out, &imaputil.FolderNode{Path: p, Delimiter: delim})
	}
	return out
}

func TestResolveRootMerge(t *testing.T) {
	src := folders(".", "INBOX", "Trash.Folder1")
	dst := folders(".", "INBOX")

	m, err := New(Config{DestinationRoot: "INBOX", DestinationRootMerge: true}, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Resolve(src[0]); got != "INBOX" {
		t.Fatalf("INBOX with merge: got %q, want %q", got, "INBOX")
	}
	if got := m.Resolve(src[1]); got != "INBOX.Trash.Folder1" {
		t.Fatalf("Trash.Folder1 with merge: got %q, want %q", got, "INBOX.Trash.Folder1")
	}
}

func TestResolveRootWithoutMerge(t *testing.T) {
	src := folders(".", "INBOX")
	dst := folders(".", "INBOX")

	m, err := New(Config{DestinationRoot: "INBOX"}, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Resolve(src[0]); got != "INBOX.INBOX" {
		t.Fatalf("INBOX without merge: got %q, want %q", got, "INBOX.INBOX")
	}
}

func TestRedirectionBeatsRoot(t *testing.T) {
	src := folders(".", "INBOX.Send Items")
	dst := folders(".", "INBOX")

	m, err := New(Config{
		Rules:           []Rule{{Source: "INBOX.Send Items", Destination: "INBOX.Send"}},
		DestinationRoot: "Archive",
	}, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	// A redirected destination is never re-prefixed with the root.
	if got := m.Resolve(src[0]); got != "INBOX.Send" {
		t.Fatalf("redirected folder: got %q, want %q", got, "INBOX.Send")
	}
}

func TestFirstMatchingRuleWins(t *testing.T) {
	src := folders(".", "Old")
	dst := folders(".")

	m, err := New(Config{Rules: []Rule{
		{Source: "Old", Destination: "First"},
		{Source: "Old", Destination: "Second"},
	}}, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Resolve(src[0]); got != "First" {
		t.Fatalf("got %q, want %q", got, "First")
	}
}

func TestWildcardRule(t *testing.T) {
	src := folders(".", "Lists.go", "Lists.rust", "INBOX")
	dst := folders(".")

	m, err := New(Config{Rules: []Rule{{Source: "Lists.*", Destination: "Archive.Lists"}}}, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range src[:2] {
		if got := m.Resolve(f); got != "Archive.Lists" {
			t.Fatalf("%s: got %q, want %q", f.Path, got, "Archive.Lists")
		}
	}
	if got := m.Resolve(src[2]); got != "INBOX" {
		t.Fatalf("INBOX: got %q, want %q", got, "INBOX")
	}
}

func TestRuleSourceNotFound(t *testing.T) {
	src := folders(".", "INBOX")
	for _, ruleSrc := range []string{"Nope", "Nope.*"} {
		_, err := New(Config{Rules: []Rule{{Source: ruleSrc, Destination: "X"}}}, src, nil)
		if err == nil {
			t.Fatalf("rule source %q: expected error", ruleSrc)
		}
	}
}

func TestRuleMatchesFullPathOnly(t *testing.T) {
	src := folders(".", "INBOX.Sub")
	dst := folders(".")

	// "INBOX" is a prefix of "INBOX.Sub" but not a full-path match.
	if _, err := New(Config{Rules: []Rule{{Source: "INBOX", Destination: "X"}}}, src, dst); err == nil {
		t.Fatal("expected error for rule not matching any full path")
	}
}

func TestDelimiterTranslation(t *testing.T) {
	src := folders("/", "Work/Reports")
	dst := folders(".", "INBOX")

	m, err := New(Config{}, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Resolve(src[0]); got != "Work.Reports" {
		t.Fatalf("got %q, want %q", got, "Work.Reports")
	}
}

func TestSpecialUseLinking(t *testing.T) {
	src := []*imaputil.FolderNode{
		{Path: "Sent Items", Delimiter: ".", SpecialUse: imaputil.AttrSent},
	}
	dst := []*imaputil.FolderNode{
		{Path: "Gesendet", Delimiter: ".", SpecialUse: imaputil.AttrSent},
	}

	m, err := New(Config{LinkSpecialUse: true}, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Resolve(src[0]); got != "Gesendet" {
		t.Fatalf("linked special folder: got %q, want %q", got, "Gesendet")
	}

	m, err = New(Config{LinkSpecialUse: false}, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Resolve(src[0]); got != "Sent Items" {
		t.Fatalf("unlinked special folder: got %q, want %q", got, "Sent Items")
	}
}

func TestRedirectionBeatsSpecialUse(t *testing.T) {
	src := []*imaputil.FolderNode{
		{Path: "Sent Items", Delimiter: ".", SpecialUse: imaputil.AttrSent},
	}
	dst := []*imaputil.FolderNode{
		{Path: "Gesendet", Delimiter: ".", SpecialUse: imaputil.AttrSent},
	}

	m, err := New(Config{
		Rules:          []Rule{{Source: "Sent Items", Destination: "Outbound"}},
		LinkSpecialUse: true,
	}, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Resolve(src[0]); got != "Outbound" {
		t.Fatalf("got %q, want %q", got, "Outbound")
	}
}

func TestParseRule(t *testing.T) {
	rule, err := ParseRule("INBOX.Send Items:INBOX.Send")
	if err != nil {
		t.Fatal(err)
	}
	if rule.Source != "INBOX.Send Items" || rule.Destination != "INBOX.Send" {
		t.Fatalf("unexpected rule: %+v", rule)
	}

	for _, bad := range []string{"nodest", ":dst", "src:", ""} {
		if _, err := ParseRule(bad); err == nil {
			t.Fatalf("%q: expected parse error", bad)
		}
	}
}

func TestMappingIsTotal(t *testing.T) {
	src := folders(".", "INBOX", "A", "A.B", "Trash")
	dst := folders(".")

	m, err := New(Config{DestinationRoot: "Backup"}, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, f := range src {
		got := m.Resolve(f)
		if got == "" {
			t.Fatalf("%s: empty destination", f.Path)
		}
		if seen[got] {
			t.Fatalf("%s: destination %q already used", f.Path, got)
		}
		seen[got] = true
	}
}
