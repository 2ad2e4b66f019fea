package imaputil

import "testing"

func TestDetectSpecialUseFromAttrs(t *testing.T) {
	got := detectSpecialUse("Whatever", ".", []string{"\\HasNoChildren", "\\sent"})
	if got != AttrSent {
		t.Fatalf("got %q, want %q", got, AttrSent)
	}
}

func TestDetectSpecialUseAttrBeatsName(t *testing.T) {
	// LIST attributes are authoritative over the folder name.
	got := detectSpecialUse("Trash", ".", []string{AttrJunk})
	if got != AttrJunk {
		t.Fatalf("got %q, want %q", got, AttrJunk)
	}
}

func TestDetectSpecialUseFromName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Sent Items", AttrSent},
		{"INBOX.sent", AttrSent},
		{"Spam", AttrJunk},
		{"Deleted Items", AttrTrash},
		{"Drafts", AttrDrafts},
		{"Archive", AttrArchive},
		{"Projects", ""},
	}
	for _, tc := range cases {
		if got := detectSpecialUse(tc.name, ".", nil); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestDetectSpecialUseLeafOnly(t *testing.T) {
	// The heuristic looks at the leaf segment, not the full path.
	if got := detectSpecialUse("Sent.Projects", ".", nil); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestLeaf(t *testing.T) {
	f := &FolderNode{Path: "INBOX.Work.Reports", Delimiter: "."}
	if got := f.Leaf(); got != "Reports" {
		t.Fatalf("got %q", got)
	}
	f = &FolderNode{Path: "INBOX"}
	if got := f.Leaf(); got != "INBOX" {
		t.Fatalf("no delimiter: got %q", got)
	}
}
