package mimeutil

import "testing"

func TestDecodeHeader(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain subject", "plain subject"},
		{"=?UTF-8?Q?Gr=C3=BC=C3=9Fe?=", "Grüße"},
		{"=?UTF-8?B?SGFsbG8gV2VsdA==?=", "Hallo Welt"},
		{"=?ISO-8859-1?Q?caf=E9?=", "café"},
		{"=?windows-1252?Q?=93quoted=94?=", "“quoted”"},
		{"=?us-ascii?Q?hello?=", "hello"},
	}
	for _, tc := range cases {
		if got := DecodeHeader(tc.in); got != tc.want {
			t.Errorf("DecodeHeader(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDecodeHeaderBadInputPassesThrough(t *testing.T) {
	in := "=?garbage-charset?Q?abc?="
	if got := DecodeHeader(in); got != in {
		t.Fatalf("got %q, want input unchanged", got)
	}
}

func TestNormalizeMessageID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<abc@example.org>", "abc@example.org"},
		{"\"abc@example.org\"", "abc@example.org"},
		{"  <abc@example.org>  ", "abc@example.org"},
		{"abc@example.org", "abc@example.org"},
		{"", ""},
		{"<unterminated", "<unterminated"},
		{"\"", "\""},
		{"<", "<"},
		{"<>", ""},
		{"\"\"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeMessageID(tc.in); got != tc.want {
			t.Errorf("NormalizeMessageID(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}
