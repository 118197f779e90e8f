package slack

import "testing"

func TestToMarkdown(t *testing.T) {
	resolve := func(id string) string {
		if id == "U123" {
			return "jordan"
		}
		return ""
	}

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"user mention resolved", "hey <@U123>", "hey @jordan"},
		{"user mention unresolved", "hey <@U999>", "hey @U999"},
		{"user mention with label", "hey <@U123|jo>", "hey @jo"},
		{"channel mention", "see <#C042|general>", "see #general"},
		{"labeled link", "docs: <https://example.com/a|the docs>", "docs: [the docs](https://example.com/a)"},
		{"bare link", "go to <https://example.com>", "go to https://example.com"},
		{"bold", "this is *important*", "this is **important**"},
		{"strike", "~wrong~ right", "~~wrong~~ right"},
		{"entities", "a &lt;b&gt; &amp; c", "a <b> & c"},
		{"plain text untouched", "nothing special here", "nothing special here"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ToMarkdown(c.in, resolve); got != c.want {
				t.Fatalf("ToMarkdown(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}
