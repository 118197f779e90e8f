package github

import (
	"fmt"
	"regexp"
)

var (
	// Mentions are matched only when preceded by start-of-text or whitespace
	// so email addresses are left alone.
	mentionRe  = regexp.MustCompile(`(^|\s)@([A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?)`)
	itemRefRe  = regexp.MustCompile(`(^|\s)#(\d+)\b`)
	bareURLRe  = regexp.MustCompile(`(^|\s)(https?://[^\s<>\)]+)`)
	inLinkScan = regexp.MustCompile(`\[[^\]]*\]\([^\)]*\)`)
)

// NormalizeBody rewrites GitHub shorthand in an issue or pull request body
// into portable markdown: @user mentions and #123 item references become
// links into the given repository, and bare URLs become autolinks. Text that
// is already inside a markdown link is left untouched.
func NormalizeBody(body, repoFullName string) string {
	if body == "" {
		return ""
	}

	// Protect existing markdown links from double-rewriting by processing
	// the segments between them.
	var out []byte
	last := 0
	for _, loc := range inLinkScan.FindAllStringIndex(body, -1) {
		out = append(out, rewriteSegment(body[last:loc[0]], repoFullName)...)
		out = append(out, body[loc[0]:loc[1]]...)
		last = loc[1]
	}
	out = append(out, rewriteSegment(body[last:], repoFullName)...)
	return string(out)
}

func rewriteSegment(segment, repoFullName string) string {
	if segment == "" {
		return segment
	}
	segment = mentionRe.ReplaceAllString(segment, "$1[@$2](https://github.com/$2)")
	segment = itemRefRe.ReplaceAllString(segment,
		fmt.Sprintf("$1[#$2](https://github.com/%s/issues/$2)", repoFullName))
	segment = bareURLRe.ReplaceAllString(segment, "$1<$2>")
	return segment
}
