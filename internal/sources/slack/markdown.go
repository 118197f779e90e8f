package slack

import (
	"regexp"
	"strings"
)

// Slack mrkdwn is close to Markdown but not the same; these rewrites cover
// the divergent constructs so stored text reads as plain Markdown.

var (
	userMentionRe    = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|([^>]+))?>`)
	channelMentionRe = regexp.MustCompile(`<#[A-Z0-9]+\|([^>]*)>`)
	linkWithLabelRe  = regexp.MustCompile(`<(https?://[^|>]+)\|([^>]+)>`)
	bareLinkRe       = regexp.MustCompile(`<(https?://[^|>]+)>`)
	boldRe           = regexp.MustCompile(`\*([^*\n]+)\*`)
	strikeRe         = regexp.MustCompile(`~([^~\n]+)~`)
)

// ToMarkdown converts one message's mrkdwn body. resolveUser maps a user ID
// to a display name; it may be nil, in which case the raw ID is kept.
func ToMarkdown(text string, resolveUser func(id string) string) string {
	out := text

	out = userMentionRe.ReplaceAllStringFunc(out, func(m string) string {
		parts := userMentionRe.FindStringSubmatch(m)
		if parts[2] != "" {
			return "@" + parts[2]
		}
		if resolveUser != nil {
			if name := resolveUser(parts[1]); name != "" {
				return "@" + name
			}
		}
		return "@" + parts[1]
	})
	out = channelMentionRe.ReplaceAllString(out, "#$1")
	out = linkWithLabelRe.ReplaceAllString(out, "[$2]($1)")
	out = bareLinkRe.ReplaceAllString(out, "$1")
	out = boldRe.ReplaceAllString(out, "**$1**")
	out = strikeRe.ReplaceAllString(out, "~~$1~~")

	out = strings.ReplaceAll(out, "&lt;", "<")
	out = strings.ReplaceAll(out, "&gt;", ">")
	out = strings.ReplaceAll(out, "&amp;", "&")
	return out
}
