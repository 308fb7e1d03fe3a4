// File: internal/xhs/urls.go
package xhs

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	// notePathID matches the id in /explore/<id> and /discovery/item/<id> permalinks.
	notePathID = regexp.MustCompile(`(?i)/(?:explore|discovery(?:/item)?)/([a-f0-9]+)`)
	// loosePathID also accepts the mixed-case ids the note manager links use.
	loosePathID = regexp.MustCompile(`/explore/([a-zA-Z0-9]+)`)
	// hexID finds bare note ids in free text.
	hexID = regexp.MustCompile(`(?i)[a-f0-9]{20,}`)
)

// SearchURL builds the search results URL for keyword.
func SearchURL(base, keyword string) string {
	q := url.Values{}
	q.Set("keyword", keyword)
	q.Set("source", "web_explore_feed")
	return strings.TrimRight(base, "?") + "?" + q.Encode()
}

// FeedDetailURL builds the note page URL; the xsec token is required by
// the platform to render the note.
func FeedDetailURL(exploreBase, feedID, xsecToken string) string {
	q := url.Values{}
	q.Set("xsec_token", xsecToken)
	q.Set("xsec_source", "pc_feed")
	return strings.TrimRight(exploreBase, "/") + "/" + url.PathEscape(feedID) + "?" + q.Encode()
}

// NoteURL is the public permalink of a note.
func NoteURL(homeBase, noteID string) string {
	return strings.TrimRight(homeBase, "/") + "/explore/" + noteID
}

// NoteIDFromURL extracts a note id from a permalink or page URL.
func NoteIDFromURL(raw string) string {
	if m := notePathID.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return ""
}

func isLoginURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.Contains(lower, "login") || strings.Contains(lower, "signin")
}
