// File: internal/xhs/notes.go
package xhs

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/selector"
)

const (
	defaultNotesLimit = 20
	maxNotesLimit     = 100
)

// Visibility of a note as shown in the note manager.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityFriends Visibility = "friends"
)

// Note is one card scraped from the creator note manager.
type Note struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Images         []string   `json:"images,omitempty"`
	PublishedAt    *time.Time `json:"publishedAt,omitempty"`
	Likes          int        `json:"likeCount"`
	Comments       int        `json:"commentCount"`
	Shares         int        `json:"shareCount"`
	Collects       int        `json:"collectCount"`
	Tags           []string   `json:"tags,omitempty"`
	URL            string     `json:"url"`
	Visibility     Visibility `json:"visibility"`
	VisibilityText string     `json:"visibilityText,omitempty"`
}

// ListOptions page through the note manager. Cursor is the id of the last
// note of the previous page.
type ListOptions struct {
	Limit    int
	Cursor   string
	ExecPath string
}

// ListNotes returns the signed-in creator's notes, newest first.
func (s *Service) ListNotes(ctx context.Context, opts ListOptions) Result {
	return s.run("list_notes", func() (any, string, error) {
		limit := opts.Limit
		if limit == 0 {
			limit = defaultNotesLimit
		}
		if limit < 1 || limit > maxNotesLimit {
			return nil, "", invalid("limit", "must be between 1 and %d, got %d", maxNotesLimit, limit)
		}

		var notes []Note
		err := s.withPage(ctx, s.pageOptions(opts.ExecPath), func(page browser.Page) error {
			var err error
			notes, err = s.collectNotes(ctx, page, "list_notes")
			return err
		})
		if err != nil {
			return nil, "", err
		}

		data := pageNotes(notes, opts.Cursor, limit)
		return data, "Notes retrieved", nil
	})
}

// pageNotes skips past cursor and truncates to limit. An unknown cursor
// starts from the top.
func pageNotes(all []Note, cursor string, limit int) NotesData {
	rest := all
	if cursor != "" {
		for i, n := range all {
			if n.ID == cursor {
				rest = all[i+1:]
				break
			}
		}
	}
	page := rest
	if len(page) > limit {
		page = page[:limit]
	}
	data := NotesData{
		Notes:   append([]Note{}, page...),
		Total:   len(all),
		HasMore: len(rest) > limit,
	}
	if len(page) > 0 {
		data.NextCursor = page[len(page)-1].ID
	}
	return data
}

// collectNotes opens the note manager on page and parses every note card.
func (s *Service) collectNotes(ctx context.Context, page browser.Page, op string) ([]Note, error) {
	managerURL := s.cfg.XHS().NoteManagerURL
	if err := s.manager.Navigate(ctx, page, managerURL); err != nil {
		return nil, err
	}
	if err := s.settle(ctx, 3*time.Second); err != nil {
		return nil, err
	}
	if err := s.requireCreatorSession(ctx, page, op); err != nil {
		return nil, err
	}

	cards, matched, err := s.engine.ResolveAll(ctx, page, s.cands(selector.RoleNoteCard))
	if err != nil {
		if selector.IsNotFound(err) && ctx.Err() == nil {
			s.logger.Info("No note cards on the note manager page.")
			return nil, nil
		}
		return nil, &FeedParsingError{stepErr("find note cards", s.currentURL(ctx, page), err)}
	}

	home := s.cfg.XHS().HomeURL
	notes := make([]Note, 0, len(cards))
	for i, card := range cards {
		html, err := card.OuterHTML(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Debug("Skipping unreadable note card.", zap.Int("index", i), zap.Error(err))
			continue
		}
		note, ok := parseNoteCard(html, home)
		if !ok {
			continue
		}
		notes = append(notes, note)
	}
	s.logger.Debug("Note cards parsed.", zap.String("selector", matched), zap.Int("cards", len(cards)), zap.Int("notes", len(notes)))
	return notes, nil
}

var (
	publishedAt = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日\s*(\d{1,2}):(\d{2})`)
	countToken  = regexp.MustCompile(`\d+(?:\.\d+)?[万wWkK]?`)
	// Timestamps shown by the platform are China Standard Time.
	platformZone = time.FixedZone("CST", 8*60*60)
)

const (
	titleSelector = `[class*="raw"], [class*="title"], [class*="name"]`
	imageSelector = `img[class*="media"], img[class*="cover"], img[class*="thumbnail"]`
	statSelector  = `[class*="count"], [class*="stat"], [class*="number"]`
	tagSelector   = `[class*="tag"], [class*="label"]`
	timeSelector  = `[class*="time"], [class*="date"]`
	linkSelector  = `a[href*="/explore/"], a[href*="/note/"], a[href*="/discovery/"]`
)

// parseNoteCard reads one card's outer HTML. Cards without an id are
// dropped.
func parseNoteCard(html, homeURL string) (Note, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Note{}, false
	}
	root := doc.Find("body").Children().First()

	note := Note{ID: cardNoteID(root)}
	if note.ID == "" {
		return Note{}, false
	}
	note.URL = NoteURL(homeURL, note.ID)
	note.Title = strings.TrimSpace(root.Find(titleSelector).First().Text())

	root.Find(imageSelector).Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src != "" && !strings.Contains(src, "avatar") && !strings.Contains(src, "icon") {
			note.Images = append(note.Images, src)
		}
	})

	text := root.Text()
	timeText := root.Find(timeSelector).First().Text()
	if timeText == "" {
		timeText = text
	}
	if ts, ok := parsePublishedAt(timeText); ok {
		note.PublishedAt = &ts
	}
	parseCounters(root, &note)
	note.Visibility, note.VisibilityText = parseVisibility(text)

	root.Find(tagSelector).Each(func(_ int, tag *goquery.Selection) {
		if t := strings.TrimSpace(tag.Text()); strings.HasPrefix(t, "#") {
			note.Tags = append(note.Tags, t)
		}
	})
	return note, true
}

func cardNoteID(root *goquery.Selection) string {
	candidates := root.Find("[data-impression]").AddSelection(root.Filter("[data-impression]"))
	var id string
	candidates.EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw, _ := sel.Attr("data-impression")
		id = gjson.Get(raw, "noteTarget.value.noteId").String()
		return id == ""
	})
	if id != "" {
		return id
	}
	root.Find(linkSelector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if id = NoteIDFromURL(href); id == "" {
			if m := loosePathID.FindStringSubmatch(href); m != nil {
				id = m[1]
			}
		}
		return id == ""
	})
	return id
}

func parsePublishedAt(text string) (time.Time, bool) {
	if !strings.Contains(text, "发布于") {
		return time.Time{}, false
	}
	m := publishedAt.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	var parts [5]int
	for i := range parts {
		parts[i], _ = strconv.Atoi(m[i+1])
	}
	return time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], 0, 0, platformZone), true
}

// parseCounters prefers labelled stat elements and falls back to the first
// four numbers in the card text, in like, comment, share, collect order.
// Title and tag text is left out of the fallback.
func parseCounters(root *goquery.Selection, note *Note) {
	labelled := false
	root.Find(statSelector).Each(func(_ int, stat *goquery.Selection) {
		t := strings.TrimSpace(stat.Text())
		n := parseCount(countToken.FindString(t))
		switch {
		case strings.Contains(t, "赞") || strings.Contains(t, "like"):
			note.Likes, labelled = n, true
		case strings.Contains(t, "评论") || strings.Contains(t, "comment"):
			note.Comments, labelled = n, true
		case strings.Contains(t, "分享") || strings.Contains(t, "share"):
			note.Shares, labelled = n, true
		case strings.Contains(t, "收藏") || strings.Contains(t, "collect"):
			note.Collects, labelled = n, true
		}
	})
	if labelled {
		return
	}

	body := root.Clone()
	body.Find(titleSelector).Remove()
	body.Find(tagSelector).Remove()
	// Dates would otherwise be read as counters.
	text := publishedAt.ReplaceAllString(body.Text(), "")
	nums := countToken.FindAllString(text, -1)
	if len(nums) < 4 {
		return
	}
	note.Likes = parseCount(nums[0])
	note.Comments = parseCount(nums[1])
	note.Shares = parseCount(nums[2])
	note.Collects = parseCount(nums[3])
}

// parseCount reads "12", "1.2万" or "3k".
func parseCount(s string) int {
	if s == "" {
		return 0
	}
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "万"):
		mult, s = 10000, strings.TrimSuffix(s, "万")
	case strings.HasSuffix(s, "w"), strings.HasSuffix(s, "W"):
		mult, s = 10000, s[:len(s)-1]
	case strings.HasSuffix(s, "k"), strings.HasSuffix(s, "K"):
		mult, s = 1000, s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f*mult + 0.5)
}

// parseVisibility defaults to public when the card shows no marker.
func parseVisibility(text string) (Visibility, string) {
	switch {
	case strings.Contains(text, "仅自己可见"):
		return VisibilityPrivate, "仅自己可见"
	case strings.Contains(text, "朋友可见"):
		return VisibilityFriends, "朋友可见"
	default:
		return VisibilityPublic, "公开"
	}
}
