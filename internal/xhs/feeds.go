// File: internal/xhs/feeds.go
package xhs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/selector"
)

// FeedUser is the author of a feed item.
type FeedUser struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
}

// FeedItem is one entry of the home feed or of search results.
type FeedItem struct {
	ID        string   `json:"id"`
	XsecToken string   `json:"xsecToken,omitempty"`
	Type      string   `json:"type,omitempty"`
	Title     string   `json:"title"`
	Cover     string   `json:"cover,omitempty"`
	User      FeedUser `json:"user"`
	Liked     bool     `json:"liked"`
	Likes     string   `json:"likedCount,omitempty"`
	Collects  string   `json:"collectedCount,omitempty"`
	Comments  string   `json:"commentCount,omitempty"`
	Shares    string   `json:"shareCount,omitempty"`
}

// stateScript serialises the first page state global it finds. Circular
// references are replaced so JSON.stringify cannot throw.
const stateScript = `(() => {
  const safe = (v) => {
    const seen = new WeakSet();
    return JSON.stringify(v, (k, val) => {
      if (val != null && typeof val === "object") {
        if (seen.has(val)) return "[Circular]";
        seen.add(val);
      }
      return val;
    });
  };
  const known = [window.__INITIAL_STATE__, window.__INITIAL_SSR_STATE__, window.__NEXT_DATA__, window.__NUXT__];
  for (const s of known) {
    if (s && typeof s === "object") {
      try { return safe(s); } catch (e) {}
    }
  }
  for (const key of Object.keys(window)) {
    if (!/STATE|DATA|INITIAL/.test(key)) continue;
    const v = window[key];
    if (v && typeof v === "object") {
      try { return safe(v); } catch (e) {}
    }
  }
  return "";
})()`

var errNoState = errors.New("page state is not available")

// pageState reads the page's initial state as raw JSON.
func (s *Service) pageState(ctx context.Context, page browser.Page) (gjson.Result, error) {
	var raw string
	if err := page.Evaluate(ctx, stateScript, &raw); err != nil {
		return gjson.Result{}, err
	}
	if raw == "" || !gjson.Valid(raw) {
		return gjson.Result{}, errNoState
	}
	return gjson.Parse(raw), nil
}

// feedItems reads a list stored behind a reactive ref ({"_value": [...]}),
// accepting a plain array as well.
func feedItems(list gjson.Result) []FeedItem {
	if v := list.Get("_value"); v.Exists() {
		list = v
	}
	items := make([]FeedItem, 0, len(list.Array()))
	list.ForEach(func(_, item gjson.Result) bool {
		card := item.Get("noteCard")
		if !card.Exists() {
			card = item
		}
		interact := card.Get("interactInfo")
		items = append(items, FeedItem{
			ID:        first(item, "id", "noteId"),
			XsecToken: first(item, "xsecToken", "xsec_token"),
			Type:      first(card, "type", "modelType"),
			Title:     first(card, "displayTitle", "title"),
			Cover:     first(card, "cover.urlDefault", "cover.url"),
			User: FeedUser{
				ID:       first(card, "user.userId", "user.id"),
				Nickname: first(card, "user.nickname", "user.nickName"),
				Avatar:   first(card, "user.avatar"),
			},
			Liked:    interact.Get("liked").Bool(),
			Likes:    interact.Get("likedCount").String(),
			Collects: interact.Get("collectedCount").String(),
			Comments: interact.Get("commentCount").String(),
			Shares:   interact.Get("shareCount").String(),
		})
		return true
	})
	return items
}

func first(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// Feeds returns the recommended notes on the home page.
func (s *Service) Feeds(ctx context.Context, execPath string) Result {
	return s.run("feeds", func() (any, string, error) {
		homeURL := s.cfg.XHS().HomeURL
		var data FeedsData
		err := s.withPage(ctx, s.pageOptions(execPath), func(page browser.Page) error {
			if err := s.manager.Navigate(ctx, page, homeURL); err != nil {
				return err
			}
			if err := s.settle(ctx, time.Second); err != nil {
				return err
			}
			if !s.loggedIn(ctx, page) {
				return &NotLoggedInError{Operation: "feeds", URL: homeURL}
			}
			state, err := s.pageState(ctx, page)
			if err != nil {
				return &FeedParsingError{stepErr("read page state", homeURL, err)}
			}
			list := state.Get("feed.feeds")
			if !list.Exists() {
				return &FeedParsingError{stepErr("read feed list", homeURL, errors.New("feed.feeds missing from page state"))}
			}
			feeds := feedItems(list)
			data = FeedsData{Feeds: feeds, Count: len(feeds), URL: homeURL, Source: "home_page"}
			return nil
		})
		if err != nil {
			return nil, "", err
		}
		return data, "Feeds retrieved", nil
	})
}

// Search types keyword into the explore search box and reads the results
// from page state. When the search box is missing the results URL is
// opened directly.
func (s *Service) Search(ctx context.Context, keyword, execPath string) Result {
	return s.run("search", func() (any, string, error) {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			return nil, "", invalid("keyword", "cannot be empty")
		}
		xcfg := s.cfg.XHS()
		var data FeedsData
		err := s.withPage(ctx, s.pageOptions(execPath), func(page browser.Page) error {
			source := "search_box"
			if err := s.searchViaInput(ctx, page, keyword); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Debug("Search box unavailable, opening results URL.", zap.Error(err))
				source = "search_url"
				if err := s.manager.Navigate(ctx, page, SearchURL(xcfg.SearchURL, keyword)); err != nil {
					return err
				}
				if err := s.settle(ctx, time.Second); err != nil {
					return err
				}
			}

			current := s.currentURL(ctx, page)
			state, err := s.pageState(ctx, page)
			if err != nil {
				return &FeedParsingError{stepErr("read page state", current, err)}
			}
			list := state.Get("search.feeds")
			if !list.Exists() {
				return &FeedParsingError{stepErr("read search results", current, errors.New("search.feeds missing from page state"))}
			}
			feeds := feedItems(list)
			data = FeedsData{Keyword: keyword, Feeds: feeds, Count: len(feeds), URL: current, Source: source}
			return nil
		})
		if err != nil {
			return nil, "", err
		}
		return data, "Search completed", nil
	})
}

func (s *Service) searchViaInput(ctx context.Context, page browser.Page, keyword string) error {
	if err := s.manager.Navigate(ctx, page, s.cfg.XHS().ExploreURL); err != nil {
		return err
	}
	if err := s.settle(ctx, time.Second); err != nil {
		return err
	}
	input, _, err := s.engine.ResolveVisible(ctx, page, s.cands(selector.RoleSearchInput))
	if err != nil {
		return err
	}
	if err := s.click(ctx, input); err != nil {
		return err
	}
	if err := input.Clear(ctx); err != nil {
		return err
	}
	if err := input.Type(ctx, keyword); err != nil {
		return err
	}
	if btn, _, rerr := s.engine.Resolve(ctx, page, s.cands(selector.RoleSearchSubmit)); rerr == nil {
		err = s.click(ctx, btn)
	} else {
		err = input.Press(ctx, browser.KeyEnter)
	}
	if err != nil {
		return err
	}
	return s.settle(ctx, 2*time.Second)
}

// NoteDetail opens a note page and returns its entry from the page's
// note detail map.
func (s *Service) NoteDetail(ctx context.Context, feedID, xsecToken, execPath string) Result {
	return s.run("note_detail", func() (any, string, error) {
		if err := requireFeed(feedID, xsecToken); err != nil {
			return nil, "", err
		}
		detailURL := FeedDetailURL(s.cfg.XHS().ExploreURL, feedID, xsecToken)
		var data DetailData
		err := s.withPage(ctx, s.pageOptions(execPath), func(page browser.Page) error {
			if err := s.manager.Navigate(ctx, page, detailURL); err != nil {
				return err
			}
			if err := s.settle(ctx, time.Second); err != nil {
				return err
			}
			state, err := s.pageState(ctx, page)
			if err != nil {
				return &FeedParsingError{stepErr("read page state", detailURL, err)}
			}
			details := state.Get("note.noteDetailMap")
			if !details.IsObject() {
				return &FeedParsingError{stepErr("read note details", detailURL, errors.New("note.noteDetailMap missing from page state"))}
			}
			var detail gjson.Result
			var available []string
			details.ForEach(func(key, value gjson.Result) bool {
				available = append(available, key.String())
				if key.String() == feedID {
					detail = value
				}
				return true
			})
			if !detail.Exists() {
				return &FeedNotFoundError{FeedID: feedID, Available: available}
			}
			m, _ := detail.Value().(map[string]any)
			data = DetailData{FeedID: feedID, Detail: m, URL: detailURL}
			return nil
		})
		if err != nil {
			return nil, "", err
		}
		return data, "Note detail retrieved", nil
	})
}

// Comment posts text under a note. The platform answers immediately, so a
// fixed settle replaces completion polling.
func (s *Service) Comment(ctx context.Context, feedID, xsecToken, text, execPath string) Result {
	return s.run("comment", func() (any, string, error) {
		if err := requireFeed(feedID, xsecToken); err != nil {
			return nil, "", err
		}
		if strings.TrimSpace(text) == "" {
			return nil, "", invalid("text", "comment cannot be empty")
		}
		detailURL := FeedDetailURL(s.cfg.XHS().ExploreURL, feedID, xsecToken)
		err := s.withPage(ctx, s.pageOptions(execPath), func(page browser.Page) error {
			fail := func(step string, err error) error {
				return &CommentError{StepError: stepErr(step, detailURL, err), FeedID: feedID}
			}
			if err := s.manager.Navigate(ctx, page, detailURL); err != nil {
				return err
			}
			if err := s.settle(ctx, time.Second); err != nil {
				return err
			}
			if !s.loggedIn(ctx, page) {
				return &NotLoggedInError{Operation: "comment", URL: detailURL}
			}

			trigger, _, err := s.engine.Wait(ctx, page, s.cands(selector.RoleCommentTrigger), selector.WaitOptions{
				Timeout:  10 * time.Second,
				Interval: 500 * time.Millisecond,
			})
			if err != nil {
				return fail("find comment input", err)
			}
			if err := s.click(ctx, trigger); err != nil {
				return fail("open comment input", err)
			}
			editor, _, err := s.engine.Resolve(ctx, page, s.cands(selector.RoleCommentEditor))
			if err != nil {
				return fail("find comment editor", err)
			}
			if err := editor.Click(ctx); err != nil {
				return fail("type comment", err)
			}
			if err := editor.Type(ctx, text); err != nil {
				return fail("type comment", err)
			}
			if err := s.settle(ctx, time.Second); err != nil {
				return err
			}
			submit, _, err := s.engine.Resolve(ctx, page, s.cands(selector.RoleCommentSubmit))
			if err != nil {
				return fail("find comment submit", err)
			}
			if err := s.click(ctx, submit); err != nil {
				return fail("submit comment", err)
			}
			return s.settle(ctx, 2*time.Second)
		})
		if err != nil {
			return nil, "", err
		}
		return CommentData{FeedID: feedID, Text: text, URL: detailURL}, "Comment submitted", nil
	})
}

func requireFeed(feedID, xsecToken string) error {
	if strings.TrimSpace(feedID) == "" {
		return invalid("feed_id", "is required")
	}
	if strings.TrimSpace(xsecToken) == "" {
		return invalid("xsec_token", "is required")
	}
	return nil
}
