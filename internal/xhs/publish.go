// File: internal/xhs/publish.go
package xhs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/completion"
	"github.com/xkilldash9x/xhs-cli/internal/config"
	"github.com/xkilldash9x/xhs-cli/internal/media"
	"github.com/xkilldash9x/xhs-cli/internal/selector"
)

// PublishImageRequest describes an image note. Images may be local paths
// or http(s) URLs.
type PublishImageRequest struct {
	Title    string
	Content  string
	Images   []string
	Tags     []string
	ExecPath string
}

// PublishVideoRequest describes a video note.
type PublishVideoRequest struct {
	Title    string
	Content  string
	Video    string
	Tags     []string
	ExecPath string
}

// ParseTags splits a comma separated list, dropping blanks and leading '#'.
func ParseTags(raw string) []string {
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		t := strings.TrimLeft(strings.TrimSpace(part), "#")
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

type uploadMode int

const (
	imageMode uploadMode = iota
	videoMode
)

// publishFlow holds one page's publish run so each step can report where it failed.
type publishFlow struct {
	s    *Service
	page browser.Page
	pcfg config.PublishConfig
}

func (f *publishFlow) fail(ctx context.Context, step string, err error) error {
	return &PublishError{stepErr(step, f.s.currentURL(ctx, f.page), err)}
}

func (s *Service) validateNote(title, content string) error {
	if err := ValidateTitle(title, s.cfg.Publish().MaxTitleWidth); err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return invalid("content", "cannot be empty")
	}
	return nil
}

// prepareImages validates and resolves image paths before any browser work.
func (s *Service) prepareImages(ctx context.Context, images []string) ([]string, error) {
	max := s.cfg.Publish().MaxImages
	if len(images) == 0 {
		return nil, invalid("images", "at least one image is required")
	}
	if max > 0 && len(images) > max {
		return nil, invalid("images", "maximum %d images allowed, got %d", max, len(images))
	}
	remote := false
	for _, p := range images {
		if media.IsRemote(p) {
			remote = true
			continue
		}
		if err := media.CheckImageFile(p); err != nil {
			return nil, invalid("images", "%v", err)
		}
	}
	if !remote {
		return images, nil
	}
	if s.downloader == nil {
		return nil, invalid("images", "remote images are not supported without a downloader")
	}
	resolved, err := s.downloader.Resolve(ctx, images)
	if err != nil {
		return nil, err
	}
	for _, p := range resolved {
		if err := media.CheckImageFile(p); err != nil {
			return nil, invalid("images", "%v", err)
		}
	}
	return resolved, nil
}

// PublishImage uploads an image note and reports the new note id when it
// can be found.
func (s *Service) PublishImage(ctx context.Context, req PublishImageRequest) Result {
	return s.run("publish_image", func() (any, string, error) {
		if err := s.validateNote(req.Title, req.Content); err != nil {
			return nil, "", &PublishError{StepError{Step: "validate", Err: err}}
		}
		paths, err := s.prepareImages(ctx, req.Images)
		if err != nil {
			return nil, "", &PublishError{StepError{Step: "prepare images", Err: err}}
		}

		publishURL := s.cfg.XHS().CreatorPublishURL
		data := PublishData{Title: req.Title, Content: req.Content, Tags: req.Tags, ImageCount: len(paths), URL: publishURL}

		err = s.withSessionPage(ctx, s.pageOptions(req.ExecPath), func(page browser.Page) error {
			f := &publishFlow{s: s, page: page, pcfg: s.cfg.Publish()}
			if err := s.manager.Navigate(ctx, page, publishURL); err != nil {
				return f.fail(ctx, "open publish page", err)
			}
			if err := s.settle(ctx, f.pcfg.PageSettle); err != nil {
				return err
			}
			if err := f.switchMode(ctx, imageMode); err != nil {
				return err
			}
			if err := f.waitUploadContainer(ctx); err != nil {
				return err
			}
			if err := f.uploadImages(ctx, paths); err != nil {
				return err
			}
			s.logger.Debug("Waiting for images to be processed.", zap.Duration("settle", f.pcfg.ImageUploadSettle))
			if err := s.settle(ctx, f.pcfg.ImageUploadSettle); err != nil {
				return err
			}
			if _, _, err := s.engine.Wait(ctx, page, s.cands(selector.RoleEditorReady), selector.WaitOptions{Timeout: f.pcfg.EditorWait, Interval: time.Second}); err != nil && !selector.IsNotFound(err) {
				return err
			}
			if err := f.fillNote(ctx, req.Title, req.Content, req.Tags); err != nil {
				return err
			}

			outcome, err := s.machine.Await(ctx, page, f.imageCompletion())
			if err != nil {
				return f.fail(ctx, "await publish result", err)
			}
			data.Implicit = outcome.Implicit
			data.NoteID, data.NoteIDSource = f.extractNoteID(ctx, req.ExecPath)
			return s.manager.SaveCookies(ctx, page)
		})
		if err != nil {
			return nil, "", err
		}
		return data, "Note published successfully", nil
	})
}

// PublishVideo uploads a video note. Video processing is awaited before the
// form is filled, then the publish result is awaited after submit.
func (s *Service) PublishVideo(ctx context.Context, req PublishVideoRequest) Result {
	return s.run("publish_video", func() (any, string, error) {
		if err := s.validateNote(req.Title, req.Content); err != nil {
			return nil, "", &PublishError{StepError{Step: "validate", Err: err}}
		}
		if strings.TrimSpace(req.Video) == "" {
			return nil, "", &PublishError{StepError{Step: "validate", Err: invalid("video", "exactly one video file is required")}}
		}
		if err := media.CheckVideoFile(req.Video, s.cfg.Publish().MaxVideoBytes); err != nil {
			return nil, "", &PublishError{StepError{Step: "validate", Err: invalid("video", "%v", err)}}
		}

		videoURL := s.cfg.XHS().CreatorVideoURL
		data := PublishData{Title: req.Title, Content: req.Content, Tags: req.Tags, Video: req.Video, URL: videoURL}

		err := s.withSessionPage(ctx, s.pageOptions(req.ExecPath), func(page browser.Page) error {
			f := &publishFlow{s: s, page: page, pcfg: s.cfg.Publish()}
			if err := s.manager.Navigate(ctx, page, videoURL); err != nil {
				return f.fail(ctx, "open publish page", err)
			}
			if err := s.settle(ctx, f.pcfg.PageSettle); err != nil {
				return err
			}
			if err := f.switchMode(ctx, videoMode); err != nil {
				return err
			}
			if err := f.uploadVideo(ctx, req.Video); err != nil {
				return err
			}
			if err := f.fillNote(ctx, req.Title, req.Content, req.Tags); err != nil {
				return err
			}

			outcome, err := s.machine.Await(ctx, page, f.videoCompletion())
			if err != nil {
				return f.fail(ctx, "await publish result", err)
			}
			data.Implicit = outcome.Implicit
			data.NoteID, data.NoteIDSource = f.extractNoteID(ctx, req.ExecPath)
			return s.manager.SaveCookies(ctx, page)
		})
		if err != nil {
			return nil, "", err
		}
		return data, "Video published successfully", nil
	})
}

// switchMode clicks the upload tab for mode. A missing tab is logged, not
// fatal: the page may already be in the right mode.
func (f *publishFlow) switchMode(ctx context.Context, mode uploadMode) error {
	if err := f.clickTab(ctx, mode); err != nil {
		return err
	}
	if err := f.s.settle(ctx, f.pcfg.TabSettle); err != nil {
		return err
	}
	if mode != imageMode {
		return nil
	}
	// One retry when the page still shows the video uploader.
	if f.s.engine.Exists(ctx, f.page, f.s.cands(selector.RoleVideoModeMarker)) &&
		!f.s.engine.Exists(ctx, f.page, f.s.cands(selector.RoleImageModeMarker)) {
		f.s.logger.Debug("Page still in video mode, clicking the image tab again.")
		if err := f.clickTab(ctx, mode); err != nil {
			return err
		}
		return f.s.settle(ctx, f.pcfg.TabSettle)
	}
	return nil
}

func (f *publishFlow) clickTab(ctx context.Context, mode uploadMode) error {
	role := selector.RoleImageTab
	if mode == videoMode {
		role = selector.RoleVideoTab
	}
	tab, matched, err := f.s.engine.ResolveVisible(ctx, f.page, f.s.cands(role))
	if err != nil && selector.IsNotFound(err) && mode == videoMode {
		// The video uploader is usually the first tab.
		tab, matched, err = f.s.engine.ResolveVisible(ctx, f.page, f.s.cands(selector.RoleAnyTab))
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.s.logger.Warn("Upload tab not found, continuing.", zap.String("role", string(role)), zap.Error(err))
		return nil
	}
	if err := f.s.click(ctx, tab); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.s.logger.Warn("Failed to click upload tab.", zap.String("selector", matched), zap.Error(err))
	}
	return nil
}

func (f *publishFlow) waitUploadContainer(ctx context.Context) error {
	_, _, err := f.s.engine.Wait(ctx, f.page, f.s.cands(selector.RoleUploadContainer), selector.WaitOptions{
		Timeout:  30 * time.Second,
		Interval: time.Second,
	})
	if err != nil {
		return f.fail(ctx, "find upload container", err)
	}
	return nil
}

func (f *publishFlow) fileInput(ctx context.Context) (browser.Element, error) {
	input, matched, err := f.s.engine.Resolve(ctx, f.page, f.s.cands(selector.RoleFileInput))
	if err != nil {
		return nil, f.fail(ctx, "find file input", err)
	}
	f.s.logger.Debug("File input resolved.", zap.String("selector", matched))
	return input, nil
}

func (f *publishFlow) uploadImages(ctx context.Context, paths []string) error {
	input, err := f.fileInput(ctx)
	if err != nil {
		return err
	}
	// The form filters by accept and sometimes drops multi-selects.
	if err := input.SetAttribute(ctx, "multiple", "multiple"); err != nil {
		return f.fail(ctx, "upload images", err)
	}
	if err := input.RemoveAttribute(ctx, "accept"); err != nil {
		return f.fail(ctx, "upload images", err)
	}
	if err := input.SetFiles(ctx, paths); err != nil {
		return f.fail(ctx, "upload images", err)
	}
	if err := input.Dispatch(ctx, "change"); err != nil {
		f.s.logger.Debug("Change event dispatch failed.", zap.Error(err))
	}
	f.s.logger.Info("Images submitted to upload.", zap.Int("count", len(paths)))
	return nil
}

func (f *publishFlow) uploadVideo(ctx context.Context, path string) error {
	input, err := f.fileInput(ctx)
	if err != nil {
		return err
	}
	if err := f.s.settle(ctx, time.Second); err != nil {
		return err
	}
	if err := input.SetFiles(ctx, []string{path}); err != nil {
		return f.fail(ctx, "upload video", err)
	}
	f.s.logger.Info("Video submitted to upload.", zap.String("path", path))
	if err := f.s.settle(ctx, f.pcfg.VideoUploadWait); err != nil {
		return err
	}

	_, err = f.s.machine.Await(ctx, f.page, f.videoProcessing())
	switch {
	case err == nil:
		return nil
	case completion.IsTimeout(err):
		// The publish wait after submit still decides the outcome.
		f.s.logger.Warn("Video processing did not finish in time, continuing.", zap.Error(err))
		return nil
	default:
		return f.fail(ctx, "upload video", err)
	}
}

// fillNote fills title, content and tags, then submits.
func (f *publishFlow) fillNote(ctx context.Context, title, content string, tags []string) error {
	if err := f.s.settle(ctx, f.pcfg.FieldSettle); err != nil {
		return err
	}
	if err := f.fillTitle(ctx, title); err != nil {
		return err
	}
	if err := f.s.settle(ctx, f.pcfg.FieldSettle); err != nil {
		return err
	}
	editor, err := f.fillContent(ctx, content)
	if err != nil {
		return err
	}
	for _, tag := range tags {
		if err := f.addTag(ctx, editor, tag); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.s.logger.Warn("Failed to add tag.", zap.String("tag", tag), zap.Error(err))
		}
	}
	return f.submit(ctx)
}

// firstVisible scrolls each candidate's first match into view and returns
// the first one that is then visible.
func (f *publishFlow) firstVisible(ctx context.Context, cands selector.Candidates, allMatches bool) (browser.Element, string, error) {
	var errs []error
	for _, c := range cands {
		elements, _, err := f.s.engine.ResolveAll(ctx, f.page, selector.Candidates{c})
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		if !allMatches {
			elements = elements[:1]
		}
		for _, el := range elements {
			if err := el.ScrollIntoView(ctx); err != nil {
				continue
			}
			if ok, err := el.Visible(ctx); err == nil && ok {
				return el, c, nil
			}
		}
	}
	return nil, "", &selector.NotFoundError{Candidates: cands, Err: errors.Join(errs...)}
}

func (f *publishFlow) fillTitle(ctx context.Context, title string) error {
	input, matched, err := f.firstVisible(ctx, f.s.cands(selector.RoleTitleInput), false)
	if err != nil && selector.IsNotFound(err) {
		input, matched, err = f.firstVisible(ctx, f.s.cands(selector.RoleTextInputFallback), true)
	}
	if err != nil {
		return f.fail(ctx, "find title input", err)
	}
	if err := input.Click(ctx); err != nil {
		return f.fail(ctx, "fill title", err)
	}
	if err := input.Clear(ctx); err != nil {
		return f.fail(ctx, "fill title", err)
	}
	if err := input.Type(ctx, title); err != nil {
		return f.fail(ctx, "fill title", err)
	}
	f.s.logger.Debug("Title filled.", zap.String("selector", matched))
	return nil
}

func (f *publishFlow) fillContent(ctx context.Context, content string) (browser.Element, error) {
	e := f.s.engine
	editor, matched, err := e.ResolveVisible(ctx, f.page, f.s.cands(selector.RoleContentEditorVisible))
	if err != nil && selector.IsNotFound(err) {
		editor, matched, err = e.Resolve(ctx, f.page, f.s.cands(selector.RoleContentEditor))
	}
	if err != nil && selector.IsNotFound(err) {
		editor, matched, err = e.Resolve(ctx, f.page, f.s.cands(selector.RoleContentPlaceholder))
	}
	if err != nil {
		return nil, f.fail(ctx, "find content editor", err)
	}
	if err := f.s.click(ctx, editor); err != nil {
		return nil, f.fail(ctx, "fill content", err)
	}
	if err := f.s.settle(ctx, 500*time.Millisecond); err != nil {
		return nil, err
	}
	if err := editor.Type(ctx, content); err != nil {
		return nil, f.fail(ctx, "fill content", err)
	}
	f.s.logger.Debug("Content filled.", zap.String("selector", matched))
	return editor, nil
}

// addTag types #tag and picks the first topic suggestion, or ends the tag
// with Enter and Space when no suggestion popup shows up.
func (f *publishFlow) addTag(ctx context.Context, editor browser.Element, tag string) error {
	if err := editor.Type(ctx, "#"+tag); err != nil {
		return err
	}
	if err := f.s.settle(ctx, f.pcfg.TagSettle); err != nil {
		return err
	}

	if popup, _, err := f.s.engine.Resolve(ctx, f.page, f.s.cands(selector.RoleTopicContainer)); err == nil {
		item, _, err := f.s.engine.Resolve(ctx, popup, f.s.cands(selector.RoleTopicItem))
		if err != nil {
			return err
		}
		if err := item.Click(ctx); err != nil {
			return err
		}
		return f.s.settle(ctx, 500*time.Millisecond)
	}

	if err := editor.Press(ctx, browser.KeyEnter); err != nil {
		return err
	}
	if err := f.s.settle(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	if err := editor.Press(ctx, browser.KeySpace); err != nil {
		return err
	}
	return f.s.settle(ctx, 200*time.Millisecond)
}

func (f *publishFlow) submit(ctx context.Context) error {
	button, matched, err := f.s.engine.Resolve(ctx, f.page, f.s.cands(selector.RoleSubmitButton))
	if err != nil {
		return f.fail(ctx, "find submit button", err)
	}
	if err := f.s.click(ctx, button); err != nil {
		return f.fail(ctx, "submit", err)
	}
	f.s.logger.Info("Submitted note.", zap.String("selector", matched))
	return f.s.settle(ctx, f.pcfg.SubmitSettle)
}

func completionTimings(cfg config.CompletionConfig) (time.Duration, time.Duration, time.Duration) {
	return cfg.Timeout, cfg.PollInterval, cfg.BusyInterval
}

func (f *publishFlow) imageCompletion() completion.Config {
	c := f.s.cands
	timeout, poll, busy := completionTimings(f.pcfg.ImageCompletion)
	return completion.Config{
		Name:         "image publish",
		Success:      append(completion.Indicators(c(selector.RolePublishSuccess), false), completion.Indicators(c(selector.RoleToast), true)...),
		Error:        append(completion.Indicators(c(selector.RolePublishError), false), completion.Indicators(c(selector.RoleToast), true)...),
		StillPresent: completion.Indicators(c(selector.RolePublishPage), false),
		Timeout:      timeout,
		PollInterval: poll,
		BusyInterval: busy,
	}
}

func (f *publishFlow) videoProcessing() completion.Config {
	c := f.s.cands
	timeout, poll, busy := completionTimings(f.pcfg.VideoProcessing)
	return completion.Config{
		Name:         "video processing",
		Success:      completion.Indicators(c(selector.RoleVideoUploadComplete), true),
		Error:        completion.Indicators(c(selector.RoleVideoError), true),
		Processing:   completion.Indicators(c(selector.RoleVideoProcessing), true),
		StillPresent: completion.Indicators(c(selector.RoleVideoProcessing), false),
		Timeout:      timeout,
		PollInterval: poll,
		BusyInterval: busy,
	}
}

func (f *publishFlow) videoCompletion() completion.Config {
	c := f.s.cands
	timeout, poll, busy := completionTimings(f.pcfg.VideoCompletion)
	return completion.Config{
		Name:         "video publish",
		Success:      append(completion.Indicators(c(selector.RoleVideoSuccess), true), completion.Indicators(c(selector.RoleToast), true)...),
		Error:        append(completion.Indicators(c(selector.RoleVideoError), true), completion.Indicators(c(selector.RoleToast), true)...),
		Processing:   completion.Indicators(c(selector.RoleVideoProcessing), true),
		StillPresent: completion.Indicators(c(selector.RoleVideoPublishPage), false),
		Timeout:      timeout,
		PollInterval: poll,
		BusyInterval: busy,
	}
}

// Note id sources, in the order they are tried.
const (
	idFromURL       = "url"
	idFromAttribute = "attribute"
	idFromLink      = "link"
	idFromText      = "text"
	idFromNoteList  = "note_list"
)

// extractNoteID never fails the publish; an empty id means every strategy
// came up dry.
func (f *publishFlow) extractNoteID(ctx context.Context, execPath string) (string, string) {
	if id := NoteIDFromURL(f.s.currentURL(ctx, f.page)); id != "" {
		return id, idFromURL
	}
	if id := f.idFromAttributes(ctx); id != "" {
		return id, idFromAttribute
	}
	if links, _, err := f.s.engine.ResolveAll(ctx, f.page, f.s.cands(selector.RoleNoteLink)); err == nil {
		for _, l := range links {
			href, err := l.Attribute(ctx, "href")
			if err != nil {
				continue
			}
			if id := NoteIDFromURL(href); id != "" {
				return id, idFromLink
			}
		}
	}
	var body string
	if err := f.page.Evaluate(ctx, `document.body ? document.body.textContent : ""`, &body); err == nil {
		if id := hexID.FindString(body); id != "" {
			return id, idFromText
		}
	}

	f.s.logger.Debug("Note id not on page, checking the note list.")
	if err := f.s.settle(ctx, f.pcfg.NoteIDSettle); err != nil {
		return "", ""
	}
	var notes []Note
	err := f.s.withPage(ctx, f.s.pageOptions(execPath), func(page browser.Page) error {
		var err error
		notes, err = f.s.collectNotes(ctx, page, "publish")
		return err
	})
	if err != nil {
		f.s.logger.Warn("Fallback note id lookup failed.", zap.Error(err))
		return "", ""
	}
	if len(notes) > 0 {
		return notes[0].ID, idFromNoteList
	}
	return "", ""
}

func (f *publishFlow) idFromAttributes(ctx context.Context) string {
	elements, _, err := f.s.engine.ResolveAll(ctx, f.page, f.s.cands(selector.RoleNoteIDAttribute))
	if err != nil {
		return ""
	}
	for _, el := range elements {
		for _, attr := range []string{"data-note-id", "data-id", "data-impression"} {
			v, err := el.Attribute(ctx, attr)
			if err != nil || len(v) <= 10 {
				continue
			}
			if attr == "data-impression" {
				if id := gjson.Get(v, "noteTarget.value.noteId").String(); id != "" {
					return id
				}
				continue
			}
			return v
		}
	}
	return ""
}
