// File: internal/xhs/delete.go
package xhs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/selector"
)

// DeleteNote removes the note with noteID from the creator note manager.
// A note that is not on the page fails with code not_found and nothing is
// clicked.
func (s *Service) DeleteNote(ctx context.Context, noteID, execPath string) Result {
	return s.run("delete_note", func() (any, string, error) {
		noteID = strings.TrimSpace(noteID)
		if noteID == "" {
			return nil, "", &DeleteError{StepError: StepError{Step: "validate", Err: invalid("note_id", "is required")}}
		}
		data, err := s.deleteWhere(ctx, execPath, "delete_note", func(id string, _ int) bool { return id == noteID })
		if err != nil {
			var de *DeleteError
			if errors.As(err, &de) && de.NoteID == "" {
				de.NoteID = noteID
			}
			return nil, "", err
		}
		return data, fmt.Sprintf("Deleted note %q (%s)", data.Title, data.NoteID), nil
	})
}

// DeleteLastNote removes the newest note, the first card in the manager.
func (s *Service) DeleteLastNote(ctx context.Context, execPath string) Result {
	return s.run("delete_last_note", func() (any, string, error) {
		data, err := s.deleteWhere(ctx, execPath, "delete_last_note", func(_ string, i int) bool { return i == 0 })
		if err != nil {
			return nil, "", err
		}
		return data, fmt.Sprintf("Deleted last published note %q (%s)", data.Title, data.NoteID), nil
	})
}

type noteCard struct {
	el    browser.Element
	id    string
	title string
}

func (s *Service) deleteWhere(ctx context.Context, execPath, op string, match func(id string, index int) bool) (DeleteData, error) {
	var data DeleteData
	err := s.withPage(ctx, s.pageOptions(execPath), func(page browser.Page) error {
		fail := func(step, id string, err error) error {
			return &DeleteError{StepError: stepErr(step, s.currentURL(ctx, page), err), NoteID: id}
		}
		if err := s.manager.Navigate(ctx, page, s.cfg.XHS().NoteManagerURL); err != nil {
			return err
		}
		if err := s.settle(ctx, 5*time.Second); err != nil {
			return err
		}
		if err := s.requireCreatorSession(ctx, page, op); err != nil {
			return err
		}

		card, err := s.findCard(ctx, page, match)
		if err != nil {
			return fail("find note", "", err)
		}
		logger := s.logger.With(zap.String("note_id", card.id))
		logger.Info("Deleting note.", zap.String("title", card.title))

		if err := s.clickDelete(ctx, page, card.el); err != nil {
			return fail("find delete control", card.id, err)
		}
		if err := s.settle(ctx, 2*time.Second); err != nil {
			return err
		}

		confirmed, err := s.confirmDelete(ctx, page)
		if err != nil {
			return fail("confirm delete", card.id, err)
		}
		if !confirmed {
			logger.Debug("No confirmation dialog, delete was immediate.")
		}

		data = DeleteData{NoteID: card.id, Title: card.title, Confirmed: confirmed, DeletedAt: s.clock.Now()}
		return nil
	})
	return data, err
}

// findCard returns the first card match accepts. Cards without a readable
// id are skipped and do not count towards the index.
func (s *Service) findCard(ctx context.Context, page browser.Page, match func(id string, index int) bool) (noteCard, error) {
	cards, _, err := s.engine.ResolveAll(ctx, page, s.cands(selector.RoleDeleteCard))
	if err != nil {
		if selector.IsNotFound(err) && ctx.Err() == nil {
			return noteCard{}, fmt.Errorf("no note cards on page: %w", ErrNoteNotFound)
		}
		return noteCard{}, err
	}
	home := s.cfg.XHS().HomeURL
	index := 0
	for _, el := range cards {
		html, err := el.OuterHTML(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return noteCard{}, ctx.Err()
			}
			continue
		}
		note, ok := parseNoteCard(html, home)
		if !ok {
			continue
		}
		if match(note.ID, index) {
			return noteCard{el: el, id: note.ID, title: note.Title}, nil
		}
		index++
	}
	return noteCard{}, ErrNoteNotFound
}

// clickDelete uses the card's own delete control, else opens its overflow
// menu and picks the delete item there.
func (s *Service) clickDelete(ctx context.Context, page browser.Page, card browser.Element) error {
	if btn, matched, err := s.engine.Resolve(ctx, card, s.cands(selector.RoleDeleteButton)); err == nil {
		s.logger.Debug("Direct delete control found.", zap.String("selector", matched))
		return s.click(ctx, btn)
	} else if ctx.Err() != nil {
		return ctx.Err()
	}

	more, _, err := s.engine.Resolve(ctx, card, s.cands(selector.RoleMoreOptions))
	if err != nil {
		return err
	}
	if err := s.click(ctx, more); err != nil {
		return err
	}
	if err := s.settle(ctx, time.Second); err != nil {
		return err
	}
	menu, _, err := s.engine.Resolve(ctx, page, s.cands(selector.RoleDropdownMenu))
	if err != nil {
		return err
	}
	item, matched, err := s.engine.ResolveVisible(ctx, menu, s.cands(selector.RoleDeleteButton))
	if err != nil {
		return err
	}
	s.logger.Debug("Delete item found in overflow menu.", zap.String("selector", matched))
	return s.click(ctx, item)
}

// confirmDelete clicks the confirm button when a dialog is showing. It
// reports false when there was no dialog.
func (s *Service) confirmDelete(ctx context.Context, page browser.Page) (bool, error) {
	btn, _, err := s.engine.Resolve(ctx, page, s.cands(selector.RoleConfirmButton))
	if err != nil && selector.IsNotFound(err) {
		btn, _, err = s.engine.Resolve(ctx, page, s.cands(selector.RoleModalConfirm))
	}
	if err != nil {
		if selector.IsNotFound(err) && ctx.Err() == nil {
			return false, nil
		}
		return false, err
	}
	if err := s.click(ctx, btn); err != nil {
		return false, err
	}
	return true, s.settle(ctx, 2*time.Second)
}
