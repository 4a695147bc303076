package pagedrive

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/drive"
	"github.com/hazyhaar/pagedrive/history"
	"github.com/hazyhaar/pagedrive/internal/config"
	"github.com/hazyhaar/pagedrive/location"
	"github.com/hazyhaar/pagedrive/snapshot"
)

// Visit navigates to rawURL. The first visit of a session is a full load;
// later ones go through the navigator. An empty action means advance.
func (s *Session) Visit(ctx context.Context, rawURL string, action drive.Action) error {
	return s.do(ctx, func() error {
		u, err := s.resolve(rawURL)
		if err != nil {
			return err
		}
		if !s.loaded() || !s.enabled {
			s.platform.Assign(u)
			return nil
		}
		s.nav.ProposeVisit(u, drive.VisitOptions{Action: action})
		return nil
	})
}

// FollowLink clicks the first a[href] matching selector.
func (s *Session) FollowLink(ctx context.Context, selector string) error {
	return s.do(ctx, func() error {
		link := dom.QuerySelector(s.doc.Root, selector)
		if link == nil || link.Data != "a" || !dom.HasAttr(link, "href") {
			return fmt.Errorf("%w: link %q", ErrNoElement, selector)
		}
		u, err := location.Expand(s.doc.URL, dom.Attr(link, "href"))
		if err != nil {
			return fmt.Errorf("pagedrive: link %q: %w", selector, err)
		}
		if !s.linkIsDriven(link) {
			s.platform.Assign(u)
			return nil
		}
		s.nav.ProposeVisit(u, drive.VisitOptions{
			Action:                drive.ActionForElements(link),
			AcceptsStreamResponse: dom.HasAttr(link, dom.AttrStream),
		})
		return nil
	})
}

// SubmitForm fills the form matching formSelector with values and submits
// it, through the control matching submitterSelector when one is given.
func (s *Session) SubmitForm(ctx context.Context, formSelector string, values map[string]string, submitterSelector string) error {
	var submission *drive.FormSubmission
	err := s.do(ctx, func() error {
		form := dom.QuerySelector(s.doc.Root, formSelector)
		if form == nil || form.Data != "form" {
			return fmt.Errorf("%w: form %q", ErrNoElement, formSelector)
		}
		var submitter *html.Node
		if submitterSelector != "" {
			submitter = dom.QuerySelector(form, submitterSelector)
			if submitter == nil {
				return fmt.Errorf("%w: submitter %q", ErrNoElement, submitterSelector)
			}
		}
		if missing := drive.FillForm(form, values); len(missing) > 0 {
			return fmt.Errorf("%w: form fields %s", ErrNoElement, strings.Join(missing, ", "))
		}
		if !s.formIsDriven(form, submitter) {
			s.loader.submit(form, submitter)
			return nil
		}
		s.nav.SubmitForm(form, submitter)
		submission = s.nav.FormSubmission()
		return nil
	})
	if err != nil || submission == nil {
		return err
	}
	var result drive.FormSubmissionResult
	if err := s.loop.Do(ctx, func() { result = submission.Result() }); err != nil {
		return err
	}
	return result.Err
}

// Back moves one entry back in history.
func (s *Session) Back(ctx context.Context) error {
	return s.do(ctx, func() error {
		if !s.stack.Back() {
			return ErrNoHistory
		}
		return nil
	})
}

// Forward moves one entry forward in history.
func (s *Session) Forward(ctx context.Context) error {
	return s.do(ctx, func() error {
		if !s.stack.Forward() {
			return ErrNoHistory
		}
		return nil
	})
}

// ScrollPositionChanged records the host's scroll position for the
// current history entry.
func (s *Session) ScrollPositionChanged(ctx context.Context, pos dom.Position) error {
	return s.do(ctx, func() error {
		s.doc.ScrollTo(pos)
		s.history.UpdateRestorationData(s.ctx, history.RestorationData{ScrollPosition: &pos})
		return nil
	})
}

// ClearCache drops every cached snapshot.
func (s *Session) ClearCache(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.view.ClearSnapshotCache()
		return nil
	})
}

// SetCacheControl sets the cache-control meta of the live page to
// no-cache or no-preview. An empty value removes it.
func (s *Session) SetCacheControl(ctx context.Context, value string) error {
	switch value {
	case "", snapshot.CacheControlNoCache, snapshot.CacheControlNoPreview:
	default:
		return fmt.Errorf("pagedrive: cache control %q: want %s or %s", value, snapshot.CacheControlNoCache, snapshot.CacheControlNoPreview)
	}
	return s.do(ctx, func() error {
		if value == "" {
			s.doc.RemoveMeta(dom.MetaCacheControl)
		} else {
			s.doc.SetMeta(dom.MetaCacheControl, value)
		}
		return nil
	})
}

// RenderStreamMessage applies the drive-stream elements of message to the
// live page.
func (s *Session) RenderStreamMessage(ctx context.Context, message string) error {
	return s.do(ctx, func() error { return s.renderStream(message) })
}

// LoadFrame fetches rawURL and renders its drive-frame with the same id
// into the frame frameID.
func (s *Session) LoadFrame(ctx context.Context, frameID, rawURL string) error {
	var frameErr error
	err := s.do(ctx, func() error {
		u, err := s.resolve(rawURL)
		if err != nil {
			return err
		}
		s.nav.LoadFrame(frameID, u, func(err error) { frameErr = err })
		return nil
	})
	if err != nil {
		return err
	}
	var out error
	if err := s.loop.Do(ctx, func() { out = frameErr }); err != nil {
		return err
	}
	return out
}

// Reload reloads the current location from scratch.
func (s *Session) Reload(ctx context.Context) error {
	return s.do(ctx, func() error {
		if !s.loaded() {
			return nil
		}
		u := s.history.Location
		if u == nil {
			u = s.doc.URL
		}
		s.platform.Reload(u)
		return nil
	})
}

// SetEnabled turns interception on or off. While off, visits are full
// loads and back/forward navigations reload the page.
func (s *Session) SetEnabled(ctx context.Context, enabled bool) error {
	return s.loop.Do(ctx, func() { s.enabled = enabled })
}

// linkIsDriven reports whether a click on link is intercepted. The closest
// data-drive attribute wins; download links and links opening another
// target never are.
func (s *Session) linkIsDriven(link *html.Node) bool {
	if dom.HasAttr(link, "download") {
		return false
	}
	if t := dom.Attr(link, "target"); t != "" && t != "_self" {
		return false
	}
	return s.elementIsNavigatable(link)
}

// formIsDriven applies the forms mode to a submission.
func (s *Session) formIsDriven(form, submitter *html.Node) bool {
	switch s.cfg.Forms.Mode {
	case config.FormModeOff:
		return false
	case config.FormModeOptIn:
		el := form
		if submitter != nil {
			el = submitter
		}
		c := closestWithDriveAttr(el)
		return c != nil && dom.Attr(c, dom.AttrDrive) == "true"
	}
	if submitter != nil && !s.elementIsNavigatable(submitter) {
		return false
	}
	return s.elementIsNavigatable(form)
}

func (s *Session) elementIsNavigatable(el *html.Node) bool {
	if c := closestWithDriveAttr(el); c != nil {
		return dom.Attr(c, dom.AttrDrive) != "false"
	}
	return s.enabled
}

func closestWithDriveAttr(el *html.Node) *html.Node {
	return dom.Closest(el, func(n *html.Node) bool { return dom.HasAttr(n, dom.AttrDrive) })
}
