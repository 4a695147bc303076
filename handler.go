package pagedrive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/drive"
	"github.com/hazyhaar/pagedrive/shield"
)

// Handler returns the HTTP control API of the session.
//
//	GET    /page?format=markdown|html|none
//	POST   /visit      {"url": "...", "action": "advance"}
//	POST   /follow     {"selector": "a#next"}
//	POST   /submit     {"form": "form#login", "values": {...}, "submitter": "button"}
//	POST   /back, /forward, /reload
//	POST   /frames/{id} {"url": "..."}
//	POST   /stream     text/vnd.drive-stream.html body
//	PUT    /cache-control {"value": "no-preview"}
//	POST   /scroll     {"x": 0, "y": 120}
//	DELETE /cache
func (s *Session) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	for _, mw := range shield.APIStack(s.logger, s.cfg.Fetch.MaxBody) {
		r.Use(mw)
	}

	r.Get("/page", func(w http.ResponseWriter, req *http.Request) {
		s.respondPage(w, req, nil)
	})
	r.Post("/visit", func(w http.ResponseWriter, req *http.Request) {
		var body visitRequest
		if !decodeBody(w, req, &body) {
			return
		}
		action := drive.Advance
		if body.Action != "" {
			a, ok := drive.ParseAction(body.Action)
			if !ok || a == drive.Restore {
				http.Error(w, "action must be advance or replace", http.StatusBadRequest)
				return
			}
			action = a
		}
		s.respondPage(w, req, s.Visit(req.Context(), body.URL, action))
	})
	r.Post("/follow", func(w http.ResponseWriter, req *http.Request) {
		var body followRequest
		if !decodeBody(w, req, &body) {
			return
		}
		s.respondPage(w, req, s.FollowLink(req.Context(), body.Selector))
	})
	r.Post("/submit", func(w http.ResponseWriter, req *http.Request) {
		var body submitRequest
		if !decodeBody(w, req, &body) {
			return
		}
		s.respondPage(w, req, s.SubmitForm(req.Context(), body.Form, body.Values, body.Submitter))
	})
	r.Post("/back", s.simple(s.Back))
	r.Post("/forward", s.simple(s.Forward))
	r.Post("/reload", s.simple(s.Reload))
	r.Post("/frames/{id}", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			URL string `json:"url"`
		}
		if !decodeBody(w, req, &body) {
			return
		}
		s.respondPage(w, req, s.LoadFrame(req.Context(), chi.URLParam(req, "id"), body.URL))
	})
	r.Post("/stream", func(w http.ResponseWriter, req *http.Request) {
		msg, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondPage(w, req, s.RenderStreamMessage(req.Context(), string(msg)))
	})
	r.Put("/cache-control", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Value string `json:"value"`
		}
		if !decodeBody(w, req, &body) {
			return
		}
		s.respondPage(w, req, s.SetCacheControl(req.Context(), body.Value))
	})
	r.Post("/scroll", func(w http.ResponseWriter, req *http.Request) {
		var pos dom.Position
		if !decodeBody(w, req, &pos) {
			return
		}
		s.respondPage(w, req, s.ScrollPositionChanged(req.Context(), pos))
	})
	r.Delete("/cache", s.simple(s.ClearCache))
	return r
}

func (s *Session) simple(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		s.respondPage(w, req, fn(req.Context()))
	}
}

// respondPage writes the page after an intent, or the intent's error.
func (s *Session) respondPage(w http.ResponseWriter, req *http.Request, intentErr error) {
	if intentErr != nil {
		shield.Logger(req.Context()).Warn("pagedrive: http intent failed", "error", intentErr)
		http.Error(w, intentErr.Error(), statusForError(intentErr))
		return
	}
	format := Format(req.URL.Query().Get("format"))
	if format == "" {
		format = FormatMarkdown
	}
	page, err := s.Page(req.Context(), format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrNoElement):
		return http.StatusNotFound
	case errors.Is(err, ErrNoHistory):
		return http.StatusConflict
	case errors.Is(err, ErrNotHTML), errors.Is(err, drive.ErrFrameMissing), errors.Is(err, drive.ErrMustRedirect):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadRequest
}

func decodeBody(w http.ResponseWriter, req *http.Request, v any) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
