package pagedrive

import (
	"context"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/pagedrive/dom"
)

// Format selects how Page renders the body.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatNone     Format = "none"
)

// Page is a view of the live document.
type Page struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Busy     bool   `json:"busy,omitempty"`
	Markdown string `json:"markdown,omitempty"`
	HTML     string `json:"html,omitempty"`
}

var (
	sanitizer   = bluemonday.UGCPolicy()
	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

// Page returns the current location and title, plus the body in format.
func (s *Session) Page(ctx context.Context, format Format) (*Page, error) {
	var (
		p        Page
		bodyHTML string
		domain   string
	)
	err := s.loop.Do(ctx, func() {
		p.URL = s.doc.URL.String()
		p.Title = s.doc.Title()
		p.Busy = dom.HasAttr(s.doc.DocumentElement(), dom.AttrBusy)
		switch format {
		case FormatHTML:
			p.HTML = s.doc.HTML()
		case FormatNone:
		default:
			bodyHTML = dom.OuterHTML(s.doc.Body())
			if s.loaded() {
				domain = s.doc.URL.Scheme + "://" + s.doc.URL.Host
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if bodyHTML != "" {
		md, err := toMarkdown(bodyHTML, domain)
		if err != nil {
			return nil, err
		}
		p.Markdown = md
	}
	return &p, nil
}

// HTML serializes the live document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	p, err := s.Page(ctx, FormatHTML)
	if err != nil {
		return "", err
	}
	return p.HTML, nil
}

// Markdown renders the sanitized body as markdown.
func (s *Session) Markdown(ctx context.Context) (string, error) {
	p, err := s.Page(ctx, FormatMarkdown)
	if err != nil {
		return "", err
	}
	return p.Markdown, nil
}

// Title returns the document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	p, err := s.Page(ctx, FormatNone)
	if err != nil {
		return "", err
	}
	return p.Title, nil
}

// Location returns the document URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	p, err := s.Page(ctx, FormatNone)
	if err != nil {
		return "", err
	}
	return p.URL, nil
}

func toMarkdown(bodyHTML, domain string) (string, error) {
	clean := sanitizer.Sanitize(bodyHTML)
	var (
		md  string
		err error
	)
	if domain != "" {
		md, err = mdConverter.ConvertString(clean, converter.WithDomain(domain))
	} else {
		md, err = mdConverter.ConvertString(clean)
	}
	if err != nil {
		return "", fmt.Errorf("pagedrive: markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}
