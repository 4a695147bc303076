package drive

import (
	"bytes"
	"mime/multipart"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
)

// Enctype is a form encoding.
type Enctype string

const (
	EnctypeURLEncoded Enctype = "application/x-www-form-urlencoded"
	EnctypeMultipart  Enctype = "multipart/form-data"
	EnctypePlain      Enctype = "text/plain"
)

// ParseEnctype maps an enctype attribute; anything unknown is urlencoded.
func ParseEnctype(s string) Enctype {
	switch Enctype(strings.ToLower(strings.TrimSpace(s))) {
	case EnctypeMultipart:
		return EnctypeMultipart
	case EnctypePlain:
		return EnctypePlain
	}
	return EnctypeURLEncoded
}

// FormField is one name/value entry of a form data set.
type FormField struct {
	Name  string
	Value string
}

// FormData is an ordered form data set.
type FormData []FormField

// Get returns the first value for name.
func (d FormData) Get(name string) (string, bool) {
	for _, f := range d {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Values converts the set to url.Values.
func (d FormData) Values() url.Values {
	v := url.Values{}
	for _, f := range d {
		v.Add(f.Name, f.Value)
	}
	return v
}

// URLEncode serializes the set as application/x-www-form-urlencoded,
// keeping field order.
func (d FormData) URLEncode() string {
	var b strings.Builder
	for i, f := range d {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	return b.String()
}

// Encode serializes the set as a request body for enctype.
func (d FormData) Encode(enctype Enctype) (body []byte, contentType string, err error) {
	switch enctype {
	case EnctypeMultipart:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, f := range d {
			if err := w.WriteField(f.Name, f.Value); err != nil {
				return nil, "", err
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), w.FormDataContentType(), nil
	case EnctypePlain:
		var b strings.Builder
		for _, f := range d {
			b.WriteString(f.Name)
			b.WriteByte('=')
			b.WriteString(f.Value)
			b.WriteString("\r\n")
		}
		return []byte(b.String()), string(EnctypePlain), nil
	default:
		return []byte(d.URLEncode()), string(EnctypeURLEncoded), nil
	}
}

// BuildFormData collects the successful controls of form plus the
// submitter's own name and value.
func BuildFormData(form, submitter *html.Node) FormData {
	var data FormData
	dom.Walk(form, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n == form {
			return true
		}
		name := dom.Attr(n, "name")
		if name == "" || dom.HasAttr(n, "disabled") || inDisabledFieldset(n, form) {
			return true
		}
		switch n.Data {
		case "input":
			data = appendInput(data, n, name)
		case "select":
			data = appendSelect(data, n, name)
		case "textarea":
			data = append(data, FormField{Name: name, Value: dom.TextContent(n)})
		}
		return true
	})
	if submitter != nil {
		if name := dom.Attr(submitter, "name"); name != "" {
			data = append(data, FormField{Name: name, Value: dom.Attr(submitter, "value")})
		}
	}
	return data
}

func appendInput(data FormData, n *html.Node, name string) FormData {
	switch strings.ToLower(dom.Attr(n, "type")) {
	case "submit", "button", "reset", "image", "file":
		return data
	case "checkbox", "radio":
		if !dom.HasAttr(n, "checked") {
			return data
		}
		return append(data, FormField{Name: name, Value: optionOrOn(n)})
	default:
		return append(data, FormField{Name: name, Value: dom.Attr(n, "value")})
	}
}

func appendSelect(data FormData, sel *html.Node, name string) FormData {
	options := dom.FindAll(sel, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "option"
	})
	selected := false
	for _, opt := range options {
		if dom.HasAttr(opt, "selected") && !dom.HasAttr(opt, "disabled") {
			data = append(data, FormField{Name: name, Value: optionValue(opt)})
			selected = true
		}
	}
	if !selected && !dom.HasAttr(sel, "multiple") && len(options) > 0 {
		data = append(data, FormField{Name: name, Value: optionValue(options[0])})
	}
	return data
}

func optionValue(opt *html.Node) string {
	if dom.HasAttr(opt, "value") {
		return dom.Attr(opt, "value")
	}
	return strings.TrimSpace(dom.TextContent(opt))
}

func inDisabledFieldset(n, form *html.Node) bool {
	for p := n.Parent; p != nil && p != form; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "fieldset" && dom.HasAttr(p, "disabled") {
			return true
		}
	}
	return false
}

// FillForm sets control values by name the way a user typing into the form
// would. Checkboxes and radios are checked when their value is listed.
// It returns the names that matched no control.
func FillForm(form *html.Node, values map[string]string) []string {
	matched := make(map[string]bool, len(values))
	dom.Walk(form, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		name := dom.Attr(n, "name")
		value, ok := values[name]
		if name == "" || !ok {
			return true
		}
		switch n.Data {
		case "input":
			switch strings.ToLower(dom.Attr(n, "type")) {
			case "checkbox", "radio":
				if optionOrOn(n) == value {
					dom.SetAttr(n, "checked", "")
				} else {
					dom.RemoveAttr(n, "checked")
				}
			default:
				dom.SetAttr(n, "value", value)
			}
		case "textarea":
			dom.RemoveChildren(n)
			dom.Append(n, &html.Node{Type: html.TextNode, Data: value})
		case "select":
			for _, opt := range dom.FindAll(n, func(o *html.Node) bool { return o.Type == html.ElementNode && o.Data == "option" }) {
				if optionValue(opt) == value {
					dom.SetAttr(opt, "selected", "")
				} else {
					dom.RemoveAttr(opt, "selected")
				}
			}
		default:
			return true
		}
		matched[name] = true
		return true
	})
	var missing []string
	for name := range values {
		if !matched[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func optionOrOn(n *html.Node) string {
	if dom.HasAttr(n, "value") {
		return dom.Attr(n, "value")
	}
	return "on"
}
