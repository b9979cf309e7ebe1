package pageagent

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/kango/dom"
	"github.com/hazyhaar/kango/hops"
	"github.com/hazyhaar/kango/locator"
)

const (
	overlayClass = "hop-modal"
	stylesID     = "hop-modal-styles"

	titleInputID   = "kango-hop-title"
	addButtonID    = "kango-add-hop"
	cancelButtonID = "kango-cancel-hop"

	titleMaxRunes   = 50
	previewMaxRunes = 100
)

const overlayCSS = `.hop-modal .overlay{position:fixed;inset:0;background:rgba(0,0,0,.4);display:flex;align-items:center;justify-content:center;z-index:2147483647}
.hop-modal .content{background:#fff;border-radius:8px;padding:16px;width:360px;font:14px system-ui,sans-serif}
.hop-modal .hop-preview{color:#555;max-height:6em;overflow:hidden}
.hop-modal .colors{display:flex;gap:6px;margin:8px 0}
.hop-modal .color-option{width:22px;height:22px;border-radius:50%;cursor:pointer}
.hop-modal .color-option.selected{outline:2px solid #111}
.hop-modal .buttons{display:flex;justify-content:flex-end;gap:8px}`

// OverlayView is a snapshot of the open create-hop overlay. The node
// fields are the live elements, usable as event targets.
type OverlayView struct {
	Root         *html.Node
	Backdrop     *html.Node
	TitleInput   *html.Node
	AddButton    *html.Node
	CancelButton *html.Node
	ColorOptions []*html.Node

	Title     string
	Color     string
	Preview   string
	CanSubmit bool
}

// overlay is the open create-hop form. It is owned by the agent loop.
type overlay struct {
	a *Agent

	root, backdrop, form, input, addBtn, cancelBtn *html.Node
	options                                        []*html.Node

	title   string
	color   string
	preview string

	release     []func()
	disposeOnce sync.Once
}

// Overlay returns a snapshot of the open overlay, if any.
func (a *Agent) Overlay() (OverlayView, bool) {
	var (
		v  OverlayView
		ok bool
	)
	if err := a.do(a.ctx, func() {
		o := a.overlay
		if o == nil {
			return
		}
		ok = true
		v = OverlayView{
			Root:         o.root,
			Backdrop:     o.backdrop,
			TitleInput:   o.input,
			AddButton:    o.addBtn,
			CancelButton: o.cancelBtn,
			ColorOptions: slices.Clone(o.options),
			Title:        o.title,
			Color:        o.color,
			Preview:      o.preview,
			CanSubmit:    strings.TrimSpace(o.title) != "",
		}
	}); err != nil {
		return OverlayView{}, false
	}
	return v, ok
}

// showModal opens the overlay for the captured element. The request is
// dropped when there is no captured element, it has no text, or no locator
// can address it. An open overlay is replaced.
func (a *Agent) showModal(selectedText string) bool {
	el := a.clicked
	if el == nil || !a.doc.Contains(el) {
		a.logger.Debug("pageagent: overlay refused", "reason", "no captured element")
		return false
	}
	text := strings.TrimSpace(a.doc.TextContent(el))
	if text == "" {
		a.logger.Debug("pageagent: overlay refused", "reason", "element has no text")
		return false
	}
	var ok bool
	a.doc.Read(func(*html.Node) { _, ok = locator.ComputeSkipping(el, agentNode) })
	if !ok {
		a.logger.Debug("pageagent: overlay refused", "reason", "no locator")
		return false
	}

	if a.overlay != nil {
		a.overlay.dispose()
	}

	o := a.buildOverlay(a.prefill(selectedText, text), a.excerpt(el, text))
	a.ensureStyles()
	if err := a.doc.AppendChild(a.doc.Body(), o.root); err != nil {
		a.logger.Warn("pageagent: attach overlay", "error", err)
		return false
	}
	o.listen()
	a.overlay = o
	return true
}

// prefill derives the title suggestion: the selection, else the element
// text, stripped of markup and cut to titleMaxRunes.
func (a *Agent) prefill(selectedText, elementText string) string {
	src := selectedText
	if src == "" {
		src = elementText
	}
	clean := html.UnescapeString(a.sanitizer.Sanitize(src))
	clean = strings.Join(strings.Fields(clean), " ")
	return truncate(clean, titleMaxRunes, "")
}

// excerpt renders el as markdown for the preview line, falling back to its
// plain text.
func (a *Agent) excerpt(el *html.Node, text string) string {
	var buf bytes.Buffer
	var rerr error
	a.doc.Read(func(*html.Node) { rerr = html.Render(&buf, el) })
	out := text
	if rerr == nil {
		if md, err := a.markdown.ConvertString(buf.String()); err == nil && strings.TrimSpace(md) != "" {
			out = strings.TrimSpace(md)
		}
	}
	return truncate(out, previewMaxRunes, "...")
}

func truncate(s string, n int, ellipsis string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + ellipsis
}

func (a *Agent) ensureStyles() {
	if a.doc.ElementByID(stylesID) != nil {
		return
	}
	var head *html.Node
	a.doc.Read(func(root *html.Node) {
		if hs := locator.ElementsByTag(root, "head"); len(hs) > 0 {
			head = hs[0]
		}
	})
	style := dom.NewElement("style", "id", stylesID)
	style.AppendChild(dom.NewText(overlayCSS))
	if err := a.doc.AppendChild(head, style); err != nil {
		a.logger.Debug("pageagent: overlay styles not attached", "error", err)
	}
}

func (a *Agent) buildOverlay(title, preview string) *overlay {
	o := &overlay{a: a, title: title, color: hops.Palette[0], preview: preview}

	o.root = dom.NewElement("div", "class", overlayClass)
	o.backdrop = dom.NewElement("div", "class", "overlay")
	o.form = dom.NewElement("form", "class", "content")

	heading := dom.NewElement("h3")
	heading.AppendChild(dom.NewText("Add hop"))
	prev := dom.NewElement("p", "class", "hop-preview")
	prev.AppendChild(dom.NewText(preview))

	label := dom.NewElement("label", "for", titleInputID)
	label.AppendChild(dom.NewText("Title"))
	o.input = dom.NewElement("input", "id", titleInputID, "type", "text", "value", title, "autofocus", "")

	colors := dom.NewElement("div", "class", "colors")
	for i, c := range hops.Palette {
		class := "color-option"
		if i == 0 {
			class += " selected"
		}
		opt := dom.NewElement("div", "class", class, "data-color", c, "style", "background-color: "+c+";")
		o.options = append(o.options, opt)
		colors.AppendChild(opt)
	}

	buttons := dom.NewElement("div", "class", "buttons")
	o.cancelBtn = dom.NewElement("button", "id", cancelButtonID, "type", "button")
	o.cancelBtn.AppendChild(dom.NewText("Cancel"))
	o.addBtn = dom.NewElement("button", "id", addButtonID, "type", "button")
	if strings.TrimSpace(title) == "" {
		o.addBtn.Attr = append(o.addBtn.Attr, html.Attribute{Key: "disabled"})
	}
	o.addBtn.AppendChild(dom.NewText("Add"))
	buttons.AppendChild(o.cancelBtn)
	buttons.AppendChild(o.addBtn)

	for _, n := range []*html.Node{heading, prev, label, o.input, colors, buttons} {
		o.form.AppendChild(n)
	}
	o.backdrop.AppendChild(o.form)
	o.root.AppendChild(o.backdrop)
	return o
}

// listen registers the overlay's listeners. They are released together by
// dispose.
func (o *overlay) listen() {
	a, d := o.a, o.a.doc
	o.release = []func(){
		d.AddEventListener(dom.EventClick, func(ev dom.Event) {
			t := ev.Target
			a.post(func() { o.onClick(t) })
		}),
		d.AddEventListener(dom.EventInput, func(ev dom.Event) {
			if ev.Target != o.input {
				return
			}
			v := ev.Value
			a.post(func() { o.onInput(v) })
		}),
		d.AddEventListener(dom.EventKeyDown, func(ev dom.Event) {
			if ev.Key == "Escape" {
				a.post(o.dispose)
			}
		}),
		// Enter in the title field submits the form.
		d.AddEventListener(dom.EventSubmit, func(ev dom.Event) {
			if ev.Target != o.form && ev.Target != o.input {
				return
			}
			a.post(func() {
				if o.live() {
					o.submit()
				}
			})
		}),
	}
}

func (o *overlay) live() bool { return o.a.overlay == o }

func (o *overlay) onClick(t *html.Node) {
	if !o.live() || t == nil {
		return
	}
	switch t {
	case o.backdrop, o.cancelBtn:
		o.dispose()
		return
	case o.addBtn:
		o.submit()
		return
	}
	for _, opt := range o.options {
		if t == opt {
			o.selectColor(opt)
			return
		}
	}
}

func (o *overlay) onInput(v string) {
	if !o.live() {
		return
	}
	o.title = v
	d := o.a.doc
	d.SetAttr(o.input, "value", v)
	if strings.TrimSpace(v) == "" {
		d.SetAttr(o.addBtn, "disabled", "")
	} else {
		d.RemoveAttr(o.addBtn, "disabled")
	}
}

func (o *overlay) selectColor(opt *html.Node) {
	d := o.a.doc
	for _, cur := range o.options {
		class := "color-option"
		if cur == opt {
			class += " selected"
		}
		d.SetAttr(cur, "class", class)
	}
	o.color = dom.Attr(opt, "data-color")
}

func (o *overlay) submit() {
	if strings.TrimSpace(o.title) == "" {
		return
	}
	a := o.a
	if _, err := a.createHop(a.ctx, o.title, o.color); err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			a.logger.Debug("pageagent: hop refused", "error", err)
		} else {
			a.logger.Warn("pageagent: hop not saved", "error", err)
		}
		return
	}
	o.dispose()
}

// dispose releases every listener and detaches the overlay. It runs at
// most once per overlay.
func (o *overlay) dispose() {
	o.disposeOnce.Do(func() {
		for _, r := range o.release {
			r()
		}
		o.release = nil
		if err := o.a.doc.Remove(o.root); err != nil && !errors.Is(err, dom.ErrDetached) {
			o.a.logger.Debug("pageagent: detach overlay", "error", err)
		}
		if o.a.overlay == o {
			o.a.overlay = nil
		}
	})
}
