// Package browsertest provides an in-memory browser.Driver for tests. Pages
// hold a static map from CSS selector to elements that tests rewrite as the
// scenario progresses.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/cookiestore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Driver hands out prepared pages in order and records every launch.
type Driver struct {
	mu        sync.Mutex
	LaunchErr error
	// OnLaunch, when set, runs at the start of every Launch. Tests block in
	// it to simulate a slow browser start.
	OnLaunch  func(opts browser.LaunchOptions)
	queue     []*Page
	launches  []browser.LaunchOptions
	instances []*Instance
	created   []*Page
	nextID    int
}

// NewDriver returns a driver that serves pages in the given order and
// blank pages once they run out.
func NewDriver(pages ...*Page) *Driver {
	return &Driver{queue: pages}
}

// Queue appends pages to be returned by subsequent NewPage calls.
func (d *Driver) Queue(pages ...*Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, pages...)
}

func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Instance, error) {
	if d.OnLaunch != nil {
		d.OnLaunch(opts)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launches = append(d.launches, opts)
	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	inst := &Instance{driver: d, Options: opts}
	d.instances = append(d.instances, inst)
	return inst, nil
}

// Launches returns the options of every Launch call.
func (d *Driver) Launches() []browser.LaunchOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.LaunchOptions(nil), d.launches...)
}

// Instances returns every launched instance.
func (d *Driver) Instances() []*Instance {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Instance(nil), d.instances...)
}

// Pages returns every page handed out so far.
func (d *Driver) Pages() []*Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Page(nil), d.created...)
}

func (d *Driver) nextPage() *Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	var p *Page
	if len(d.queue) > 0 {
		p = d.queue[0]
		d.queue = d.queue[1:]
	} else {
		p = NewPage()
	}
	d.nextID++
	p.mu.Lock()
	if p.id == "" {
		p.id = fmt.Sprintf("page-%d", d.nextID)
	}
	p.mu.Unlock()
	d.created = append(d.created, p)
	return p
}

// Instance is a fake browser process.
type Instance struct {
	driver  *Driver
	Options browser.LaunchOptions

	mu      sync.Mutex
	closed  int
	pageErr error
}

// FailPages makes every later NewPage on this instance return err, as a
// crashed browser would.
func (i *Instance) FailPages(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pageErr = err
}

func (i *Instance) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.mu.Lock()
	err := i.pageErr
	i.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return i.driver.nextPage(), nil
}

func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed++
	return nil
}

// Closed reports how many times Close was called.
func (i *Instance) Closed() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

type evalRule struct {
	match string
	value any
	err   error
}

// Page is a scripted tab.
type Page struct {
	mu          sync.Mutex
	id          string
	url         string
	elements    map[string][]*Element
	queryErrs   map[string]error
	evals       []evalRule
	cookies     []cookiestore.Cookie
	navigations []string
	closed      int

	// OnNavigate, when set, decides the outcome of every navigation. The
	// default records the URL and reports HTTP 200.
	OnNavigate func(p *Page, url string) (int, error)
}

// NewPage returns an empty page.
func NewPage() *Page {
	return &Page{
		elements:  make(map[string][]*Element),
		queryErrs: make(map[string]error),
	}
}

// Set replaces the elements matched by css.
func (p *Page) Set(css string, elements ...*Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[css] = elements
	return p
}

// Remove makes css match nothing.
func (p *Page) Remove(css string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, css)
	return p
}

// FailQuery makes every query for css return err.
func (p *Page) FailQuery(css string, err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queryErrs[css] = err
	return p
}

// SetURL sets the current location without recording a navigation.
func (p *Page) SetURL(url string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return p
}

// SetEval makes Evaluate return value for any expression containing match.
// Later rules for the same match replace earlier ones.
func (p *Page) SetEval(match string, value any) *Page {
	return p.setEvalRule(evalRule{match: match, value: value})
}

// FailEval makes Evaluate fail for any expression containing match.
func (p *Page) FailEval(match string, err error) *Page {
	return p.setEvalRule(evalRule{match: match, err: err})
}

func (p *Page) setEvalRule(rule evalRule) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.evals {
		if p.evals[i].match == rule.match {
			p.evals[i] = rule
			return p
		}
	}
	p.evals = append(p.evals, rule)
	return p
}

// Navigations returns every URL passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Closed reports how many times Close was called.
func (p *Page) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// StoredCookies returns the cookies currently held by the page.
func (p *Page) StoredCookies() []cookiestore.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]cookiestore.Cookie(nil), p.cookies...)
}

func (p *Page) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

func (p *Page) Navigate(ctx context.Context, url string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		status, err := hook(p, url)
		if err == nil && status < 400 {
			p.SetURL(url)
		}
		return status, err
	}
	p.SetURL(url)
	return 200, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Evaluate(ctx context.Context, expression string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	var rule *evalRule
	for i := range p.evals {
		if strings.Contains(expression, p.evals[i].match) {
			r := p.evals[i]
			rule = &r
			break
		}
	}
	p.mu.Unlock()

	if rule == nil {
		return decodeInto(nil, out)
	}
	if rule.err != nil {
		return rule.err
	}
	return decodeInto(rule.value, out)
}

func decodeInto(value, out any) error {
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (p *Page) QueryAll(ctx context.Context, css string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.queryErrs[css]; err != nil {
		return nil, err
	}
	return toElements(p.elements[css]), nil
}

func (p *Page) Cookies(ctx context.Context) ([]cookiestore.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.StoredCookies(), nil
}

func (p *Page) SetCookies(ctx context.Context, cookies []cookiestore.Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = append(p.cookies, cookies...)
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func toElements(els []*Element) []browser.Element {
	out := make([]browser.Element, 0, len(els))
	for _, e := range els {
		out = append(out, e)
	}
	return out
}

// Element is a scripted DOM node. Its fields record what workflows did to it.
type Element struct {
	mu       sync.Mutex
	text     string
	html     string
	attrs    map[string]string
	visible  bool
	children map[string][]*Element
	err      error

	clicks   int
	cleared  int
	scrolled int
	typed    []string
	pressed  []browser.Key
	files    []string
	events   []string

	// OnClick runs after a click is recorded.
	OnClick func()
}

// NewElement returns a visible element with the given text.
func NewElement(text string) *Element {
	return &Element{
		text:     text,
		attrs:    make(map[string]string),
		visible:  true,
		children: make(map[string][]*Element),
	}
}

// Attr sets an attribute.
func (e *Element) Attr(name, value string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = value
	return e
}

// Hidden marks the element as not visible.
func (e *Element) Hidden() *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visible = false
	return e
}

// SetVisible toggles visibility.
func (e *Element) SetVisible(v bool) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visible = v
	return e
}

// SetText replaces the element's text.
func (e *Element) SetText(text string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
	return e
}

// HTML sets the value returned by OuterHTML.
func (e *Element) HTML(html string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.html = html
	return e
}

// Child registers descendants matched by css within this element.
func (e *Element) Child(css string, children ...*Element) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.children[css] = children
	return e
}

// Detach makes every subsequent operation fail with err, like a node that
// left the document.
func (e *Element) Detach(err error) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
	return e
}

func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

func (e *Element) Cleared() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cleared
}

func (e *Element) Scrolled() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scrolled
}

// Typed returns every Type call's text in order.
func (e *Element) Typed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.typed...)
}

func (e *Element) Pressed() []browser.Key {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]browser.Key(nil), e.pressed...)
}

func (e *Element) Files() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.files...)
}

func (e *Element) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *Element) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.err
}

func (e *Element) QueryAll(ctx context.Context, css string) ([]browser.Element, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	return toElements(e.children[css]), nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return "", err
	}
	return e.text, nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return "", err
	}
	return e.attrs[name], nil
}

func (e *Element) OuterHTML(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return "", err
	}
	if e.html != "" {
		return e.html, nil
	}
	return "<div>" + e.text + "</div>", nil
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return false, err
	}
	return e.visible, nil
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return err
	}
	e.scrolled++
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	if err := e.check(ctx); err != nil {
		e.mu.Unlock()
		return err
	}
	e.clicks++
	hook := e.OnClick
	e.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return err
	}
	e.cleared++
	return nil
}

func (e *Element) Type(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return err
	}
	e.typed = append(e.typed, text)
	return nil
}

func (e *Element) Press(ctx context.Context, key browser.Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return err
	}
	e.pressed = append(e.pressed, key)
	return nil
}

func (e *Element) SetFiles(ctx context.Context, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return err
	}
	e.files = append(e.files, paths...)
	return nil
}

func (e *Element) SetAttribute(ctx context.Context, name, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return err
	}
	e.attrs[name] = value
	return nil
}

func (e *Element) RemoveAttribute(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return err
	}
	delete(e.attrs, name)
	return nil
}

func (e *Element) Dispatch(ctx context.Context, eventType string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return err
	}
	e.events = append(e.events, eventType)
	return nil
}
