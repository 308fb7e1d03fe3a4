// File: internal/browser/chromedp.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/browser/stealth"
	"github.com/xkilldash9x/xhs-cli/internal/cookiestore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ChromeDriver launches Chrome or Chromium through the DevTools protocol.
type ChromeDriver struct {
	logger  *zap.Logger
	persona stealth.Persona
}

// NewChromeDriver returns the production driver. Every tab it opens gets the
// persona's stealth overrides before its first navigation.
func NewChromeDriver(logger *zap.Logger, persona stealth.Persona) *ChromeDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeDriver{logger: logger.Named("chromedp"), persona: persona}
}

// launchFlags returns the command line switches for opts, keyed without
// the leading dashes. Extra args win over the built-in switches.
func launchFlags(opts LaunchOptions) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":               opts.Headless,
		"enable-automation":      false,
		"disable-blink-features": "AutomationControlled",
		"lang":                   "zh-CN",
		"window-size":            "1440,900",
	}
	if opts.UserDataDir != "" {
		flags["user-data-dir"] = opts.UserDataDir
	}
	if opts.UserAgent != "" {
		flags["user-agent"] = opts.UserAgent
	}
	for _, arg := range opts.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, found := strings.Cut(arg, "="); found {
			flags[key] = value
		} else {
			flags[arg] = true
		}
	}
	return flags
}

// allocatorOptions builds the exec allocator options for opts.
func allocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range launchFlags(opts) {
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	return allocOpts
}

// Launch starts a browser process. The process outlives ctx; it ends when
// the returned instance is closed.
func (d *ChromeDriver) Launch(ctx context.Context, opts LaunchOptions) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.logger.Sugar().Debugf),
		chromedp.WithErrorf(d.logger.Sugar().Debugf),
	)

	// The first Run starts the process and binds it to browserCtx.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, &LaunchError{ExecPath: opts.ExecPath, Err: err}
	}

	persona := d.persona.WithUserAgent(opts.UserAgent)
	d.logger.Debug("Browser process started.", zap.Bool("headless", opts.Headless))
	return &chromeInstance{
		logger:        d.logger,
		persona:       persona,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

type chromeInstance struct {
	logger        *zap.Logger
	persona       stealth.Persona
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
	closeErr      error
}

func (i *chromeInstance) NewPage(ctx context.Context) (Page, error) {
	if err := i.browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("browser is closed: %w", err)
	}
	tabCtx, tabCancel := chromedp.NewContext(i.browserCtx)

	// The first Run creates the target; its context must be tabCtx itself.
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(tabCtx, stealth.Apply(i.persona, i.logger)) }()
	select {
	case err := <-errc:
		if err != nil {
			tabCancel()
			return nil, fmt.Errorf("failed to prepare tab: %w", err)
		}
	case <-ctx.Done():
		tabCancel()
		return nil, ctx.Err()
	}

	return &chromePage{id: uuid.NewString(), ctx: tabCtx, cancel: tabCancel}, nil
}

func (i *chromeInstance) Close() error {
	i.closeOnce.Do(func() {
		if err := chromedp.Cancel(i.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
			i.closeErr = err
		}
		i.browserCancel()
		i.allocCancel()
	})
	return i.closeErr
}

type chromePage struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// run executes actions on the tab, bounded by the caller's ctx.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	c, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	err := chromedp.Run(c, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromePage) ID() string { return p.id }

func (p *chromePage) Navigate(ctx context.Context, url string) (int, error) {
	c, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	resp, err := chromedp.RunResponse(c, chromedp.Navigate(url))
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}
	if resp == nil {
		return 0, nil
	}
	return int(resp.Status), nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (p *chromePage) Evaluate(ctx context.Context, expression string, out any) error {
	var raw string
	script := fmt.Sprintf("JSON.stringify((() => (%s))() ?? null)", expression)
	if err := p.run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

func (p *chromePage) QueryAll(ctx context.Context, css string) ([]Element, error) {
	return queryAll(ctx, p, css, nil)
}

func (p *chromePage) Cookies(ctx context.Context) ([]cookiestore.Cookie, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, err
	}

	out := make([]cookiestore.Cookie, 0, len(cookies))
	for _, c := range cookies {
		expires := c.Expires
		if c.Session {
			expires = -1
		}
		out = append(out, cookiestore.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return out, nil
}

func (p *chromePage) SetCookies(ctx context.Context, cookies []cookiestore.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			sec := int64(c.Expires)
			nsec := int64((c.Expires - float64(sec)) * float64(time.Second))
			expires := cdp.TimeSinceEpoch(time.Unix(sec, nsec))
			param.Expires = &expires
		}
		if c.SameSite != "" {
			param.SameSite = network.CookieSameSite(c.SameSite)
		}
		params = append(params, param)
	}
	return p.run(ctx, network.SetCookies(params))
}

func (p *chromePage) Close() error {
	p.closeOnce.Do(func() {
		if err := chromedp.Cancel(p.ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.closeErr = err
		}
		p.cancel()
	})
	return p.closeErr
}

func queryAll(ctx context.Context, p *chromePage, css string, parent *cdp.Node) ([]Element, error) {
	var nodes []*cdp.Node
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if parent != nil {
		opts = append(opts, chromedp.FromNode(parent))
	}
	if err := p.run(ctx, chromedp.Nodes(css, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("query %q: %w", css, err)
	}
	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &chromeElement{page: p, node: n})
	}
	return elements, nil
}

type chromeElement struct {
	page *chromePage
	node *cdp.Node
}

// call runs a function declaration with the element bound to this.
func (e *chromeElement) call(ctx context.Context, fn string, res any, args ...any) error {
	return e.page.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(e.node.BackendNodeID).Do(c)
		if err != nil {
			return fmt.Errorf("resolve node: %w", err)
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(c) }()
		return chromedp.CallFunctionOn(fn, res, onObject(obj.ObjectID), args...).Do(c)
	}))
}

// onObject binds a CallFunctionOn invocation to a remote object so it runs
// with the object as this.
func onObject(id runtime.RemoteObjectID) chromedp.CallOption {
	return func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
		return p.WithObjectID(id)
	}
}

func (e *chromeElement) QueryAll(ctx context.Context, css string) ([]Element, error) {
	return queryAll(ctx, e.page, css, e.node)
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.call(ctx, `function() { return this.innerText || this.textContent || ""; }`, &text)
	return text, err
}

func (e *chromeElement) Attribute(ctx context.Context, name string) (string, error) {
	var value string
	err := e.call(ctx, `function(name) { return this.getAttribute(name) || ""; }`, &value, name)
	return value, err
}

func (e *chromeElement) OuterHTML(ctx context.Context) (string, error) {
	var html string
	err := e.call(ctx, `function() { return this.outerHTML; }`, &html)
	return html, err
}

const visibleFn = `function() {
	const rect = this.getBoundingClientRect();
	if (rect.width === 0 || rect.height === 0) return false;
	const style = window.getComputedStyle(this);
	if (style.visibility === "hidden" || style.display === "none" || style.opacity === "0") return false;
	const vw = window.innerWidth || document.documentElement.clientWidth;
	const vh = window.innerHeight || document.documentElement.clientHeight;
	return rect.bottom > 0 && rect.right > 0 && rect.top < vh && rect.left < vw;
}`

func (e *chromeElement) Visible(ctx context.Context) (bool, error) {
	var visible bool
	err := e.call(ctx, visibleFn, &visible)
	return visible, err
}

func (e *chromeElement) ScrollIntoView(ctx context.Context) error {
	var ok bool
	return e.call(ctx, `function() { this.scrollIntoView({block: "center", inline: "center"}); return true; }`, &ok)
}

func (e *chromeElement) Click(ctx context.Context) error {
	err := e.page.run(ctx, chromedp.MouseClickNode(e.node))
	if err == nil || ctx.Err() != nil {
		return err
	}
	// Nodes without a box model (zero size, covered) still take a DOM click.
	var ok bool
	if jsErr := e.call(ctx, `function() { this.click(); return true; }`, &ok); jsErr != nil {
		return errors.Join(err, jsErr)
	}
	return nil
}

func (e *chromeElement) Clear(ctx context.Context) error {
	var ok bool
	return e.call(ctx, `function() {
	this.focus();
	if (this.isContentEditable) {
		this.innerHTML = "";
	} else if ("value" in this) {
		this.value = "";
	}
	this.dispatchEvent(new Event("input", {bubbles: true}));
	return true;
}`, &ok)
}

func (e *chromeElement) Type(ctx context.Context, text string) error {
	return e.page.run(ctx,
		dom.Focus().WithNodeID(e.node.NodeID),
		input.InsertText(text),
	)
}

func (e *chromeElement) Press(ctx context.Context, key Key) error {
	var keys string
	switch key {
	case KeyEnter:
		keys = kb.Enter
	case KeySpace:
		keys = " "
	case KeyBackspace:
		keys = kb.Backspace
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
	return e.page.run(ctx, chromedp.KeyEventNode(e.node, keys))
}

func (e *chromeElement) SetFiles(ctx context.Context, paths []string) error {
	return e.page.run(ctx, dom.SetFileInputFiles(paths).WithNodeID(e.node.NodeID))
}

func (e *chromeElement) SetAttribute(ctx context.Context, name, value string) error {
	return e.page.run(ctx, dom.SetAttributeValue(e.node.NodeID, name, value))
}

func (e *chromeElement) RemoveAttribute(ctx context.Context, name string) error {
	return e.page.run(ctx, dom.RemoveAttribute(e.node.NodeID, name))
}

func (e *chromeElement) Dispatch(ctx context.Context, eventType string) error {
	var ok bool
	return e.call(ctx, `function(type) { this.dispatchEvent(new Event(type, {bubbles: true})); return true; }`, &ok, eventType)
}
