// File: internal/browser/driver.go
package browser

import (
	"context"

	"github.com/xkilldash9x/xhs-cli/internal/cookiestore"
)

// Key names a non-printable key for Element.Press.
type Key string

const (
	KeyEnter     Key = "Enter"
	KeySpace     Key = "Space"
	KeyBackspace Key = "Backspace"
)

// LaunchOptions describe one browser process.
type LaunchOptions struct {
	Headless    bool
	ExecPath    string
	UserDataDir string
	UserAgent   string
	Args        []string
}

// Driver starts browser processes. The chromedp implementation is the
// production driver; browsertest provides a scripted one.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Instance, error)
}

// Instance is a running browser process that can open tabs.
type Instance interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Scope is anything elements can be queried from: a whole page or a
// single element's subtree.
type Scope interface {
	QueryAll(ctx context.Context, css string) ([]Element, error)
}

// Page is one browser tab.
type Page interface {
	Scope
	ID() string
	// Navigate loads url and returns the main document's HTTP status, or 0
	// when the driver cannot tell.
	Navigate(ctx context.Context, url string) (int, error)
	URL(ctx context.Context) (string, error)
	// Evaluate runs a script expression and decodes its JSON result into out.
	Evaluate(ctx context.Context, expression string, out any) error
	Cookies(ctx context.Context) ([]cookiestore.Cookie, error)
	SetCookies(ctx context.Context, cookies []cookiestore.Cookie) error
	Close() error
}

// Element is a handle to a DOM node inside a Page.
type Element interface {
	Scope
	Text(ctx context.Context) (string, error)
	// Attribute returns "" when the attribute is absent.
	Attribute(ctx context.Context, name string) (string, error)
	OuterHTML(ctx context.Context) (string, error)
	// Visible reports whether the element is rendered and intersects the viewport.
	Visible(ctx context.Context) (bool, error)
	ScrollIntoView(ctx context.Context) error
	Click(ctx context.Context) error
	// Clear empties an input, textarea or contenteditable and focuses it.
	Clear(ctx context.Context) error
	Type(ctx context.Context, text string) error
	Press(ctx context.Context, key Key) error
	SetFiles(ctx context.Context, paths []string) error
	SetAttribute(ctx context.Context, name, value string) error
	RemoveAttribute(ctx context.Context, name string) error
	// Dispatch fires a bubbling DOM event of the given type.
	Dispatch(ctx context.Context, eventType string) error
}
