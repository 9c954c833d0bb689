// Package smoke loads a deployed dashboard in a headless browser and checks
// that it rendered without fatal banners, broken requests or script errors.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/leapstack-labs/roadlens/internal/dashboard"
)

// Defaults.
const (
	DefaultTimeout      = 2 * time.Minute
	DefaultSettle       = 3 * time.Second
	DefaultMinCards     = 3
	DefaultCardSelector = ".metric-card"
)

// Options configures a smoke run.
type Options struct {
	URL string

	// Heading, when set, must appear in the first h1.
	Heading string

	// Banners are texts whose presence fails the run. Defaults to the
	// catalog and engine failure banners.
	Banners []string

	MinCards     int
	CardSelector string

	Timeout time.Duration
	// Settle is how long to wait after load for the page to finish its
	// asynchronous work.
	Settle time.Duration

	// Screenshot is written as PNG when set.
	Screenshot string

	// ExecPath overrides the browser binary.
	ExecPath string

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Settle < 0 {
		o.Settle = 0
	}
	if o.MinCards <= 0 {
		o.MinCards = DefaultMinCards
	}
	if o.CardSelector == "" {
		o.CardSelector = DefaultCardSelector
	}
	if o.Banners == nil {
		o.Banners = []string{dashboard.MessageCatalog, dashboard.MessageEngine}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// Result is the outcome of a smoke run.
type Result struct {
	URL             string   `json:"url"`
	Heading         string   `json:"heading,omitempty"`
	Cards           int      `json:"cards"`
	Banners         []string `json:"banners,omitempty"`
	ConsoleErrors   []string `json:"console_errors,omitempty"`
	FailedRequests  []string `json:"failed_requests,omitempty"`
	FailedResponses []string `json:"failed_responses,omitempty"`
	Problems        []string `json:"problems,omitempty"`
	Screenshot      string   `json:"screenshot,omitempty"`
}

// Passed reports whether the run found no problems.
func (r *Result) Passed() bool {
	return len(r.Problems) == 0
}

// Run loads opts.URL and evaluates the page. The error is non-nil only when
// the browser could not be driven at all.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.URL == "" {
		return nil, errors.New("smoke requires a URL")
	}
	opts.defaults()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	col := newCollector()
	chromedp.ListenTarget(browserCtx, col.listen)

	var (
		heading string
		text    string
		cards   int
		shot    []byte
	)
	actions := []chromedp.Action{
		network.Enable(),
		cdplog.Enable(),
		chromedp.Navigate(opts.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(opts.Settle),
		chromedp.Evaluate(`(document.querySelector("h1") || {}).textContent || ""`, &heading),
		chromedp.Evaluate(`document.body.innerText`, &text),
		chromedp.Evaluate(fmt.Sprintf(`document.querySelectorAll(%s).length`, strconv.Quote(opts.CardSelector)), &cards),
	}
	if opts.Screenshot != "" {
		actions = append(actions, chromedp.FullScreenshot(&shot, 90))
	}

	opts.Logger.Info("running browser smoke", "url", opts.URL)
	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return nil, fmt.Errorf("failed to drive browser: %w", err)
	}

	res := col.result()
	res.URL = opts.URL
	res.Heading = strings.TrimSpace(heading)
	res.Cards = cards
	for _, b := range opts.Banners {
		if b != "" && strings.Contains(text, b) {
			res.Banners = append(res.Banners, b)
		}
	}

	if opts.Screenshot != "" {
		if err := os.WriteFile(opts.Screenshot, shot, 0o600); err != nil {
			opts.Logger.Warn("failed to write screenshot", "path", opts.Screenshot, "error", err)
		} else {
			res.Screenshot = opts.Screenshot
		}
	}

	evaluate(res, opts)
	opts.Logger.Info("browser smoke finished", "passed", res.Passed(), "cards", res.Cards, "problems", len(res.Problems))
	return res, nil
}

// evaluate fills res.Problems from the collected observations.
func evaluate(res *Result, opts Options) {
	if opts.Heading != "" && !strings.Contains(res.Heading, opts.Heading) {
		res.Problems = append(res.Problems, fmt.Sprintf("unexpected heading %q", res.Heading))
	}
	for _, b := range res.Banners {
		res.Problems = append(res.Problems, "error banner shown: "+b)
	}
	if res.Cards < opts.MinCards {
		res.Problems = append(res.Problems, fmt.Sprintf("expected at least %d metric cards, found %d", opts.MinCards, res.Cards))
	}
	for _, r := range res.FailedRequests {
		res.Problems = append(res.Problems, "request failed: "+r)
	}
	for _, r := range res.FailedResponses {
		res.Problems = append(res.Problems, "error response: "+r)
	}
	for _, c := range res.ConsoleErrors {
		res.Problems = append(res.Problems, "console error: "+c)
	}
}

// collector accumulates browser events. Handlers run on the chromedp
// event goroutine.
type collector struct {
	mu        sync.Mutex
	urls      map[network.RequestID]string
	console   []string
	failed    []string
	responses []string
}

func newCollector() *collector {
	return &collector{urls: make(map[network.RequestID]string)}
}

func (c *collector) listen(ev any) {
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		if ev.Type != runtime.APITypeError && ev.Type != runtime.APITypeWarning {
			return
		}
		parts := make([]string, 0, len(ev.Args))
		for _, a := range ev.Args {
			parts = append(parts, remoteText(a))
		}
		c.consoleMessage(strings.Join(parts, " "))
	case *runtime.EventExceptionThrown:
		if ev.ExceptionDetails != nil {
			c.consoleMessage(ev.ExceptionDetails.Error())
		}
	case *cdplog.EventEntryAdded:
		if ev.Entry != nil && ev.Entry.Level == cdplog.LevelError {
			c.consoleMessage(ev.Entry.Text)
		}
	case *network.EventRequestWillBeSent:
		if ev.Request != nil {
			c.mu.Lock()
			c.urls[ev.RequestID] = ev.Request.URL
			c.mu.Unlock()
		}
	case *network.EventLoadingFailed:
		c.mu.Lock()
		url := c.urls[ev.RequestID]
		c.mu.Unlock()
		c.requestFailed(url, ev.ErrorText, ev.Canceled)
	case *network.EventResponseReceived:
		if ev.Response != nil {
			c.response(ev.Response.URL, int(ev.Response.Status))
		}
	}
}

func remoteText(o *runtime.RemoteObject) string {
	if o == nil {
		return ""
	}
	if raw := string(o.Value); raw != "" {
		if s, err := strconv.Unquote(raw); err == nil {
			return s
		}
		return raw
	}
	return o.Description
}

// ignorable reports console noise from candidate probing, which expects
// some paths to 404.
func ignorable(text string) bool {
	return strings.Contains(text, "404") || strings.Contains(text, "Failed to load resource")
}

func (c *collector) consoleMessage(text string) {
	text = strings.TrimSpace(text)
	if text == "" || ignorable(text) {
		return
	}
	c.mu.Lock()
	c.console = append(c.console, text)
	c.mu.Unlock()
}

func (c *collector) requestFailed(url, reason string, canceled bool) {
	if canceled {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	c.mu.Lock()
	c.failed = append(c.failed, fmt.Sprintf("%s (%s)", url, reason))
	c.mu.Unlock()
}

// response records error statuses other than 404.
func (c *collector) response(url string, status int) {
	if status < 400 || status == 404 {
		return
	}
	c.mu.Lock()
	c.responses = append(c.responses, fmt.Sprintf("%s -> %d", url, status))
	c.mu.Unlock()
}

func (c *collector) result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Result{
		ConsoleErrors:   append([]string(nil), c.console...),
		FailedRequests:  append([]string(nil), c.failed...),
		FailedResponses: append([]string(nil), c.responses...),
	}
}
