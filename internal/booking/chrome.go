package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

const DefaultPortalURL = "https://rbtransport.com.au/"

var (
	loginLinkXPaths = []string{
		`//a[contains(text(), 'LOGIN')]`,
		`//button[contains(text(), 'LOGIN')]`,
		`//a[contains(@class, 'login')]`,
		`//button[contains(@class, 'login')]`,
		`//a[contains(@href, 'login')]`,
	}
	usernameSelectors    = []string{`input[name="username"]`, `input[name="email"]`, `input[type="email"]`, `#username`, `#email`}
	passwordSelectors    = []string{`input[name="password"]`, `input[type="password"]`, `#password`}
	loginSubmitSelectors = []string{
		`input[type="submit"]`,
		`button[type="submit"]`,
		`button[class*="login"]`,
		`input[value*="Login"]`,
		`button[value*="Login"]`,
	}
	bookingLinkXPaths = []string{
		`//a[contains(text(), 'BOOKING REQUEST')]`,
		`//a[contains(text(), 'Booking Request')]`,
		`//a[contains(text(), 'booking')]`,
		`//button[contains(text(), 'BOOKING')]`,
		`//a[contains(@href, 'booking')]`,
	}
	successMarkers = []string{"success", "submitted", "thank", "confirmation", "received", "response has been recorded"}
)

type ChromeOptions struct {
	PortalURL string
	Username  string
	Password  string
	TestMode  bool
	// ExecPath is optional; chromedp looks Chrome up on PATH when empty.
	ExecPath    string
	Sender      Sender
	LookupWait  time.Duration
	SettleDelay time.Duration
}

// ChromeBooker drives the transport portal in headless Chrome.
type ChromeBooker struct {
	opts   ChromeOptions
	logger *slog.Logger
	now    func() time.Time
}

func NewChromeBooker(opts ChromeOptions, logger *slog.Logger) *ChromeBooker {
	if opts.PortalURL == "" {
		opts.PortalURL = DefaultPortalURL
	}
	if opts.LookupWait <= 0 {
		opts.LookupWait = 5 * time.Second
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeBooker{opts: opts, logger: logger, now: time.Now}
}

func (b *ChromeBooker) SubmitBooking(ctx context.Context, snap Snapshot) (bool, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	log := b.logger.With("order_number", snap.OrderNumber, "test_mode", b.opts.TestMode)

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(b.opts.PortalURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.opts.SettleDelay),
	); err != nil {
		return false, fmt.Errorf("open portal: %w", err)
	}

	ok, err := b.login(browserCtx, log)
	if err != nil || !ok {
		return ok, err
	}

	if link := b.first(browserCtx, bookingLinkXPaths, chromedp.BySearch); link != nil {
		if err := chromedp.Run(browserCtx, chromedp.MouseClickNode(link), chromedp.Sleep(b.opts.SettleDelay)); err != nil {
			return false, fmt.Errorf("open booking form: %w", err)
		}
	} else {
		log.Warn("booking link not found, assuming form is already open")
	}

	form := BuildForm(snap, b.opts.Sender, b.opts.TestMode, b.now())
	if err := b.fill(browserCtx, log, form); err != nil {
		return false, err
	}

	var page string
	if err := chromedp.Run(browserCtx,
		chromedp.Click("#gform_submit_button_1", chromedp.ByID, chromedp.NodeVisible),
		chromedp.Sleep(b.opts.SettleDelay),
		chromedp.Evaluate(`document.documentElement.outerHTML.toLowerCase()`, &page),
	); err != nil {
		return false, fmt.Errorf("submit booking form: %w", err)
	}

	if !containsAny(page, successMarkers...) {
		// The portal redirects without a message on some submissions.
		log.Warn("booking submitted without a success marker")
	}
	return true, nil
}

func (b *ChromeBooker) login(ctx context.Context, log *slog.Logger) (bool, error) {
	link := b.first(ctx, loginLinkXPaths, chromedp.BySearch)
	if link == nil {
		log.Warn("login link not found")
		return false, nil
	}
	if err := chromedp.Run(ctx, chromedp.MouseClickNode(link), chromedp.Sleep(b.opts.SettleDelay)); err != nil {
		return false, fmt.Errorf("open login: %w", err)
	}

	user := b.first(ctx, usernameSelectors, chromedp.ByQuery)
	pass := b.first(ctx, passwordSelectors, chromedp.ByQuery)
	submit := b.first(ctx, loginSubmitSelectors, chromedp.ByQuery)
	switch {
	case user == nil:
		log.Warn("username field not found")
		return false, nil
	case pass == nil:
		log.Warn("password field not found")
		return false, nil
	case submit == nil:
		log.Warn("login submit not found")
		return false, nil
	}

	if err := chromedp.Run(ctx,
		chromedp.Clear([]cdp.NodeID{user.NodeID}, chromedp.ByNodeID),
		chromedp.SendKeys([]cdp.NodeID{user.NodeID}, b.opts.Username, chromedp.ByNodeID),
		chromedp.Clear([]cdp.NodeID{pass.NodeID}, chromedp.ByNodeID),
		chromedp.SendKeys([]cdp.NodeID{pass.NodeID}, b.opts.Password, chromedp.ByNodeID),
		chromedp.MouseClickNode(submit),
		chromedp.Sleep(b.opts.SettleDelay),
	); err != nil {
		return false, fmt.Errorf("submit login: %w", err)
	}
	return true, nil
}

// first returns the first selector's node that exists within the lookup
// wait, or nil.
func (b *ChromeBooker) first(ctx context.Context, selectors []string, by chromedp.QueryOption) *cdp.Node {
	for _, sel := range selectors {
		lookupCtx, cancel := context.WithTimeout(ctx, b.opts.LookupWait)
		var nodes []*cdp.Node
		err := chromedp.Run(lookupCtx, chromedp.Nodes(sel, &nodes, by))
		cancel()
		if err == nil && len(nodes) > 0 {
			return nodes[0]
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

const setFieldJS = `(function(name, value) {
	const el = document.getElementsByName(name)[0];
	if (!el) { return false; }
	el.focus();
	el.value = value;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
})(%s, %s)`

const selectOptionJS = `(function(name, wanted) {
	const el = document.getElementsByName(name)[0];
	if (!el || !el.options) { return ""; }
	const opts = Array.from(el.options);
	let pick = opts.find(o => wanted.includes(o.text.trim()));
	if (!pick && opts.length > 1) { pick = opts[1]; }
	if (!pick) { return ""; }
	el.value = pick.value;
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return pick.text;
})(%s, %s)`

const checkJS = `(function(name) {
	const el = document.getElementsByName(name)[0];
	if (!el) { return false; }
	if (!el.checked) { el.click(); }
	return true;
})(%s)`

func jsArgs(format string, args ...any) (string, error) {
	encoded := make([]any, 0, len(args))
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return "", err
		}
		encoded = append(encoded, string(raw))
	}
	return fmt.Sprintf(format, encoded...), nil
}

func (b *ChromeBooker) fill(ctx context.Context, log *slog.Logger, form Form) error {
	waitCtx, cancel := context.WithTimeout(ctx, 2*b.opts.LookupWait)
	err := chromedp.Run(waitCtx, chromedp.WaitReady(`[name="input_2"]`, chromedp.ByQuery))
	cancel()
	if err != nil {
		return fmt.Errorf("booking form not found: %w", err)
	}

	values := append([]Field{{"input_2", form.Date}, {"input_5", form.JobName}}, form.Fields...)
	for _, f := range values {
		script, err := jsArgs(setFieldJS, f.Name, f.Value)
		if err != nil {
			return err
		}
		var found bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &found)); err != nil {
			return fmt.Errorf("fill %s: %w", f.Name, err)
		}
		if !found {
			log.Warn("booking field missing", "field", f.Name)
		}
	}

	script, err := jsArgs(selectOptionJS, "input_35", form.TypeOptions)
	if err != nil {
		return err
	}
	var picked string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &picked)); err != nil {
		return fmt.Errorf("select delivery type: %w", err)
	}
	if picked == "" {
		log.Warn("delivery type not selected")
	}

	for _, name := range form.Checkboxes {
		script, err := jsArgs(checkJS, name)
		if err != nil {
			return err
		}
		var found bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &found)); err != nil {
			return fmt.Errorf("check %s: %w", name, err)
		}
		if !found {
			log.Warn("booking checkbox missing", "field", name)
		}
	}
	return nil
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
