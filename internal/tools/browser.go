package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// isPrivateOrReservedIP blocks the browser-text tool from being used as
// an SSRF pivot against loopback, link-local, private and cloud
// metadata addresses.
func isPrivateOrReservedIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	return ip.Equal(net.ParseIP("169.254.169.254"))
}

func validateBrowseURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("url must have a host")
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("localhost urls are not allowed")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if isPrivateOrReservedIP(ip) {
			return fmt.Errorf("url resolves to a private or reserved address")
		}
	}
	return nil
}

// BrowserPool runs one headless-Chrome allocator and bounds how many
// browser-text calls use it at once.
// Unlike a page-instance pool, the allocator itself is reused: each
// ExtractText call gets its own chromedp.NewContext (and therefore its own
// tab) against the shared allocator, so concurrent callers never share
// browser state.
type BrowserPool struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	sem         chan struct{}
}

// NewBrowserPool starts a headless-Chrome allocator capped at
// maxInstances concurrent pages. execPath overrides the Chrome binary
// chromedp resolves by default; leave empty to use chromedp's lookup.
func NewBrowserPool(maxInstances int, execPath string) *BrowserPool {
	if maxInstances <= 0 {
		maxInstances = 4
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Headless)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &BrowserPool{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		sem:         make(chan struct{}, maxInstances),
	}
}

// Close shuts down the underlying allocator and every tab it owns.
func (p *BrowserPool) Close() {
	p.allocCancel()
}

// ExtractText navigates to targetURL in a fresh tab and returns the
// page's visible text only: no screenshot, no arbitrary JS evaluation.
func (p *BrowserPool) ExtractText(ctx context.Context, targetURL string, timeout time.Duration) (string, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-p.sem }()

	taskCtx, cancel := chromedp.NewContext(p.allocCtx)
	defer cancel()

	if timeout > 0 {
		var timeoutCancel context.CancelFunc
		taskCtx, timeoutCancel = context.WithTimeout(taskCtx, timeout)
		defer timeoutCancel()
	}

	var text string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(targetURL),
		chromedp.Text("body", &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return text, nil
}

// BrowserTextTool is the "browser-text" hosted tool.
type BrowserTextTool struct {
	pool    *BrowserPool
	timeout time.Duration
}

// NewBrowserTextTool wraps pool as the "browser-text" hosted tool.
// timeout bounds a single page load/extraction and should track
// engine.Config.ToolTimeout.
func NewBrowserTextTool(pool *BrowserPool, timeout time.Duration) *BrowserTextTool {
	return &BrowserTextTool{pool: pool, timeout: timeout}
}

func (t *BrowserTextTool) Name() string { return "browser-text" }

func (t *BrowserTextTool) Description() string {
	return "Fetch a URL with a headless browser and return its visible text content."
}

type browserTextArgs struct {
	URL string `json:"url"`
}

type browserTextResult struct {
	Text string `json:"text"`
}

func (t *BrowserTextTool) Execute(ctx context.Context, argsJSON json.RawMessage) (string, bool, error) {
	var args browserTextArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return errorResult(fmt.Errorf("invalid arguments: %w", err))
	}
	if args.URL == "" {
		return errorResult(fmt.Errorf("url is required"))
	}
	if err := validateBrowseURL(args.URL); err != nil {
		return errorResult(err)
	}

	text, err := t.pool.ExtractText(ctx, args.URL, t.timeout)
	if err != nil {
		return errorResult(err)
	}
	return okResult(browserTextResult{Text: text})
}
