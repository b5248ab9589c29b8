package sso

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// DefaultFieldWait bounds how long SetField waits for a form field.
const DefaultFieldWait = 10 * time.Second

// ChromeLauncher starts Chrome through the DevTools protocol.
type ChromeLauncher struct {
	Headless bool
	// ExecPath overrides Chrome discovery when set.
	ExecPath string
	// FieldWait overrides DefaultFieldWait when positive.
	FieldWait time.Duration
}

func (l ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	fieldWait := l.FieldWait
	if fieldWait <= 0 {
		fieldWait = DefaultFieldWait
	}
	return &chromeBrowser{ctx: browserCtx, cancelBrowser: cancelBrowser, cancelAlloc: cancelAlloc, fieldWait: fieldWait}, nil
}

type chromeBrowser struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	fieldWait     time.Duration
}

// run executes actions on the browser tab, stopping early when ctx ends.
func (b *chromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (b *chromeBrowser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, chromedp.Navigate(url))
}

func (b *chromeBrowser) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := b.run(ctx, chromedp.Location(&u))
	return u, err
}

func (b *chromeBrowser) PageSource(ctx context.Context) (string, error) {
	var html string
	err := b.run(ctx, chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ""`, &html))
	return html, err
}

func (b *chromeBrowser) Evaluate(ctx context.Context, script string) error {
	return b.run(ctx, chromedp.Evaluate(script, nil))
}

// SetField waits at most the launcher's field wait for selector to appear.
func (b *chromeBrowser) SetField(ctx context.Context, selector, value string) error {
	waitCtx, cancel := context.WithTimeout(ctx, b.fieldWait)
	defer cancel()
	if err := b.run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("field %s not found after %s", selector, b.fieldWait)
		}
		return err
	}
	return b.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

// Click uses a DOM click so hidden or overlaid submit buttons still fire.
func (b *chromeBrowser) Click(ctx context.Context, selector string) error {
	var clicked bool
	script := fmt.Sprintf(`(function() {
  var el = document.querySelector(%q);
  if (!el) { return false; }
  el.click();
  return true;
})()`, selector)
	if err := b.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("no element matches %s", selector)
	}
	return nil
}

func (b *chromeBrowser) Cookies(ctx context.Context) ([]Cookie, error) {
	var out []Cookie
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			out = append(out, Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain})
		}
		return nil
	}))
	return out, err
}

func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancelBrowser()
	b.cancelAlloc()
	return err
}
