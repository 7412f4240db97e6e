package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/playwright-community/playwright-go"
)

type PlaywrightSession struct {
	config Config

	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	done    chan struct{}
}

func NewPlaywrightSession(ctx context.Context, c Config) (*PlaywrightSession, error) {
	p, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	var browser playwright.Browser
	if c.ChromeDevtoolsProtocolURL == "" {
		browser, err = p.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(c.Headless),
		})
		if err != nil {
			_ = p.Stop()
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
	} else {
		browser, err = p.Chromium.ConnectOverCDP(c.ChromeDevtoolsProtocolURL)
		if err != nil {
			_ = p.Stop()
			return nil, fmt.Errorf("failed to connect to browser via CDP at %s: %w", c.ChromeDevtoolsProtocolURL, err)
		}
	}

	page, err := browser.NewPage()
	if err != nil {
		_ = browser.Close()
		_ = p.Stop()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	if err := page.SetViewportSize(c.ViewportWidth, c.ViewportHeight); err != nil {
		_ = browser.Close()
		_ = p.Stop()
		return nil, fmt.Errorf("failed to set viewport size: %w", err)
	}

	s := &PlaywrightSession{
		config:  c,
		pw:      p,
		browser: browser,
		page:    page,
		done:    make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = page.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

func (s *PlaywrightSession) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.config.Timeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *PlaywrightSession) Evaluate(ctx context.Context, script string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := s.page.Evaluate(script)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate script: %w", err)
	}
	return stringify(v), nil
}

func (s *PlaywrightSession) Screenshot(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
	if err != nil {
		return "", fmt.Errorf("failed to take screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (s *PlaywrightSession) Mask(ctx context.Context, selectors []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	script, err := maskScript()
	if err != nil {
		return err
	}
	if _, err := s.page.Evaluate(script, selectors); err != nil {
		return fmt.Errorf("failed to mask selectors: %w", err)
	}
	return nil
}

func (s *PlaywrightSession) Close() error {
	close(s.done)

	var errs []error
	if err := s.page.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.config.ChromeDevtoolsProtocolURL == "" {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.pw.Stop(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
