package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type RodSession struct {
	config  Config
	browser *rod.Browser
	page    *rod.Page
}

func NewRodSession(ctx context.Context, c Config) (*RodSession, error) {
	controlURL := c.ChromeDevtoolsProtocolURL
	if controlURL == "" {
		l := launcher.New().
			Context(ctx).
			Headless(c.Headless).
			Set("no-sandbox").
			Set("disable-gpu")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch Chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  c.ViewportWidth,
		Height: c.ViewportHeight,
	}); err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to set viewport size: %w", err)
	}

	return &RodSession{
		config:  c,
		browser: browser,
		page:    page,
	}, nil
}

func (s *RodSession) Open(ctx context.Context, url string) error {
	page := s.page.Context(ctx).Timeout(s.config.Timeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for %s: %w", url, err)
	}
	return nil
}

func (s *RodSession) Evaluate(ctx context.Context, script string) (string, error) {
	result, err := s.page.Context(ctx).Eval(fmt.Sprintf("() => (%s)", script))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate script: %w", err)
	}
	return stringify(result.Value.Val()), nil
}

func (s *RodSession) Screenshot(ctx context.Context) (string, error) {
	data, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("failed to take screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (s *RodSession) Mask(ctx context.Context, selectors []string) error {
	script, err := maskScript()
	if err != nil {
		return err
	}
	if _, err := s.page.Context(ctx).Eval(script, selectors); err != nil {
		return fmt.Errorf("failed to mask selectors: %w", err)
	}
	return nil
}

func (s *RodSession) Close() error {
	var errs []error
	if err := s.page.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.config.ChromeDevtoolsProtocolURL == "" {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
