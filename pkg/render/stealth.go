package render

import (
	"context"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Profile describes how a session presents itself to bot detection: extra
// Chrome flags, an init script run before any page script, and the language
// and platform reported by the user-agent override.
type Profile struct {
	Name           string
	Flags          []chromedp.ExecAllocatorOption
	Script         string // empty disables injection
	AcceptLanguage string
	Platform       string
}

// StealthProfile masks the usual headless giveaways.
func StealthProfile() Profile {
	return Profile{
		Name: "stealth",
		Flags: []chromedp.ExecAllocatorOption{
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("enable-automation", false),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("disable-infobars", true),
			chromedp.Flag("disable-default-apps", true),
			chromedp.Flag("disable-background-timer-throttling", true),
			chromedp.Flag("disable-backgrounding-occluded-windows", true),
			chromedp.Flag("disable-renderer-backgrounding", true),
			chromedp.Flag("lang", "en-US,en"),
			chromedp.Flag("accept-lang", "en-US,en;q=0.9"),
		},
		Script:         stealthScript,
		AcceptLanguage: "en-US,en;q=0.9",
		Platform:       "Win32",
	}
}

// BasicProfile is a plain headless browser with only the flags needed to
// run inside containers.
func BasicProfile() Profile {
	return Profile{
		Name: "basic",
		Flags: []chromedp.ExecAllocatorOption{
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		},
		AcceptLanguage: "en-US,en;q=0.9",
	}
}

// ProfileByName returns the named profile, or false if unknown.
func ProfileByName(name string) (Profile, bool) {
	switch name {
	case "", "stealth":
		return StealthProfile(), true
	case "basic":
		return BasicProfile(), true
	default:
		return Profile{}, false
	}
}

// AllocatorOptions builds the exec allocator options for cfg.
func (p Profile) AllocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, len(chromedp.DefaultExecAllocatorOptions)+len(p.Flags)+4)
	opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, p.Flags...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	return opts
}

// Prepare returns the actions run on a fresh tab before the first
// navigation.
func (p Profile) Prepare(cfg Config) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		override := emulation.SetUserAgentOverride(cfg.UserAgent)
		if p.AcceptLanguage != "" {
			override = override.WithAcceptLanguage(p.AcceptLanguage)
		}
		if p.Platform != "" {
			override = override.WithPlatform(p.Platform)
		}
		if err := override.Do(ctx); err != nil {
			return err
		}
		if p.Script != "" {
			if _, err := page.AddScriptToEvaluateOnNewDocument(p.Script).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// stealthScript patches the properties fingerprinting scripts look at first.
const stealthScript = `
(() => {
    'use strict';

    Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
    delete Object.getPrototypeOf(navigator).webdriver;

    const fakePlugins = [
        { name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
        { name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai', description: '' },
        { name: 'Native Client', filename: 'internal-nacl-plugin', description: '' }
    ];
    const plugins = Object.create(PluginArray.prototype);
    fakePlugins.forEach((p, i) => {
        const plugin = Object.create(Plugin.prototype);
        Object.defineProperties(plugin, {
            name: { value: p.name, enumerable: true },
            filename: { value: p.filename, enumerable: true },
            description: { value: p.description, enumerable: true },
            length: { value: 1, enumerable: true }
        });
        plugins[i] = plugin;
        plugins[p.name] = plugin;
    });
    Object.defineProperty(plugins, 'length', { value: fakePlugins.length });
    Object.defineProperty(plugins, 'item', { value: i => plugins[i] || null });
    Object.defineProperty(plugins, 'namedItem', { value: n => plugins[n] || null });
    Object.defineProperty(plugins, 'refresh', { value: () => {} });
    Object.defineProperty(navigator, 'plugins', { get: () => plugins, configurable: true });

    Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'], configurable: true });

    if (!window.chrome) {
        window.chrome = {};
    }
    if (!window.chrome.runtime) {
        window.chrome.runtime = {
            connect: () => ({ onMessage: { addListener: () => {} }, postMessage: () => {}, disconnect: () => {} }),
            sendMessage: () => {},
            id: undefined
        };
    }

    const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
    if (originalQuery) {
        window.navigator.permissions.query = params =>
            params && params.name === 'notifications'
                ? Promise.resolve({ state: Notification.permission })
                : originalQuery.call(window.navigator.permissions, params);
    }

    const patchWebGL = proto => {
        const getParameter = proto.getParameter;
        proto.getParameter = function (param) {
            if (param === 37445) return 'Intel Inc.';
            if (param === 37446) return 'Intel Iris OpenGL Engine';
            return getParameter.call(this, param);
        };
    };
    if (window.WebGLRenderingContext) patchWebGL(WebGLRenderingContext.prototype);
    if (window.WebGL2RenderingContext) patchWebGL(WebGL2RenderingContext.prototype);

    if (!navigator.hardwareConcurrency) {
        Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => 8, configurable: true });
    }
})();
`
