package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodLauncher abre instâncias de Chrome via go-rod, uma por sessão.
type RodLauncher struct {
	Bin      string
	Headless bool
}

func NewRodLauncher(bin string, headless bool) *RodLauncher {
	return &RodLauncher{Bin: bin, Headless: headless}
}

func (l *RodLauncher) Launch(ctx context.Context, userDataDir string) (Browser, error) {
	launch := launcher.New().Headless(l.Headless).UserDataDir(userDataDir)
	if l.Bin != "" {
		launch = launch.Bin(l.Bin)
	}

	controlURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("erro ao iniciar o Chrome: %v", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("erro ao conectar no Chrome: %v", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("erro ao abrir página: %v", err)
	}

	_ = (proto.EmulationSetDeviceMetricsOverride{
		Width:             1280,
		Height:            900,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page)

	return &rodBrowser{browser: browser, page: &rodPage{page: page}}, nil
}

type rodBrowser struct {
	browser *rod.Browser
	page    *rodPage
}

func (b *rodBrowser) Page() Page { return b.page }

func (b *rodBrowser) Close() error {
	return b.browser.Close()
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	if err := p.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("erro ao navegar para %s: %v", url, err)
	}
	return p.page.Context(ctx).WaitLoad()
}

func (p *rodPage) URL() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) Has(selector string) (bool, error) {
	has, _, err := p.page.Has(selector)
	return has, err
}

func (p *rodPage) WaitElement(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("elemento %s não apareceu em %s: %v", selector, timeout, err)
	}
	return nil
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("elemento não encontrado: %v", err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Input(ctx context.Context, selector, text string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("elemento não encontrado: %v", err)
	}
	return el.Input(text)
}

func (p *rodPage) Attribute(ctx context.Context, selector, name string) (string, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return "", fmt.Errorf("elemento não encontrado: %v", err)
	}
	val, err := el.Attribute(name)
	if err != nil {
		return "", err
	}
	if val == nil {
		return "", nil
	}
	return *val, nil
}

func (p *rodPage) ElementScreenshot(ctx context.Context, selector string) ([]byte, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("elemento não encontrado: %v", err)
	}
	return el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}

// Eval roda o JS na página e desserializa o resultado JSON em out.
// out == nil descarta o retorno.
func (p *rodPage) Eval(ctx context.Context, js string, out interface{}) error {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("erro ao executar script: %v", err)
	}
	if out == nil || res == nil {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("erro ao serializar resultado: %v", err)
	}
	return json.Unmarshal(raw, out)
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
