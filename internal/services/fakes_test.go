package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"whatsapp-web-bot/internal/browser"
)

// fakePage simula o DOM do WhatsApp Web para os testes dos serviços.
type fakePage struct {
	mu sync.Mutex

	present  map[string]bool
	attrs    map[string]string
	shot     []byte
	shotErr  error
	evalFn   func(js string, out interface{}) error
	url      string
	urlErr   error
	waitErrs map[string]error

	clicks []string
	inputs map[string]string
	navs   []string
	closed bool
}

func newFakePage() *fakePage {
	return &fakePage{
		present:  make(map[string]bool),
		attrs:    make(map[string]string),
		waitErrs: make(map[string]error),
		inputs:   make(map[string]string),
		url:      "https://web.whatsapp.com/",
	}
}

func (p *fakePage) set(selector string, present bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.present[selector] = present
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navs = append(p.navs, url)
	p.url = url
	return nil
}

func (p *fakePage) URL() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, p.urlErr
}

func (p *fakePage) Has(selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present[selector], nil
}

func (p *fakePage) WaitElement(ctx context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErrs[selector]
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)
	return nil
}

func (p *fakePage) Input(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs[selector] = text
	return nil
}

func (p *fakePage) Attribute(ctx context.Context, selector, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attrs[selector+"/"+name], nil
}

func (p *fakePage) ElementScreenshot(ctx context.Context, selector string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shot, p.shotErr
}

func (p *fakePage) Eval(ctx context.Context, js string, out interface{}) error {
	p.mu.Lock()
	fn := p.evalFn
	p.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(js, out)
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// evalJSON ajuda o evalFn dos testes a preencher out com um valor fixo.
func evalJSON(out interface{}, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

type fakeBrowser struct {
	page   *fakePage
	closed bool
}

func (b *fakeBrowser) Page() browser.Page { return b.page }
func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	page     *fakePage
	err      error
	launched []string
}

func (l *fakeLauncher) Launch(ctx context.Context, userDataDir string) (browser.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, userDataDir)
	if l.err != nil {
		return nil, l.err
	}
	return &fakeBrowser{page: l.page}, nil
}

// fakePages implementa PageSource entregando sempre a mesma página.
type fakePages struct {
	page browser.Page
}

func (f *fakePages) Page(sessionID string) browser.Page { return f.page }
