package browser

import (
	"context"
	"time"
)

// Page é a superfície mínima de automação que os serviços usam para dirigir
// o WhatsApp Web. Os testes substituem por uma implementação falsa.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL() (string, error)
	Has(selector string) (bool, error)
	WaitElement(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	Input(ctx context.Context, selector, text string) error
	Attribute(ctx context.Context, selector, name string) (string, error)
	ElementScreenshot(ctx context.Context, selector string) ([]byte, error)
	Eval(ctx context.Context, js string, out interface{}) error
	Close() error
}

// Browser é uma instância de navegador dedicada a uma sessão.
type Browser interface {
	Page() Page
	Close() error
}

// Launcher abre navegadores. Cada sessão recebe o seu, com perfil próprio
// para que o pareamento sobreviva a reinícios.
type Launcher interface {
	Launch(ctx context.Context, userDataDir string) (Browser, error)
}
