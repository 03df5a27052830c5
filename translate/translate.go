// Package translate renders user-visible text in the host locale.
package translate

import (
	"log"
	"sync"

	"github.com/jeandeaual/go-locale"

	"golang.org/x/text/message"
)

var (
	printerOnce sync.Once
	printerMu   sync.RWMutex
	printer     *message.Printer
)

// hostPrinter selects a printer from the host locales, falling back to en-US.
func hostPrinter() *message.Printer {
	locales, err := locale.GetLocales()
	if err != nil {
		log.Printf("goosea: locale: %v", err)
	}

	if len(locales) == 0 {
		locales = []string{"en-US"}
	}

	return message.NewPrinter(message.MatchLanguage(locales...))
}

func current() *message.Printer {
	printerOnce.Do(func() {
		printerMu.Lock()
		if printer == nil {
			printer = hostPrinter()
		}
		printerMu.Unlock()
	})

	printerMu.RLock()
	defer printerMu.RUnlock()
	return printer
}

// SetLanguage overrides the host locale. An empty list restores it.
func SetLanguage(languages ...string) {
	var p *message.Printer
	if len(languages) == 0 {
		p = hostPrinter()
	} else {
		p = message.NewPrinter(message.MatchLanguage(languages...))
	}

	printerOnce.Do(func() {})

	printerMu.Lock()
	printer = p
	printerMu.Unlock()
}

// From an en-US Sprintf() format, translate to string.
func From(key message.Reference, args ...any) string {
	return current().Sprintf(key, args...)
}
