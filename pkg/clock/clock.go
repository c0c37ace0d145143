// Package clock abstrai a hora atual para permitir testes determinísticos.
package clock

import (
	"sync"
	"time"
)

// Clock fornece a hora atual
type Clock interface {
	Now() time.Time
}

// Real usa o relógio do sistema
type Real struct{}

// Now retorna time.Now()
func (Real) Now() time.Time { return time.Now() }

// Fake é um relógio controlado manualmente
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake cria um relógio parado no instante informado
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

// Now retorna o instante atual do relógio
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set posiciona o relógio
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance avança o relógio
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
