package session

import "sync"

// Executor runs blocking work off the interaction goroutine.
type Executor interface {
	Go(fn func())
}

// DefaultPoolSize bounds concurrent background checks and opens.
const DefaultPoolSize = 4

// Pool is a bounded goroutine executor. Work beyond the bound waits for a
// free slot; Go itself never blocks.
type Pool struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewPool creates a pool running at most size functions at once.
// A size below one means DefaultPoolSize.
func NewPool(size int) *Pool {
	if size < 1 {
		size = DefaultPoolSize
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Go runs fn on a pool goroutine.
func (p *Pool) Go(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.slots <- struct{}{}
		defer func() { <-p.slots }()
		fn()
	}()
}

// Wait blocks until every submitted function has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
