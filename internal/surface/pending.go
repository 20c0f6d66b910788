package surface

import (
	"sync"

	"github.com/ayusman/touchtable/internal/geometry"
)

// Pending is a mutex-guarded buffer of touches waiting for the next render.
type Pending struct {
	mu     sync.Mutex
	points []geometry.Point
}

// Append adds points to the buffer.
func (p *Pending) Append(points ...geometry.Point) {
	if len(points) == 0 {
		return
	}
	p.mu.Lock()
	p.points = append(p.points, points...)
	p.mu.Unlock()
}

// Drain returns everything buffered and empties the buffer.
func (p *Pending) Drain() []geometry.Point {
	p.mu.Lock()
	out := p.points
	p.points = nil
	p.mu.Unlock()
	return out
}

// Len returns the number of buffered points.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.points)
}
