package timescale

// Modifier contributes a multiplicative factor to the global time scale.
//
// Modifiers are compared by interface equality, so implementations should be
// pointer types.
type Modifier interface {
	TimeScale() float64
}

// Func adapts a closure to Modifier. Use a pointer (&Func{...}) so each value
// keeps a distinct identity.
type Func struct {
	Fn func() float64
}

func (f *Func) TimeScale() float64 {
	if f == nil || f.Fn == nil {
		return 1
	}
	return f.Fn()
}

// Static is a modifier with a settable constant factor.
type Static struct {
	Factor float64
}

func (s *Static) TimeScale() float64 { return s.Factor }

// Composer folds the active modifiers into one scale.
//
// The result is a product, so the order modifiers were added in never
// matters. Composer is owned by the frame goroutine and is not locked.
type Composer struct {
	mods  []Modifier
	scale float64
}

func NewComposer() *Composer {
	return &Composer{scale: 1}
}

// Add registers m and recomputes. It reports false if m was already active.
func (c *Composer) Add(m Modifier) bool {
	if m == nil || c.indexOf(m) >= 0 {
		return false
	}
	c.mods = append(c.mods, m)
	c.Recompute()
	return true
}

// Remove unregisters m and recomputes. It reports false if m was not active.
func (c *Composer) Remove(m Modifier) bool {
	i := c.indexOf(m)
	if i < 0 {
		return false
	}
	last := len(c.mods) - 1
	c.mods[i] = c.mods[last]
	c.mods[last] = nil
	c.mods = c.mods[:last]
	c.Recompute()
	return true
}

func (c *Composer) Contains(m Modifier) bool { return c.indexOf(m) >= 0 }

func (c *Composer) Len() int { return len(c.mods) }

// Scale returns the value computed by the last Recompute.
func (c *Composer) Scale() float64 { return c.scale }

// Recompute refreshes the cached scale from the modifiers' current factors.
func (c *Composer) Recompute() float64 {
	c.scale = c.fold(nil)
	return c.scale
}

// ScaleExcept folds every active modifier except those in exclude, reading
// current factors.
func (c *Composer) ScaleExcept(exclude ...Modifier) float64 {
	return c.fold(exclude)
}

func (c *Composer) fold(exclude []Modifier) float64 {
	v := 1.0
outer:
	for _, m := range c.mods {
		for _, x := range exclude {
			if x == m {
				continue outer
			}
		}
		v *= m.TimeScale()
	}
	return v
}

func (c *Composer) indexOf(m Modifier) int {
	if m == nil {
		return -1
	}
	for i, x := range c.mods {
		if x == m {
			return i
		}
	}
	return -1
}
