package motion

// State is the counter's latched arm position.
type State int

const (
	StateLowered State = iota
	StateRaised
)

func (s State) String() string {
	if s == StateRaised {
		return "RAISED"
	}
	return "LOWERED"
}

// Counter counts one repetition per raised to lowered transition.
// The zero value is ready to use. It is not safe for concurrent use.
type Counter struct {
	state State
	count uint
}

// Observe feeds one reading and reports whether it completed a repetition.
// Indeterminate readings leave the counter untouched.
func (c *Counter) Observe(r Reading) bool {
	switch {
	case r == Raised && c.state == StateLowered:
		c.state = StateRaised
	case r == Lowered && c.state == StateRaised:
		c.state = StateLowered
		c.count++
		return true
	}
	return false
}

// Reset re-arms the counter to lowered with a zero count.
func (c *Counter) Reset() {
	c.state = StateLowered
	c.count = 0
}

// Count returns the number of completed repetitions.
func (c *Counter) Count() uint {
	return c.count
}

// State returns the latched state.
func (c *Counter) State() State {
	return c.state
}

// Raised reports whether the counter is latched in the raised state.
func (c *Counter) Raised() bool {
	return c.state == StateRaised
}
