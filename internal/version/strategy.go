package version

// Change is the view of a classified commit the increment rules need.
type Change interface {
	IsBreakingChange() bool
	IsFeature() bool
	IsFix() bool
}

// Increment names the component a set of changes bumps.
type Increment int

const (
	// IncrementNone means the changes carry no breaking change, feature or fix.
	IncrementNone Increment = iota
	IncrementPatch
	IncrementMinor
	IncrementMajor
)

func (i Increment) String() string {
	switch i {
	case IncrementMajor:
		return "major"
	case IncrementMinor:
		return "minor"
	case IncrementPatch:
		return "patch"
	default:
		return "none"
	}
}

// Strategy computes the next version for one project from the changes
// attributed to it.
type Strategy struct {
	increment Increment
}

// StrategyFrom picks the highest-precedence increment: breaking change, then
// feature, then fix.
func StrategyFrom[C Change](changes []C) Strategy {
	inc := IncrementNone
	for _, c := range changes {
		switch {
		case c.IsBreakingChange():
			return Strategy{increment: IncrementMajor}
		case c.IsFeature():
			inc = IncrementMinor
		case c.IsFix() && inc < IncrementPatch:
			inc = IncrementPatch
		}
	}
	return Strategy{increment: inc}
}

func (s Strategy) Increment() Increment {
	return s.increment
}

// NextVersion applies the increment to current. Changes that are neither
// breaking, features nor fixes bump the patch level unless
// ignoreInsignificant is set, in which case current is returned as is.
func (s Strategy) NextVersion(current Version, ignoreInsignificant bool) Version {
	switch s.increment {
	case IncrementMajor:
		return current.IncMajor()
	case IncrementMinor:
		return current.IncMinor()
	case IncrementPatch:
		return current.IncPatch()
	}
	if ignoreInsignificant {
		return current
	}
	return current.IncPatch()
}

// Next is StrategyFrom(changes).NextVersion(current, ignoreInsignificant).
func Next[C Change](current Version, changes []C, ignoreInsignificant bool) Version {
	return StrategyFrom(changes).NextVersion(current, ignoreInsignificant)
}
