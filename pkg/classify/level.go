package classify

// Level is the four-band categorical risk classification.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// rank orders levels for comparisons.
func (l Level) rank() int {
	switch l {
	case LevelCritical:
		return 3
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether l is at or above other.
func (l Level) AtLeast(other Level) bool {
	return l.rank() >= other.rank()
}

// Thresholds maps pressure to a Level via four ascending boundaries.
// Values are configuration, injected at construction time.
type Thresholds struct {
	Low      float64 `yaml:"low"`
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// DefaultThresholds returns the standard pressure boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.20, Medium: 0.40, High: 0.70, Critical: 0.90}
}

// Level maps a pressure score to its risk band. The mapping is monotone:
// higher pressure never yields a lower band.
func (t Thresholds) Level(pressure float64) Level {
	switch {
	case pressure >= t.Critical:
		return LevelCritical
	case pressure >= t.High:
		return LevelHigh
	case pressure >= t.Medium:
		return LevelMedium
	default:
		return LevelLow
	}
}
