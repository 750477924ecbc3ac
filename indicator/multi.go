package indicator

// Multi combines multiple Indicator implementations.
type Multi struct {
	indicators []Indicator
}

// NewMulti combines indicators into one.
func NewMulti(indicators ...Indicator) *Multi {
	return &Multi{indicators: indicators}
}

func (m *Multi) each(fn func(Indicator)) {
	for _, ind := range m.indicators {
		fn(ind)
	}
}

// Idle implements Indicator.Idle.
func (m *Multi) Idle() { m.each(Indicator.Idle) }

// Scanning implements Indicator.Scanning.
func (m *Multi) Scanning() { m.each(Indicator.Scanning) }

// Found implements Indicator.Found.
func (m *Multi) Found() { m.each(Indicator.Found) }

// TimedOut implements Indicator.TimedOut.
func (m *Multi) TimedOut() { m.each(Indicator.TimedOut) }

// Failed implements Indicator.Failed.
func (m *Multi) Failed() { m.each(Indicator.Failed) }

// Connected implements Indicator.Connected.
func (m *Multi) Connected() { m.each(Indicator.Connected) }

// ConnectionLost implements Indicator.ConnectionLost.
func (m *Multi) ConnectionLost() { m.each(Indicator.ConnectionLost) }

// Shutdown implements Indicator.Shutdown.
func (m *Multi) Shutdown() { m.each(Indicator.Shutdown) }

// Release implements Indicator.Release. Every indicator is released even
// when an earlier one fails.
func (m *Multi) Release() error {
	return releaseAll(m.indicators)
}
