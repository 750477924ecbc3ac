package reader

// Noop implements Device but never sees a tag.
// Used to run the service without reader hardware.
type Noop struct{}

// TryRead implements Device.TryRead.
func (n *Noop) TryRead() (Tag, bool, error) {
	return Tag{}, false, nil
}

// Release implements Device.Release.
func (n *Noop) Release() error {
	return nil
}
