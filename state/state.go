// Package state owns the values shared between capture collaborators, the
// relay and the HTTP surface: the latest frame and audio chunk, and the
// capture settings.
package state

// State bundles the shared values so they can be injected as one.
type State struct {
	*Holder
	Settings *Settings
}

func New(frameRate int) (*State, error) {
	settings, err := NewSettings(frameRate)
	if err != nil {
		return nil, err
	}
	return &State{Holder: NewHolder(), Settings: settings}, nil
}
