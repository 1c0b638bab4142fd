package player

// Command is a request from the control surface. Commands are processed in
// the order they are sent.
type Command interface {
	command()
}

// Play switches to a channel. When URL is empty the stream URLs are resolved
// through the Directory.
type Play struct {
	ChannelID string
	URL       string
}

type Pause struct{}

type Resume struct{}

// SetVolume sets the volume; Level is clamped to [0, 100].
type SetVolume struct {
	Level int
}

type Stop struct{}

func (Play) command()      {}
func (Pause) command()     {}
func (Resume) command()    {}
func (SetVolume) command() {}
func (Stop) command()      {}
