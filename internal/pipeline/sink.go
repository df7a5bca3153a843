package pipeline

// ChannelSink forwards events into a channel, the shape a caller running
// Run on a background goroutine feeds into a live progress view.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}
