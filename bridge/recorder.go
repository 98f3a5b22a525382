package bridge

// Recorder receives stage events. monitor.Collector implements it.
type Recorder interface {
	Received(stage string)
	Delivered(stage string)
	Retried(stage string, err error)
	Dropped(stage string, err error)
	SourceFailed(stage string, err error)
	Reopened(stage string)
}

type nopRecorder struct{}

func (nopRecorder) Received(string) {}
func (nopRecorder) Delivered(string) {}
func (nopRecorder) Retried(string, error) {}
func (nopRecorder) Dropped(string, error) {}
func (nopRecorder) SourceFailed(string, error) {}
func (nopRecorder) Reopened(string) {}
