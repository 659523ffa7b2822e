package follow

import (
	"context"

	"github.com/lxm0851/shadowing/pkg/audio/recorder"
)

// defaultSave persists captures via [recorder.Save].
func defaultSave(pcm []byte, dir string) (string, string, error) {
	return recorder.Save(pcm, dir)
}

// Mic adapts a [recorder.Recorder] to the [Recorder] interface the engine
// consumes.
type Mic struct {
	R *recorder.Recorder
}

var _ Recorder = Mic{}

// Start opens a capture on the underlying recorder.
func (m Mic) Start(ctx context.Context) (Capture, error) {
	c, err := m.R.Start(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}
