package channel

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/audiobridge/mediachan/internal/engine"
)

// captureLoop is the worker-goroutine body of a recording session. It owns
// the open segment file and a read buffer; its only view of the channel is
// the running probe, so it never touches the channel lock.
type captureLoop struct {
	device  engine.CaptureDevice
	file    *os.File
	bufSize int
	running func() bool
	log     zerolog.Logger
	done    chan struct{}
}

// run pulls buffers from the capture device and appends them to the
// segment file until the channel leaves StateRunning or the device goes
// away. The file is closed on every exit path.
func (l *captureLoop) run() {
	defer close(l.done)
	defer func() {
		if err := l.file.Close(); err != nil {
			l.log.Error().Err(err).Str("file", l.file.Name()).Msg("Failed to close capture segment")
		}
	}()

	buf := make([]byte, l.bufSize)
	for l.running() && l.device.Ready() {
		n := l.device.Read(buf)
		if n == engine.InvalidOperation {
			// Transient: the device had nothing for us this cycle.
			continue
		}
		if n <= 0 {
			continue
		}
		if _, err := l.file.Write(buf[:n]); err != nil {
			l.log.Error().Err(err).Str("file", l.file.Name()).Msg("Capture write failed")
			return
		}
	}
}
