// Package engine defines the boundary to the platform audio subsystem:
// a playback engine that decodes and plays audio sources, and a capture
// engine that records raw PCM from a microphone. The channel core only
// ever talks to these interfaces; production code wires the PortAudio
// implementations, tests wire fakes.
package engine

// InvalidOperation is the sentinel returned by CaptureDevice.Read when the
// device cannot currently service a read (stopped, released, mid-teardown).
// Callers treat it as a transient skip, not a fatal error.
const InvalidOperation = -3

// Listener receives asynchronous callbacks from a Player. It is injected
// once at player construction; each callback may fire on an unspecified
// goroutine.
type Listener interface {
	// OnPrepared fires exactly once per asynchronous prepare.
	OnPrepared(p Player)
	// OnCompletion fires on natural end of stream.
	OnCompletion(p Player)
	// OnError fires on an engine-reported runtime error. The return value
	// reports whether the error was consumed.
	OnError(p Player, code, extra int) bool
}

// PlaybackEngine creates playback handles.
type PlaybackEngine interface {
	NewPlayer(l Listener) Player
}

// Player is one live playback handle. Prepare is synchronous and does not
// invoke Listener.OnPrepared; PrepareAsync returns immediately and fires
// OnPrepared (or OnError) later on an engine goroutine.
type Player interface {
	SetSource(source string) error
	Prepare() error
	PrepareAsync()
	Start()
	Pause()
	Stop()
	SeekTo(ms int)
	Reset()
	Release()
	PositionMs() int
	DurationMs() int
	SetVolume(level float64)
}

// CaptureEngine creates capture devices.
type CaptureEngine interface {
	// MinBufferSize reports the smallest usable read buffer, in bytes, for
	// the given format.
	MinBufferSize(sampleRate, channels, bitsPerSample int) int
	NewDevice(sampleRate, channels, bitsPerSample, bufferSize int) (CaptureDevice, error)
}

// CaptureDevice is one live microphone handle. Read blocks until a buffer
// of samples is available and returns the number of bytes written into
// buf, or InvalidOperation.
type CaptureDevice interface {
	Ready() bool
	Start() error
	Stop()
	Release()
	Read(buf []byte) int
}
