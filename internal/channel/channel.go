// Package channel implements a single audio channel that can play back or
// record, never both at once. A Channel mediates between the external
// audio engines and a caller that issues commands and receives
// asynchronous StatusEvents.
package channel

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/audiobridge/mediachan/internal/engine"
	"github.com/audiobridge/mediachan/internal/storage"
	"github.com/audiobridge/mediachan/internal/wave"
)

// Recorder format defaults, matching the capture hardware contract.
const (
	DefaultSampleRate    = 9600
	defaultChannels      = 1
	defaultBitsPerSample = 16

	// The minimum capture buffer is probed at this rate regardless of the
	// configured recording rate.
	minBufferProbeRate = 8000
)

// Config assembles a Channel.
type Config struct {
	ID       string
	File     string
	Playback engine.PlaybackEngine
	Capture  engine.CaptureEngine
	Notifier Notifier
	Logger   zerolog.Logger
	Format   wave.Format
	Resolver storage.Resolver
}

// Channel owns one playback session or one recording session at a time.
// All fields below mu are guarded by it; engine callbacks take the same
// lock. The capture worker never touches these fields; it observes state
// through liveState only.
type Channel struct {
	id       string
	log      zerolog.Logger
	notify   Notifier
	playback engine.PlaybackEngine
	capture  engine.CaptureEngine
	resolver storage.Resolver
	format   wave.Format

	liveState atomic.Int32

	mu        sync.Mutex
	mode      Mode
	state     State
	audioFile string
	duration  float64

	player         engine.Player
	prepareOnly    bool
	seekOnPrepared int

	recorder   engine.CaptureDevice
	tempFile   string
	tempFiles  []string
	workerDone chan struct{}
}

// New creates an idle channel bound to an initial target file.
func New(cfg Config) *Channel {
	format := cfg.Format
	if format.SampleRate == 0 {
		format.SampleRate = DefaultSampleRate
	}
	if format.Channels == 0 {
		format.Channels = defaultChannels
	}
	if format.BitsPerSample == 0 {
		format.BitsPerSample = defaultBitsPerSample
	}

	return &Channel{
		id:          cfg.ID,
		log:         cfg.Logger.With().Str("channel", cfg.ID).Logger(),
		notify:      cfg.Notifier,
		playback:    cfg.Playback,
		capture:     cfg.Capture,
		resolver:    cfg.Resolver,
		format:      format,
		audioFile:   cfg.File,
		duration:    -1,
		prepareOnly: true,
	}
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the current channel mode.
func (c *Channel) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Destroy tears down any live playback or recording session. The channel
// is unusable afterwards. A running recording is finalized to the target
// file; the capture worker is joined before Destroy returns.
func (c *Channel) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyLocked()
}

func (c *Channel) destroyLocked() {
	if c.player != nil {
		if c.state == StateRunning || c.state == StatePaused {
			c.player.Stop()
			c.setStateLocked(StateStopped)
		}
		c.player.Release()
		c.player = nil
	}
	// Covers both a live capture and a paused one that still has
	// unfinalized segments.
	c.stopRecordingLocked(true)
}

//
// Recording
//

// StartRecording begins capturing to a fresh raw segment, targeting file
// on finalize. Rejected with an Aborted error while playing or while a
// capture is already live.
func (c *Channel) StartRecording(file string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startRecordingLocked(file)
}

func (c *Channel) startRecordingLocked(file string) {
	switch c.mode {
	case ModePlay:
		c.log.Debug().Msg("Cannot record in play mode")
		c.sendErrorLocked(ErrAborted)
		return
	case ModeRecord:
		if c.recorder != nil {
			c.log.Debug().Msg("Already recording")
			c.sendErrorLocked(ErrAborted)
			return
		}
		// Paused recording: fall through and open a new segment.
	}

	c.audioFile = file

	bufSize := c.capture.MinBufferSize(minBufferProbeRate, defaultChannels, defaultBitsPerSample)
	device, err := c.capture.NewDevice(c.format.SampleRate, c.format.Channels, c.format.BitsPerSample, bufSize)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to open capture device")
		c.sendErrorLocked(ErrAborted)
		return
	}

	segment, err := os.CreateTemp(c.resolver.TempDir(), "mediachan-*.raw")
	if err != nil {
		device.Release()
		c.log.Error().Err(err).Msg("Failed to create capture segment")
		c.sendErrorLocked(ErrAborted)
		return
	}

	if !device.Ready() {
		device.Release()
		segment.Close()
		os.Remove(segment.Name())
		c.log.Error().Msg("Capture device not ready")
		c.sendErrorLocked(ErrAborted)
		return
	}
	if err := device.Start(); err != nil {
		device.Release()
		segment.Close()
		os.Remove(segment.Name())
		c.log.Error().Err(err).Msg("Failed to start capture device")
		c.sendErrorLocked(ErrAborted)
		return
	}

	c.recorder = device
	c.tempFile = segment.Name()
	c.mode = ModeRecord
	c.setStateLocked(StateRunning)

	c.workerDone = make(chan struct{})
	loop := &captureLoop{
		device:  device,
		file:    segment,
		bufSize: bufSize,
		running: func() bool { return State(c.liveState.Load()) == StateRunning },
		log:     c.log,
		done:    c.workerDone,
	}
	go loop.run()

	c.log.Info().Str("file", file).Str("segment", c.tempFile).Msg("Recording started")
}

// StopRecording stops the capture, joins the worker, and finalizes the
// accumulated segments into the target WAV file.
func (c *Channel) StopRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRecordingLocked(true)
}

// PauseRecording stops the capture and keeps the segment for a later
// resume; nothing is finalized.
func (c *Channel) PauseRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRecordingLocked(false)
}

// ResumeRecording starts a new capture segment against the current target
// file.
func (c *Channel) ResumeRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startRecordingLocked(c.audioFile)
}

func (c *Channel) stopRecordingLocked(finalize bool) {
	if c.recorder == nil && len(c.tempFiles) == 0 {
		return
	}

	if c.recorder != nil {
		if c.recorder.Ready() {
			c.recorder.Stop()
		}
		// The session is over even if the device died under us.
		c.setStateLocked(StateStopped)

		// The worker observes the state change through liveState and exits
		// within one read cycle; it never takes the channel lock.
		if c.workerDone != nil {
			<-c.workerDone
			c.workerDone = nil
		}

		c.recorder.Release()
		c.recorder = nil

		c.tempFiles = append(c.tempFiles, c.tempFile)
		c.tempFile = ""
	}

	if !finalize {
		c.log.Debug().Msg("Recording paused")
		return
	}

	// A stop after a pause finds no live recorder, only accumulated
	// segments; those still get assembled.
	c.finalizeLocked()
	c.mode = ModeNone
}

func (c *Channel) finalizeLocked() {
	dest := c.resolver.Writable(c.audioFile)
	writer := wave.Writer{Format: c.format, Log: c.log}
	err := writer.Finalize(c.tempFiles, dest)
	c.tempFiles = nil
	if err != nil {
		c.log.Error().Err(err).Str("file", dest).Msg("Failed to finalize recording")
		c.sendErrorLocked(ErrAborted)
		return
	}
	c.log.Info().Str("file", dest).Msg("Recording finalized")
}

//
// Playback
//

// StartPlaying starts or resumes playback of file. If the player is not
// yet prepared, playback begins automatically once preparation completes.
func (c *Channel) StartPlaying(file string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startPlayingLocked(file)
}

func (c *Channel) startPlayingLocked(file string) {
	if c.readyPlayerLocked(file) && c.player != nil {
		c.player.Start()
		c.setStateLocked(StateRunning)
		c.seekOnPrepared = 0
	} else {
		c.prepareOnly = false
	}
}

// SeekTo jumps to a position in the current track. Seeks issued before the
// player is prepared are applied once preparation completes.
func (c *Channel) SeekTo(ms int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seekToLocked(ms)
}

func (c *Channel) seekToLocked(ms int) {
	if c.readyPlayerLocked(c.audioFile) && c.player != nil {
		if ms > 0 {
			c.player.SeekTo(ms)
		}
		c.sendStatusLocked(valueEvent(c.id, KindPosition, float64(ms)/1000.0))
	} else {
		c.seekOnPrepared = ms
	}
}

// PausePlaying pauses a running playback; anything else is a NoneActive
// error.
func (c *Channel) PausePlaying() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning && c.player != nil {
		c.player.Pause()
		c.setStateLocked(StatePaused)
	} else {
		c.log.Debug().Stringer("state", c.state).Msg("PausePlaying called in invalid state")
		c.sendErrorLocked(ErrNoneActive)
	}
}

// StopPlaying stops playback. The engine is rewound and paused rather than
// released, so a subsequent start on the same file resumes instantly.
func (c *Channel) StopPlaying() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The state check alone is not enough: a recording session is also
	// Running, with no player at all.
	if (c.state == StateRunning || c.state == StatePaused) && c.player != nil {
		c.player.Pause()
		c.player.SeekTo(0)
		c.setStateLocked(StateStopped)
	} else {
		c.log.Debug().Stringer("state", c.state).Msg("StopPlaying called in invalid state")
		c.sendErrorLocked(ErrNoneActive)
	}
}

// Position returns the playback position in milliseconds, emitting a
// Position status as a side effect, or -1 outside Running/Paused.
func (c *Channel) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if (c.state == StateRunning || c.state == StatePaused) && c.player != nil {
		pos := c.player.PositionMs()
		c.sendStatusLocked(valueEvent(c.id, KindPosition, float64(pos)/1000.0))
		return pos
	}
	return -1
}

// Duration returns the duration of file in seconds: -2 while a capture
// session is active, the cached duration when a player exists, and
// otherwise whatever a prepare-only load learns synchronously (non-zero
// only for local files).
func (c *Channel) Duration(file string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recorder != nil {
		return -2
	}
	if c.player != nil {
		return c.duration
	}
	c.prepareOnly = true
	c.readyPlayerLocked(file)
	return c.duration
}

// SetVolume sets the playback volume (0.0 to 1.0). NoneActive error when no
// player exists yet.
func (c *Channel) SetVolume(level float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.player != nil {
		c.player.SetVolume(level)
	} else {
		c.log.Debug().Msg("SetVolume called before the player exists")
		c.sendErrorLocked(ErrNoneActive)
	}
}

// playModeLocked commits the channel to play mode, rejecting with Aborted
// if it is already committed to recording.
func (c *Channel) playModeLocked() bool {
	switch c.mode {
	case ModeNone:
		c.mode = ModePlay
	case ModePlay:
	case ModeRecord:
		c.log.Debug().Msg("Cannot play in record mode")
		c.sendErrorLocked(ErrAborted)
		return false
	}
	return true
}

// readyPlayerLocked reports whether the player can act on file
// immediately. When it cannot, it arranges for the in-flight or newly
// started load to finish the job.
func (c *Channel) readyPlayerLocked(file string) bool {
	if !c.playModeLocked() {
		return false
	}

	switch c.state {
	case StateNone:
		if c.player == nil {
			c.player = c.playback.NewPlayer(c)
		}
		if err := c.loadLocked(file); err != nil {
			c.log.Error().Err(err).Str("file", file).Msg("Failed to load audio file")
			c.sendErrorLocked(ErrAborted)
		}
		return false

	case StateLoading:
		c.prepareOnly = false
		return false

	case StateStarting, StateRunning, StatePaused:
		return true

	case StateStopped:
		if c.audioFile == file {
			if c.player == nil {
				// A prior recording session leaves no player behind.
				c.player = c.playback.NewPlayer(c)
				c.prepareOnly = false
				if err := c.loadLocked(file); err != nil {
					c.log.Error().Err(err).Str("file", file).Msg("Failed to load audio file")
					c.sendErrorLocked(ErrAborted)
				}
				return false
			}
			c.player.SeekTo(0)
			c.player.Pause()
			return true
		}
		if c.player == nil {
			c.player = c.playback.NewPlayer(c)
		} else {
			c.player.Reset()
		}
		if err := c.loadLocked(file); err != nil {
			c.log.Error().Err(err).Str("file", file).Msg("Failed to load audio file")
			c.sendErrorLocked(ErrAborted)
		}
		return false

	default:
		c.log.Debug().Stringer("state", c.state).Msg("readyPlayer called in invalid state")
		c.sendErrorLocked(ErrAborted)
		return false
	}
}

// loadLocked binds file to the player and begins preparation. Streamed
// sources prepare asynchronously; local sources prepare in place, learn
// the duration synchronously, and schedule the prepared handling to run
// once the current command releases the lock.
func (c *Channel) loadLocked(file string) error {
	c.audioFile = file

	if storage.IsStreaming(file) {
		if err := c.player.SetSource(file); err != nil {
			return err
		}
		// A streamed source implies play mode.
		c.mode = ModePlay
		c.setStateLocked(StateStarting)
		c.player.PrepareAsync()
		return nil
	}

	path := c.resolver.Playable(file)
	if err := c.player.SetSource(path); err != nil {
		return err
	}
	c.setStateLocked(StateStarting)
	if err := c.player.Prepare(); err != nil {
		return err
	}
	c.duration = float64(c.player.DurationMs()) / 1000.0
	go c.OnPrepared(c.player)
	return nil
}

//
// Engine callbacks
//

// OnPrepared implements engine.Listener. It applies any pending seek,
// auto-starts unless this was a prepare-only load, caches the duration,
// and emits a Duration status.
func (c *Channel) OnPrepared(engine.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.player == nil {
		// The session was torn down while the prepare was in flight.
		return
	}

	c.seekToLocked(c.seekOnPrepared)
	if !c.prepareOnly {
		c.player.Start()
		c.setStateLocked(StateRunning)
		c.seekOnPrepared = 0
	} else {
		c.setStateLocked(StateStarting)
	}
	c.duration = float64(c.player.DurationMs()) / 1000.0
	c.prepareOnly = true
	c.sendStatusLocked(valueEvent(c.id, KindDuration, c.duration))
}

// OnCompletion implements engine.Listener.
func (c *Channel) OnCompletion(engine.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(StateStopped)
}

// OnError implements engine.Listener. The state is forced to Stopped
// without going through setState so the error is never swallowed by the
// same-state suppression, the session is torn down, and the engine code is
// passed through verbatim.
func (c *Channel) OnError(_ engine.Player, code, extra int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Error().Int("code", code).Int("extra", extra).Msg("Playback engine error")
	c.assignState(StateStopped)
	c.destroyLocked()
	c.sendErrorLocked(code)
	return false
}

//
// State and status plumbing
//

// setStateLocked validates the transition, deduplicates repeated
// identical-state calls, and emits a State status on every real change.
func (c *Channel) setStateLocked(next State) {
	if next == c.state {
		return
	}
	if !canTransition(c.state, next) {
		c.log.Warn().Stringer("from", c.state).Stringer("to", next).Msg("Rejected invalid state transition")
		return
	}
	c.assignState(next)
	c.sendStatusLocked(valueEvent(c.id, KindState, float64(next)))
}

// assignState writes the state and its mirror for the capture worker,
// bypassing validation and notification.
func (c *Channel) assignState(s State) {
	c.state = s
	c.liveState.Store(int32(s))
}

func (c *Channel) sendErrorLocked(code int) {
	c.sendStatusLocked(codeEvent(c.id, KindError, code))
}

func (c *Channel) sendStatusLocked(ev StatusEvent) {
	if c.notify == nil {
		return
	}
	c.notify.Notify(ev)
}
