//go:build cgo

package engine

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/audiobridge/mediachan/internal/storage"
	"github.com/audiobridge/mediachan/internal/wave"
)

// framesPerBuffer is the PortAudio stream granularity for both directions.
const framesPerBuffer = 512

// mediaErrorUnknown is the engine-native code reported through
// Listener.OnError for asynchronous load failures.
const mediaErrorUnknown = 1

// PortAudio implements PlaybackEngine and CaptureEngine on top of the
// PortAudio library. The playback side decodes WAV sources, local or
// HTTP-streamed.
type PortAudio struct {
	// DeviceID selects the capture device by name; empty means the system
	// default input.
	DeviceID string
	Log      zerolog.Logger
}

// NewPortAudio initializes the PortAudio runtime.
func NewPortAudio(deviceID string, log zerolog.Logger) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &PortAudio{DeviceID: deviceID, Log: log}, nil
}

// Close terminates the PortAudio runtime.
func (e *PortAudio) Close() error {
	return portaudio.Terminate()
}

// Device describes an audio input device.
type Device struct {
	ID      string
	Name    string
	Default bool
}

// ListDevices enumerates the available input devices.
func (e *PortAudio) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}
	return result, nil
}

func (e *PortAudio) inputDevice() (*portaudio.DeviceInfo, error) {
	if e.DeviceID == "" {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == e.DeviceID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", e.DeviceID)
}

//
// Capture
//

// MinBufferSize reports the smallest read buffer in bytes: 100ms of audio
// at the given format.
func (e *PortAudio) MinBufferSize(sampleRate, channels, bitsPerSample int) int {
	frames := sampleRate / 10
	return frames * channels * bitsPerSample / 8
}

// NewDevice opens an input stream for 16-bit PCM capture.
func (e *PortAudio) NewDevice(sampleRate, channels, bitsPerSample, bufferSize int) (CaptureDevice, error) {
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported sample depth: %d bits", bitsPerSample)
	}
	frames := bufferSize / (channels * 2)
	if frames <= 0 {
		return nil, fmt.Errorf("buffer size %d too small for %d channels", bufferSize, channels)
	}

	device, err := e.inputDevice()
	if err != nil {
		return nil, err
	}

	in := make([]int16, frames*channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: frames,
	}, in)
	if err != nil {
		return nil, fmt.Errorf("open capture stream: %w", err)
	}

	return &paCaptureDevice{log: e.Log, stream: stream, in: in, ready: true}, nil
}

type paCaptureDevice struct {
	log    zerolog.Logger
	stream *portaudio.Stream
	in     []int16

	mu      sync.Mutex
	ready   bool
	started bool
}

func (d *paCaptureDevice) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

func (d *paCaptureDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready || d.started {
		return fmt.Errorf("capture device not startable")
	}
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("start capture stream: %w", err)
	}
	d.started = true
	return nil
}

func (d *paCaptureDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return
	}
	if err := d.stream.Stop(); err != nil {
		d.log.Debug().Err(err).Msg("Capture stream stop failed")
	}
	d.started = false
}

func (d *paCaptureDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ready {
		d.stream.Close()
		d.ready = false
	}
}

// Read blocks for one hardware buffer and encodes it as little-endian
// 16-bit PCM into buf.
func (d *paCaptureDevice) Read(buf []byte) int {
	d.mu.Lock()
	ok := d.ready && d.started
	d.mu.Unlock()
	if !ok {
		return InvalidOperation
	}
	if err := d.stream.Read(); err != nil {
		return InvalidOperation
	}
	return samplesToPCM(buf, d.in)
}

//
// Playback
//

// NewPlayer creates a WAV playback handle feeding the default output
// device.
func (e *PortAudio) NewPlayer(l Listener) Player {
	return &paPlayer{log: e.Log, listener: l, volume: 1}
}

type paPlayer struct {
	log      zerolog.Logger
	listener Listener

	mu       sync.Mutex
	source   string
	format   wave.Format
	samples  []int16
	prepared bool
	volume   float64

	posFrames int
	playing   bool
	stream    *portaudio.Stream
	out       []int16
	stopFeed  chan struct{}
	feedDone  chan struct{}
}

func (p *paPlayer) SetSource(source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
	return nil
}

// Prepare loads and decodes the bound WAV source synchronously. It does
// not invoke the listener; the caller owns prepared handling for
// synchronous loads.
func (p *paPlayer) Prepare() error {
	p.mu.Lock()
	source := p.source
	p.mu.Unlock()

	r, err := openSource(source)
	if err != nil {
		return err
	}
	defer r.Close()

	format, dataLen, err := wave.DecodeHeader(r)
	if err != nil {
		return fmt.Errorf("decode %s: %w", source, err)
	}
	if format.BitsPerSample != 16 {
		return fmt.Errorf("decode %s: unsupported sample depth %d", source, format.BitsPerSample)
	}
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read %s: %w", source, err)
	}

	p.mu.Lock()
	p.format = format
	p.samples = pcmToSamples(data)
	p.posFrames = 0
	p.prepared = true
	p.mu.Unlock()
	return nil
}

// PrepareAsync prepares on an engine goroutine and reports the outcome
// through the listener.
func (p *paPlayer) PrepareAsync() {
	go func() {
		if err := p.Prepare(); err != nil {
			p.log.Error().Err(err).Msg("Async prepare failed")
			p.listener.OnError(p, mediaErrorUnknown, 0)
			return
		}
		p.listener.OnPrepared(p)
	}()
}

func (p *paPlayer) Start() {
	p.mu.Lock()
	if !p.prepared || p.playing {
		p.mu.Unlock()
		return
	}
	if p.stream == nil {
		p.out = make([]int16, framesPerBuffer*p.format.Channels)
		stream, err := portaudio.OpenDefaultStream(0, p.format.Channels, float64(p.format.SampleRate), framesPerBuffer, p.out)
		if err != nil {
			p.mu.Unlock()
			p.log.Error().Err(err).Msg("Failed to open output stream")
			return
		}
		p.stream = stream
	}
	if err := p.stream.Start(); err != nil {
		p.mu.Unlock()
		p.log.Error().Err(err).Msg("Failed to start output stream")
		return
	}
	p.playing = true
	p.stopFeed = make(chan struct{})
	p.feedDone = make(chan struct{})
	stop, done := p.stopFeed, p.feedDone
	p.mu.Unlock()

	go p.feed(stop, done)
}

// feed pushes buffers to the output stream until the clip ends or the
// player is paused. It holds the player mutex only while slicing samples,
// never across a blocking write or a listener call.
func (p *paPlayer) feed(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		p.mu.Lock()
		total := len(p.samples) / p.format.Channels
		if p.posFrames >= total {
			p.playing = false
			p.mu.Unlock()
			if err := p.stream.Stop(); err != nil {
				p.log.Debug().Err(err).Msg("Output stream stop failed")
			}
			p.listener.OnCompletion(p)
			return
		}
		frames := total - p.posFrames
		if frames > framesPerBuffer {
			frames = framesPerBuffer
		}
		offset := p.posFrames * p.format.Channels
		n := frames * p.format.Channels
		for i := 0; i < n; i++ {
			p.out[i] = scaleSample(p.samples[offset+i], p.volume)
		}
		for i := n; i < len(p.out); i++ {
			p.out[i] = 0
		}
		p.posFrames += frames
		p.mu.Unlock()

		if err := p.stream.Write(); err != nil {
			// Underflow is routine on the last partial buffer.
			p.log.Debug().Err(err).Msg("Output stream write")
		}
	}
}

func (p *paPlayer) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	close(p.stopFeed)
	done := p.feedDone
	p.mu.Unlock()

	<-done
	if err := p.stream.Stop(); err != nil {
		p.log.Debug().Err(err).Msg("Output stream stop failed")
	}
}

func (p *paPlayer) Stop() {
	p.Pause()
	p.mu.Lock()
	p.posFrames = 0
	p.mu.Unlock()
}

func (p *paPlayer) SeekTo(ms int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.prepared {
		return
	}
	frame := ms * p.format.SampleRate / 1000
	total := len(p.samples) / p.format.Channels
	if frame < 0 {
		frame = 0
	}
	if frame > total {
		frame = total
	}
	p.posFrames = frame
}

func (p *paPlayer) Reset() {
	p.Pause()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = ""
	p.samples = nil
	p.prepared = false
	p.posFrames = 0
}

func (p *paPlayer) Release() {
	p.Pause()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
	p.samples = nil
	p.prepared = false
}

func (p *paPlayer) PositionMs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.prepared || p.format.SampleRate == 0 {
		return 0
	}
	return p.posFrames * 1000 / p.format.SampleRate
}

func (p *paPlayer) DurationMs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.prepared || p.format.SampleRate == 0 {
		return 0
	}
	total := len(p.samples) / p.format.Channels
	return total * 1000 / p.format.SampleRate
}

func (p *paPlayer) SetVolume(level float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	p.volume = level
}

// openSource opens a playback source for reading, fetching streamed
// sources over HTTP.
func openSource(source string) (io.ReadCloser, error) {
	if source == "" {
		return nil, fmt.Errorf("no source bound")
	}
	if storage.IsStreaming(source) {
		resp, err := http.Get(source)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: %s", source, resp.Status)
		}
		return resp.Body, nil
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", source, err)
	}
	return f, nil
}

// samplesToPCM encodes samples as little-endian 16-bit PCM into dst and
// returns the number of bytes written.
func samplesToPCM(dst []byte, src []int16) int {
	n := len(src)
	if max := len(dst) / 2; n > max {
		n = max
	}
	for i := 0; i < n; i++ {
		dst[2*i] = byte(src[i])
		dst[2*i+1] = byte(src[i] >> 8)
	}
	return n * 2
}

// pcmToSamples decodes little-endian 16-bit PCM bytes into samples. A
// trailing odd byte is ignored.
func pcmToSamples(src []byte) []int16 {
	out := make([]int16, len(src)/2)
	for i := range out {
		out[i] = int16(uint16(src[2*i]) | uint16(src[2*i+1])<<8)
	}
	return out
}

// scaleSample applies a 0.0 to 1.0 gain to one sample.
func scaleSample(s int16, gain float64) int16 {
	return int16(float64(s) * gain)
}
