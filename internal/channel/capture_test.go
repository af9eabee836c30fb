package channel

import (
	"bytes"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/audiobridge/mediachan/internal/wave"
)

func waitForDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("capture worker did not exit")
	}
}

func TestCaptureLoopExitsWhenStopped(t *testing.T) {
	device := &fakeCaptureDevice{ready: true, started: true, chunk: []byte{1, 2, 3, 4}, readDelay: time.Millisecond}
	segment, err := os.CreateTemp(t.TempDir(), "seg-*.raw")
	if err != nil {
		t.Fatal(err)
	}

	var running atomic.Bool
	running.Store(true)
	done := make(chan struct{})
	loop := &captureLoop{
		device:  device,
		file:    segment,
		bufSize: 16,
		running: running.Load,
		log:     zerolog.Nop(),
		done:    done,
	}
	go loop.run()

	time.Sleep(20 * time.Millisecond)
	running.Store(false)
	waitForDone(t, done)

	data, err := os.ReadFile(segment.Name())
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("no capture data was written")
	}
	if len(data)%4 != 0 {
		t.Errorf("partial buffer written: %d bytes", len(data))
	}
	if reads := device.readCount(); len(data) != reads*4 {
		t.Errorf("wrote %d bytes but the device delivered %d", len(data), reads*4)
	}
}

func TestCaptureLoopSkipsEmptyReads(t *testing.T) {
	// A device that is not started reports InvalidOperation on every read;
	// the loop must spin without writing anything.
	device := &fakeCaptureDevice{ready: true, started: false, readDelay: time.Millisecond}
	segment, err := os.CreateTemp(t.TempDir(), "seg-*.raw")
	if err != nil {
		t.Fatal(err)
	}

	var running atomic.Bool
	running.Store(true)
	done := make(chan struct{})
	loop := &captureLoop{
		device:  device,
		file:    segment,
		bufSize: 16,
		running: running.Load,
		log:     zerolog.Nop(),
		done:    done,
	}
	go loop.run()

	time.Sleep(20 * time.Millisecond)
	running.Store(false)
	waitForDone(t, done)

	data, err := os.ReadFile(segment.Name())
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("expected no data, got %d bytes", len(data))
	}
}

func TestRecordingProducesWavFile(t *testing.T) {
	chunk := []byte{0x10, 0x20, 0x30, 0x40}
	capture := &fakeCaptureEngine{ready: true, chunk: chunk}
	ch, rec := newTestChannel(t, &fakePlaybackEngine{}, capture)
	root := ch.resolver.WritableRoot

	ch.StartRecording("take.wav")
	if got := ch.State(); got != StateRunning {
		t.Fatalf("expected Running, got %s", got)
	}
	if got := ch.Mode(); got != ModeRecord {
		t.Fatalf("expected record mode, got %s", got)
	}

	time.Sleep(30 * time.Millisecond)
	ch.StopRecording()

	if got := ch.State(); got != StateStopped {
		t.Errorf("expected Stopped, got %s", got)
	}
	if got := ch.Mode(); got != ModeNone {
		t.Errorf("expected mode reset after finalize, got %s", got)
	}

	out, err := os.Open(filepath.Join(root, "take.wav"))
	if err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	defer out.Close()

	format, dataLen, err := wave.DecodeHeader(out)
	if err != nil {
		t.Fatalf("invalid WAV header: %v", err)
	}
	if format.SampleRate != DefaultSampleRate || format.Channels != 1 || format.BitsPerSample != 16 {
		t.Errorf("unexpected format: %+v", format)
	}
	if dataLen == 0 || dataLen%uint32(len(chunk)) != 0 {
		t.Errorf("unexpected data length %d", dataLen)
	}

	// The payload must be the device's chunks verbatim.
	payload := make([]byte, len(chunk))
	if _, err := out.Read(payload); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, chunk) {
		t.Errorf("payload %x does not match captured %x", payload, chunk)
	}

	if n := rec.countState(StateRunning); n != 1 {
		t.Errorf("expected 1 Running event, got %d", n)
	}
	if n := rec.countState(StateStopped); n != 1 {
		t.Errorf("expected 1 Stopped event, got %d", n)
	}

	// No raw segments may survive the finalize.
	leftovers, err := filepath.Glob(filepath.Join(root, "mediachan-*.raw"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("temp segments left behind: %v", leftovers)
	}
}

func TestPauseResumeRecordingKeepsFirstSegment(t *testing.T) {
	capture := &fakeCaptureEngine{ready: true, chunk: []byte{0xAA, 0xBB}}
	ch, rec := newTestChannel(t, &fakePlaybackEngine{}, capture)
	root := ch.resolver.WritableRoot

	ch.StartRecording("take.wav")
	time.Sleep(20 * time.Millisecond)
	ch.PauseRecording()

	if got := ch.Mode(); got != ModeRecord {
		t.Errorf("pause must keep record mode, got %s", got)
	}
	if got := ch.State(); got != StateStopped {
		t.Errorf("expected Stopped while paused, got %s", got)
	}

	ch.ResumeRecording()
	if got := ch.State(); got != StateRunning {
		t.Fatalf("resume did not restart capture, state %s", got)
	}
	time.Sleep(20 * time.Millisecond)
	ch.StopRecording()

	if _, err := os.Stat(filepath.Join(root, "take.wav")); err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	leftovers, err := filepath.Glob(filepath.Join(root, "mediachan-*.raw"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("temp segments left behind: %v", leftovers)
	}
	if n := rec.countErrors(ErrAborted); n != 0 {
		t.Errorf("unexpected Aborted events: %d", n)
	}
}

func TestStartRecordingDeviceNotReady(t *testing.T) {
	capture := &fakeCaptureEngine{ready: false}
	ch, rec := newTestChannel(t, &fakePlaybackEngine{}, capture)

	ch.StartRecording("take.wav")

	if n := rec.countErrors(ErrAborted); n != 1 {
		t.Errorf("expected 1 Aborted event, got %d", n)
	}
	if got := ch.State(); got != StateNone {
		t.Errorf("state must stay None on a failed start, got %s", got)
	}
	if d := capture.lastDevice(); d != nil && d.ready {
		t.Error("the failed device was not released")
	}
}

func TestStopAfterPauseFinalizesRecording(t *testing.T) {
	capture := &fakeCaptureEngine{ready: true, chunk: []byte{0x01, 0x02}}
	ch, rec := newTestChannel(t, &fakePlaybackEngine{}, capture)
	root := ch.resolver.WritableRoot

	ch.StartRecording("take.wav")
	time.Sleep(20 * time.Millisecond)
	ch.PauseRecording()
	ch.StopRecording()

	if got := ch.Mode(); got != ModeNone {
		t.Errorf("expected mode reset after stop, got %s", got)
	}
	if _, err := os.Stat(filepath.Join(root, "take.wav")); err != nil {
		t.Fatalf("paused segment was not finalized: %v", err)
	}
	leftovers, err := filepath.Glob(filepath.Join(root, "mediachan-*.raw"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("temp segments left behind: %v", leftovers)
	}
	if n := rec.countErrors(ErrAborted); n != 0 {
		t.Errorf("unexpected Aborted events: %d", n)
	}

	// The channel must be free for playback again.
	ch.StartPlaying("clip.wav")
	if n := rec.countErrors(ErrAborted); n != 0 {
		t.Errorf("playback still rejected after stop: %d Aborted events", n)
	}
}

func TestDestroyFinalizesPausedRecording(t *testing.T) {
	capture := &fakeCaptureEngine{ready: true, chunk: []byte{0x03, 0x04}}
	ch, _ := newTestChannel(t, &fakePlaybackEngine{}, capture)
	root := ch.resolver.WritableRoot

	ch.StartRecording("take.wav")
	time.Sleep(20 * time.Millisecond)
	ch.PauseRecording()
	ch.Destroy()

	if got := ch.Mode(); got != ModeNone {
		t.Errorf("expected mode reset after destroy, got %s", got)
	}
	if _, err := os.Stat(filepath.Join(root, "take.wav")); err != nil {
		t.Fatalf("paused segment was not finalized: %v", err)
	}
}

func TestStopRecordingAfterDeviceLoss(t *testing.T) {
	capture := &fakeCaptureEngine{ready: true, chunk: []byte{0x05, 0x06}}
	ch, rec := newTestChannel(t, &fakePlaybackEngine{}, capture)
	root := ch.resolver.WritableRoot

	ch.StartRecording("take.wav")
	time.Sleep(20 * time.Millisecond)

	// The device goes away mid-session; the worker exits on its own and
	// the stop must still move the channel off Running.
	capture.lastDevice().setReady(false)
	ch.StopRecording()

	if got := ch.State(); got != StateStopped {
		t.Errorf("expected Stopped after stop, got %s", got)
	}
	if got := ch.Mode(); got != ModeNone {
		t.Errorf("expected mode reset after stop, got %s", got)
	}
	if n := rec.countState(StateStopped); n != 1 {
		t.Errorf("expected 1 Stopped event, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(root, "take.wav")); err != nil {
		t.Fatalf("captured audio was not finalized: %v", err)
	}
}
