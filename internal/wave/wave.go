// Package wave assembles raw 16-bit PCM captures into RIFF/WAVE files and
// parses the headers back for playback.
package wave

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// HeaderSize is the fixed size of the canonical PCM WAV header.
const HeaderSize = 44

const pcmFormatTag = 1

// Format describes the PCM layout of a WAV payload.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// ByteRate returns bytes of audio per second.
func (f Format) ByteRate() int {
	return f.BitsPerSample * f.SampleRate * f.Channels / 8
}

// BlockAlign returns the size of one sample frame in bytes.
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// EncodeHeader produces the 44-byte RIFF/WAVE header for a payload of
// audioLen bytes in the given format. All multi-byte fields are
// little-endian.
func EncodeHeader(audioLen uint32, f Format) [HeaderSize]byte {
	var h [HeaderSize]byte

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], audioLen+36)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], pcmFormatTag)
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(f.ByteRate()))
	binary.LittleEndian.PutUint16(h[32:34], uint16(f.BlockAlign()))
	binary.LittleEndian.PutUint16(h[34:36], uint16(f.BitsPerSample))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], audioLen)

	return h
}

// DecodeHeader reads a WAV header from r and returns the PCM format and the
// length of the data chunk. It walks the chunk list, so files with extra
// chunks between "fmt " and "data" are accepted. The reader is left
// positioned at the start of the audio data.
func DecodeHeader(r io.Reader) (Format, uint32, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Format{}, 0, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{}, 0, errors.New("not a RIFF/WAVE file")
	}

	var f Format
	sawFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return Format{}, 0, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Format{}, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return Format{}, 0, errors.New("fmt chunk too short")
			}
			if tag := binary.LittleEndian.Uint16(body[0:2]); tag != pcmFormatTag {
				return Format{}, 0, fmt.Errorf("unsupported format tag %d", tag)
			}
			f.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			sawFmt = true
		case "data":
			if !sawFmt {
				return Format{}, 0, errors.New("data chunk before fmt chunk")
			}
			return f, size, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return Format{}, 0, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

// Writer finalizes accumulated raw capture segments into a WAV artifact.
type Writer struct {
	Format Format
	Log    zerolog.Logger
}

// Finalize writes dest from the first raw segment: header first, then the
// segment bytes verbatim. Every segment file is deleted afterwards whether
// or not assembly succeeded, and extra segments beyond the first are
// reported and dropped rather than concatenated.
func (w Writer) Finalize(segments []string, dest string) error {
	if len(segments) == 0 {
		return errors.New("no recorded segments to finalize")
	}
	defer func() {
		for _, s := range segments {
			if err := os.Remove(s); err != nil && !errors.Is(err, os.ErrNotExist) {
				w.Log.Warn().Err(err).Str("segment", s).Msg("Failed to delete temp segment")
			}
		}
	}()

	if n := len(segments) - 1; n > 0 {
		w.Log.Warn().Int("dropped", n).Msg("Multiple capture segments accumulated; only the first is written")
	}

	in, err := os.Open(segments[0])
	if err != nil {
		return fmt.Errorf("open segment: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat segment: %w", err)
	}
	audioLen := uint32(info.Size())

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	header := EncodeHeader(audioLen, w.Format)
	if _, err := out.Write(header[:]); err != nil {
		out.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy audio data: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	w.Log.Debug().Str("file", dest).Uint32("bytes", audioLen).Msg("WAV file written")
	return nil
}
