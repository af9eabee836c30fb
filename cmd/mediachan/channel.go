package main

import (
	"github.com/audiobridge/mediachan/internal/channel"
	"github.com/audiobridge/mediachan/internal/engine"
	"github.com/audiobridge/mediachan/internal/storage"
	"github.com/audiobridge/mediachan/internal/wave"
)

// newChannel wires a Channel against the PortAudio engine with the loaded
// config. Status events land on the events channel; the notifier runs
// under the channel lock, so it never blocks: events are dropped when the
// buffer is full.
func newChannel(id, file string, eng *engine.PortAudio, events chan channel.StatusEvent) *channel.Channel {
	return channel.New(channel.Config{
		ID:       id,
		File:     file,
		Playback: eng,
		Capture:  eng,
		Logger:   log,
		Notifier: channel.NotifierFunc(func(ev channel.StatusEvent) {
			select {
			case events <- ev:
			default:
			}
		}),
		Format: wave.Format{
			SampleRate:    cfg.Audio.SampleRate,
			Channels:      cfg.Audio.Channels,
			BitsPerSample: cfg.Audio.BitsPerSample,
		},
		Resolver: storage.Resolver{
			AssetRoot:    cfg.Storage.AssetRoot,
			WritableRoot: cfg.Storage.Root,
			FallbackRoot: cfg.Storage.CacheRoot,
		},
	})
}

func printEvent(ev channel.StatusEvent) {
	e := log.Info().Str("channel", ev.ChannelID).Int("kind", int(ev.Kind))
	switch {
	case ev.HasCode:
		e = e.Int("code", ev.Code)
	case ev.HasValue:
		e = e.Float64("value", ev.Value)
	}
	switch ev.Kind {
	case channel.KindState:
		e.Stringer("state", channel.State(ev.Value)).Msg("State changed")
	case channel.KindDuration:
		e.Msg("Duration known")
	case channel.KindPosition:
		e.Msg("Position")
	case channel.KindError:
		e.Msg("Channel error")
	}
}
