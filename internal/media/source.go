// Package media provides the local outbound tracks of a call and a reader
// for inbound ones. There is no device capture: the source sends Opus
// silence so a call carries real RTP without a microphone.
package media

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

var ErrMediaUnavailable = errors.New("local media unavailable")

const frameDuration = 20 * time.Millisecond

// opusSilence is a single 20ms Opus frame encoding silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

type Options struct {
	Audio bool
}

// Source owns the local tracks and the goroutines feeding them.
type Source struct {
	tracks []webrtc.TrackLocal
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Open acquires the local tracks. It fails with ErrMediaUnavailable when no
// track can be produced.
func Open(opts Options) (*Source, error) {
	if !opts.Audio {
		return nil, fmt.Errorf("%w: no media kinds enabled", ErrMediaUnavailable)
	}

	stream := "peercall-" + uuid.NewString()
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", stream,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	s := &Source{tracks: []webrtc.TrackLocal{audio}, done: make(chan struct{})}
	s.wg.Add(1)
	go s.feed(audio, opusSilence)
	return s, nil
}

func (s *Source) Tracks() []webrtc.TrackLocal {
	return s.tracks
}

// Close stops the feeders. It is safe to call more than once.
func (s *Source) Close() error {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

func (s *Source) feed(track *webrtc.TrackLocalStaticSample, frame []byte) {
	defer s.wg.Done()
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			// Unbound tracks discard samples.
			_ = track.WriteSample(pionmedia.Sample{Data: frame, Duration: frameDuration})
		}
	}
}

// Drain reads a remote track until it ends and returns the packet count.
func Drain(track *webrtc.TrackRemote, logger *slog.Logger) int {
	var packets int
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			logger.Debug("remote track ended", "kind", track.Kind(), "packets", packets, "err", err)
			return packets
		}
		packets++
	}
}
