package media

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestOpenAudio(t *testing.T) {
	s, err := Open(Options{Audio: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tracks := s.Tracks()
	if len(tracks) != 1 || tracks[0].Kind() != webrtc.RTPCodecTypeAudio {
		t.Fatalf("tracks = %v", tracks)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOpenWithoutKinds(t *testing.T) {
	_, err := Open(Options{})
	if !errors.Is(err, ErrMediaUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
