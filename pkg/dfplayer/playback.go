package dfplayer

import (
	"context"
	"sync"
)

// PlaybackHandle waits for a specific playback to finish.
type PlaybackHandle struct {
	Device Device
	Track  uint16
	Advert bool

	done chan struct{}
	once sync.Once
	err  error
}

func newPlaybackHandle(dev Device, track uint16, advert bool) *PlaybackHandle {
	return &PlaybackHandle{Device: dev, Track: track, Advert: advert, done: make(chan struct{})}
}

// Done is closed when the playback is resolved.
func (h *PlaybackHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns nil if the playback finished, ErrSuperseded if it was
// preempted by another play command, or the failure.
// It must be called after Done is closed.
func (h *PlaybackHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait waits until the playback is resolved or ctx is done.
// Returning on ctx doesn't affect the playback.
func (h *PlaybackHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *PlaybackHandle) resolve(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// playbackTracker correlates TrackDone events with the last play commands.
// It's only accessed from the Link loop.
type playbackTracker struct {
	track  *PlaybackHandle
	advert *PlaybackHandle
}

// supersede resolves the handles a new play command replaces, whether or
// not the device acknowledges it. A regular track also stops the advert.
func (t *playbackTracker) supersede(advert bool) {
	if t.advert != nil {
		t.advert.resolve(ErrSuperseded)
		t.advert = nil
	}
	if !advert && t.track != nil {
		t.track.resolve(ErrSuperseded)
		t.track = nil
	}
}

func (t *playbackTracker) expect(h *PlaybackHandle) {
	t.supersede(h.Advert)
	if h.Advert {
		t.advert = h
	} else {
		t.track = h
	}
}

func (t *playbackTracker) trackDone(ev TrackDone) bool {
	if t.advert != nil {
		t.advert.resolve(nil)
		t.advert = nil
		return true
	}
	if h := t.track; h != nil && h.Device == ev.Device && h.Track == ev.Track {
		h.resolve(nil)
		t.track = nil
		return true
	}
	return false
}

func (t *playbackTracker) abort(err error) {
	for _, h := range []*PlaybackHandle{t.track, t.advert} {
		if h != nil {
			h.resolve(err)
		}
	}
	t.track, t.advert = nil, nil
}
