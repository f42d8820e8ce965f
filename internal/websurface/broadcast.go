package websurface

import (
	"context"
	"time"

	"github.com/phosphor-vj/phosphor/internal/audio"
)

// audioBroadcastInterval matches spec §4.7's "audio (broadcast at 10 Hz)".
const audioBroadcastInterval = 100 * time.Millisecond

// RunAudioBroadcast periodically pushes the latest audio features to every
// connected client until ctx is cancelled. snapshot is expected to be
// audio.Front.Snapshot, passed in to avoid this package depending on the
// capture front's lifecycle.
func (h *Hub) RunAudioBroadcast(ctx context.Context, snapshot func() audio.Features) {
	ticker := time.NewTicker(audioBroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.Broadcast(MsgAudio, snapshot()); err != nil {
				h.log.WithError(err).Debug("audio broadcast encode failed")
			}
		}
	}
}
