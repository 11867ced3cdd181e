package providers

import (
	"context"
	"encoding/json"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"
	"homehub/internal/core/services"
	"homehub/internal/infrastructure/streaming"
)

// NewDoorbellAdapter wires the video doorbell integration. Ring events
// get a live stream session attached before they reach subscribers, so
// a client can start playback straight from the push it receives; the
// recorder mirrors the vendor's feed into the session directory in the
// background.
func NewDoorbellAdapter(deps Deps, streams *services.StreamService, recorder *streaming.Recorder, recordWindow time.Duration) ports.ProviderAdapter {
	deps.Enrich = func(ctx context.Context, userID domain.UserID, device *domain.Device, event *domain.Event, vendorEvent ports.VendorEvent) error {
		if event.Type != domain.EventDoorbellRang {
			return nil
		}

		session, err := streams.CreateSession(ctx, userID, device.ID, domain.ProviderDoorbell)
		if err != nil {
			return err
		}

		if vendorEvent.StreamURL != "" {
			go recorder.Record(context.Background(), vendorEvent.StreamURL, session.Dir, recordWindow)
		}

		var payload domain.DoorbellRangPayload
		if len(event.Payload) > 0 {
			if err := json.Unmarshal(event.Payload, &payload); err != nil {
				payload = domain.DoorbellRangPayload{}
			}
		}
		payload.StreamSessionID = string(session.ID)

		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		event.Payload = raw
		return nil
	}

	return newAdapter(domain.ProviderDoorbell, deps)
}
