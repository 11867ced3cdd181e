package vendors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// doorbellVendor simulates the doorbell cloud for one account.
type doorbellVendor struct {
	twoFactor bool
	code      string
	pages     []doorbellEventPage
}

func (v *doorbellVendor) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/session", func(w http.ResponseWriter, r *http.Request) {
		var req doorbellLoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "alice" && req.Token != "tok-valid" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if v.twoFactor && req.Token == "" {
			json.NewEncoder(w).Encode(doorbellLoginResponse{
				TwoFactorRequired: true,
				ChallengeID:       "ch_1",
			})
			return
		}
		json.NewEncoder(w).Encode(doorbellLoginResponse{Token: "tok-valid"})
	})

	mux.HandleFunc("/v1/session/2fa", func(w http.ResponseWriter, r *http.Request) {
		var req doorbellChallengeRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ChallengeID != "ch_1" || req.Code != v.code {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(doorbellLoginResponse{Token: "tok-after-2fa"})
	})

	mux.HandleFunc("/v1/doorbells", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]doorbellDevice{
			{ID: "db-1", Name: "Front Door", Model: "DB-2000", Online: true},
			{ID: "db-2", Name: "Back Door", Model: "DB-2000", Online: false},
		})
	})

	mux.HandleFunc("/v1/events", func(w http.ResponseWriter, r *http.Request) {
		if len(v.pages) == 0 {
			// Long poll with nothing to report; the cursor carries over.
			json.NewEncoder(w).Encode(doorbellEventPage{Cursor: r.URL.Query().Get("cursor")})
			return
		}
		page := v.pages[0]
		v.pages = v.pages[1:]
		json.NewEncoder(w).Encode(page)
	})

	return mux
}

func newDoorbellFixture(t *testing.T, vendor *doorbellVendor) *DoorbellClient {
	t.Helper()
	server := httptest.NewServer(vendor.handler())
	t.Cleanup(server.Close)
	return NewDoorbellClient(server.URL, zaptest.NewLogger(t).Sugar())
}

func TestDoorbellClient_PlainLogin(t *testing.T) {
	client := newDoorbellFixture(t, &doorbellVendor{})

	conn, err := client.Authenticate(context.Background(), domain.Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "tok-valid", conn.Credentials().Token)
}

func TestDoorbellClient_WrongPassword(t *testing.T) {
	client := newDoorbellFixture(t, &doorbellVendor{})

	_, err := client.Authenticate(context.Background(), domain.Credentials{Username: "mallory", Password: "pw"})
	assert.ErrorIs(t, err, domain.ErrAuthRejected)
}

func TestDoorbellClient_TwoFactorExchange(t *testing.T) {
	client := newDoorbellFixture(t, &doorbellVendor{twoFactor: true, code: "123456"})
	ctx := context.Background()

	_, err := client.Authenticate(ctx, domain.Credentials{Username: "alice", Password: "pw"})
	require.Error(t, err)

	var challenge *ports.ChallengeError
	require.ErrorAs(t, err, &challenge)
	assert.ErrorIs(t, err, domain.ErrChallengeRequired)
	assert.Equal(t, "ch_1", challenge.State)

	// Wrong code: rejected, but the exchange stays answerable.
	_, err = client.ResumeChallenge(ctx, challenge.State, "000000")
	assert.ErrorIs(t, err, domain.ErrAuthRejected)

	conn, err := client.ResumeChallenge(ctx, challenge.State, "123456")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "tok-after-2fa", conn.Credentials().Token)
}

func TestDoorbellClient_TokenLoginSkipsTwoFactor(t *testing.T) {
	client := newDoorbellFixture(t, &doorbellVendor{twoFactor: true, code: "123456"})

	conn, err := client.Authenticate(context.Background(), domain.Credentials{Username: "alice", Token: "tok-valid"})
	require.NoError(t, err)
	defer conn.Close()
}

func TestDoorbellClient_Devices(t *testing.T) {
	client := newDoorbellFixture(t, &doorbellVendor{})

	conn, err := client.Authenticate(context.Background(), domain.Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	defer conn.Close()

	devices, err := conn.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "db-1", devices[0].ExternalID)
	assert.Equal(t, "online", devices[0].Status)
	assert.Equal(t, "offline", devices[1].Status)
}

func TestDoorbellClient_EventFeed(t *testing.T) {
	vendor := &doorbellVendor{
		pages: []doorbellEventPage{{
			Cursor: "c1",
			Events: []doorbellEvent{
				{DoorbellID: "db-1", Kind: "ring", StreamURL: "https://cdn.example.com/live/abc.m3u8"},
				{DoorbellID: "db-1", Kind: "motion", Zone: "porch", Confidence: 0.92, SnapshotID: "snap_1"},
				{DoorbellID: "db-1", Kind: "status", Status: "offline"},
				{DoorbellID: "db-1", Kind: "unknown-kind"},
			},
		}},
	}
	client := newDoorbellFixture(t, vendor)

	conn, err := client.Authenticate(context.Background(), domain.Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	defer conn.Close()

	collect := func() ports.VendorEvent {
		select {
		case ev := <-conn.Events():
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("event never arrived")
			return ports.VendorEvent{}
		}
	}

	ring := collect()
	assert.Equal(t, domain.EventDoorbellRang, ring.Type)
	assert.Equal(t, "https://cdn.example.com/live/abc.m3u8", ring.StreamURL)

	motion := collect()
	assert.Equal(t, domain.EventMotionDetected, motion.Type)
	payload := motion.Payload.(domain.MotionDetectedPayload)
	assert.Equal(t, "porch", payload.Zone)
	assert.Equal(t, "snap_1", payload.SnapshotID)

	status := collect()
	assert.Equal(t, domain.EventDeviceStatusChanged, status.Type)
	// The unknown kind was skipped; nothing further arrives immediately.
}

func TestMapDoorbellEvent_UnknownKindDropped(t *testing.T) {
	_, ok := mapDoorbellEvent(doorbellEvent{Kind: "firmware-update"})
	assert.False(t, ok)
}
