package vendors

import (
	"context"
	"net/http"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"

	"go.uber.org/zap"
)

// DoorbellClient talks to the video doorbell vendor cloud. Logins may
// demand a second factor; accounts with 2FA enabled get a challenge id
// that must be answered with a one-time code before a session token is
// minted. Events arrive over a cursor-based long poll.
type DoorbellClient struct {
	rest   *restClient
	logger *zap.SugaredLogger
}

func NewDoorbellClient(baseURL string, logger *zap.SugaredLogger) *DoorbellClient {
	return &DoorbellClient{
		rest:   newRESTClient(baseURL, 45*time.Second),
		logger: logger,
	}
}

type doorbellLoginRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

type doorbellLoginResponse struct {
	Token             string `json:"token"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	ChallengeID       string `json:"challenge_id"`
}

type doorbellChallengeRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type doorbellDevice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Model    string `json:"model"`
	Online   bool   `json:"online"`
	Firmware string `json:"firmware"`
}

type doorbellEventPage struct {
	Cursor string          `json:"cursor"`
	Events []doorbellEvent `json:"events"`
}

type doorbellEvent struct {
	DoorbellID string  `json:"doorbell_id"`
	Kind       string  `json:"kind"`
	Zone       string  `json:"zone"`
	Confidence float64 `json:"confidence"`
	SnapshotID string  `json:"snapshot_id"`
	Status     string  `json:"status"`
	StreamURL  string  `json:"stream_url"`
}

func (c *DoorbellClient) Authenticate(ctx context.Context, creds domain.Credentials) (ports.VendorConn, error) {
	var resp doorbellLoginResponse
	req := doorbellLoginRequest{Username: creds.Username, Password: creds.Password, Token: creds.Token}
	if err := c.rest.doJSON(ctx, http.MethodPost, "/v1/session", "", req, &resp); err != nil {
		return nil, err
	}

	if resp.TwoFactorRequired {
		return nil, &ports.ChallengeError{State: resp.ChallengeID}
	}
	return c.newConn(creds.Username, resp.Token), nil
}

// ResumeChallenge answers a pending challenge with the user's one-time
// code. The vendor responds 401 to a wrong code, which surfaces as
// domain.ErrAuthRejected and leaves the challenge answerable again.
func (c *DoorbellClient) ResumeChallenge(ctx context.Context, state, code string) (ports.VendorConn, error) {
	var resp doorbellLoginResponse
	req := doorbellChallengeRequest{ChallengeID: state, Code: code}
	if err := c.rest.doJSON(ctx, http.MethodPost, "/v1/session/2fa", "", req, &resp); err != nil {
		return nil, err
	}
	return c.newConn("", resp.Token), nil
}

func (c *DoorbellClient) newConn(username, token string) *doorbellConn {
	conn := &doorbellConn{
		client: c,
		creds: domain.Credentials{
			Username: username,
			Token:    token,
		},
		events: make(chan ports.VendorEvent, 16),
		done:   make(chan struct{}),
	}
	go conn.longPoll()
	return conn
}

// doorbellConn is one authenticated doorbell link fed by the vendor's
// long-poll event feed.
type doorbellConn struct {
	client *DoorbellClient
	creds  domain.Credentials
	events chan ports.VendorEvent
	done   chan struct{}
}

func (c *doorbellConn) Credentials() domain.Credentials { return c.creds }

func (c *doorbellConn) Devices(ctx context.Context) ([]ports.VendorDevice, error) {
	var list []doorbellDevice
	if err := c.client.rest.doJSON(ctx, http.MethodGet, "/v1/doorbells", c.creds.Token, nil, &list); err != nil {
		return nil, err
	}

	devices := make([]ports.VendorDevice, 0, len(list))
	for _, d := range list {
		status := "offline"
		if d.Online {
			status = "online"
		}
		devices = append(devices, ports.VendorDevice{
			ExternalID: d.ID,
			Name:       d.Name,
			Model:      d.Model,
			Status:     status,
		})
	}
	return devices, nil
}

func (c *doorbellConn) Events() <-chan ports.VendorEvent { return c.events }

func (c *doorbellConn) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return nil
}

func (c *doorbellConn) longPoll() {
	defer close(c.events)

	cursor := ""
	for {
		select {
		case <-c.done:
			return
		default:
		}

		page, err := c.fetchPage(cursor)
		if err != nil {
			if isAuthErr(err) {
				c.client.logger.Warnw("doorbell token rejected, closing connection")
				return
			}
			c.client.logger.Warnw("doorbell event poll failed", "error", err)
			select {
			case <-c.done:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		cursor = page.Cursor

		for _, ev := range page.Events {
			vendorEvent, ok := mapDoorbellEvent(ev)
			if !ok {
				continue
			}
			select {
			case c.events <- vendorEvent:
			case <-c.done:
				return
			}
		}
	}
}

func (c *doorbellConn) fetchPage(cursor string) (*doorbellEventPage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Second)
	defer cancel()

	path := "/v1/events?wait=25"
	if cursor != "" {
		path += "&cursor=" + cursor
	}

	var page doorbellEventPage
	if err := c.client.rest.doJSON(ctx, http.MethodGet, path, c.creds.Token, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func mapDoorbellEvent(ev doorbellEvent) (ports.VendorEvent, bool) {
	switch ev.Kind {
	case "ring":
		return ports.VendorEvent{
			ExternalID: ev.DoorbellID,
			Type:       domain.EventDoorbellRang,
			Payload:    domain.DoorbellRangPayload{},
			StreamURL:  ev.StreamURL,
		}, true
	case "motion":
		return ports.VendorEvent{
			ExternalID: ev.DoorbellID,
			Type:       domain.EventMotionDetected,
			Payload: domain.MotionDetectedPayload{
				Zone:       ev.Zone,
				Confidence: ev.Confidence,
				SnapshotID: ev.SnapshotID,
			},
		}, true
	case "status":
		return ports.VendorEvent{
			ExternalID: ev.DoorbellID,
			Type:       domain.EventDeviceStatusChanged,
			Payload:    domain.DeviceStatusPayload{Status: ev.Status},
		}, true
	default:
		return ports.VendorEvent{}, false
	}
}
