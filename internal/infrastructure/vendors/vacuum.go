package vendors

import (
	"context"
	"net/http"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"

	"go.uber.org/zap"
)

// VacuumClient talks to the robot vacuum vendor cloud. The vendor has a
// plain token login and no push channel, so the connection polls robot
// state and synthesizes status events on change.
type VacuumClient struct {
	rest         *restClient
	pollInterval time.Duration
	logger       *zap.SugaredLogger
}

func NewVacuumClient(baseURL string, pollInterval time.Duration, logger *zap.SugaredLogger) *VacuumClient {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &VacuumClient{
		rest:         newRESTClient(baseURL, 30*time.Second),
		pollInterval: pollInterval,
		logger:       logger,
	}
}

type vacuumLoginRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

type vacuumLoginResponse struct {
	Token string `json:"token"`
}

type vacuumRobot struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Model  string `json:"model"`
	Status string `json:"status"`
}

type vacuumState struct {
	State        string `json:"state"`
	BatteryLevel int    `json:"battery_level"`
	CleanedArea  int    `json:"cleaned_area"`
}

// Authenticate logs in, preferring a previously minted token when the
// credentials carry one. The vendor rotates the token on every login.
func (c *VacuumClient) Authenticate(ctx context.Context, creds domain.Credentials) (ports.VendorConn, error) {
	var resp vacuumLoginResponse
	req := vacuumLoginRequest{Username: creds.Username, Password: creds.Password, Token: creds.Token}
	if err := c.rest.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", "", req, &resp); err != nil {
		return nil, err
	}

	conn := &vacuumConn{
		client: c,
		creds: domain.Credentials{
			Username: creds.Username,
			Token:    resp.Token,
		},
		events: make(chan ports.VendorEvent, 16),
		done:   make(chan struct{}),
	}
	go conn.poll()
	return conn, nil
}

// ResumeChallenge exists to satisfy the contract; this vendor never
// issues challenges.
func (c *VacuumClient) ResumeChallenge(ctx context.Context, state, code string) (ports.VendorConn, error) {
	return nil, domain.ErrNoPendingChallenge
}

// vacuumConn is one authenticated vacuum link. Robot state is polled;
// the events channel closes when the token stops working or Close is
// called.
type vacuumConn struct {
	client *VacuumClient
	creds  domain.Credentials
	events chan ports.VendorEvent
	done   chan struct{}

	lastState map[string]vacuumState
}

func (c *vacuumConn) Credentials() domain.Credentials { return c.creds }

func (c *vacuumConn) Devices(ctx context.Context) ([]ports.VendorDevice, error) {
	var robots []vacuumRobot
	if err := c.client.rest.doJSON(ctx, http.MethodGet, "/api/v1/robots", c.creds.Token, nil, &robots); err != nil {
		return nil, err
	}

	devices := make([]ports.VendorDevice, 0, len(robots))
	for _, r := range robots {
		devices = append(devices, ports.VendorDevice{
			ExternalID: r.ID,
			Name:       r.Name,
			Model:      r.Model,
			Status:     r.Status,
		})
	}
	return devices, nil
}

func (c *vacuumConn) Events() <-chan ports.VendorEvent { return c.events }

func (c *vacuumConn) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return nil
}

func (c *vacuumConn) poll() {
	defer close(c.events)

	c.lastState = make(map[string]vacuumState)
	ticker := time.NewTicker(c.client.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if ok := c.pollOnce(); !ok {
				return
			}
		}
	}
}

// pollOnce fetches every robot's state and emits an event per change.
// Returns false when the token was rejected, which ends the connection.
func (c *vacuumConn) pollOnce() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var robots []vacuumRobot
	if err := c.client.rest.doJSON(ctx, http.MethodGet, "/api/v1/robots", c.creds.Token, nil, &robots); err != nil {
		if isAuthErr(err) {
			c.client.logger.Warnw("vacuum token rejected, closing connection")
			return false
		}
		c.client.logger.Warnw("vacuum poll failed", "error", err)
		return true
	}

	for _, robot := range robots {
		var state vacuumState
		if err := c.client.rest.doJSON(ctx, http.MethodGet, "/api/v1/robots/"+robot.ID+"/state", c.creds.Token, nil, &state); err != nil {
			c.client.logger.Warnw("vacuum state fetch failed", "robot_id", robot.ID, "error", err)
			continue
		}

		if prev, seen := c.lastState[robot.ID]; seen && prev == state {
			continue
		}
		c.lastState[robot.ID] = state

		select {
		case c.events <- ports.VendorEvent{
			ExternalID: robot.ID,
			Type:       domain.EventVacuumStatusChanged,
			Payload: domain.VacuumStatusPayload{
				State:        state.State,
				BatteryLevel: state.BatteryLevel,
				Area:         state.CleanedArea,
			},
		}:
		case <-c.done:
			return false
		}
	}
	return true
}
