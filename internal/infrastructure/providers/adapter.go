package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"
	"homehub/internal/core/services"
	"homehub/pkg/utils"

	"go.uber.org/zap"
)

// ConnectionMetrics receives session lifecycle counters and vendor call
// timings; nil is allowed.
type ConnectionMetrics interface {
	SessionOpened(provider string)
	SessionClosed(provider string)
	RecordVendorCall(provider, operation string, duration time.Duration)
}

// pendingChallenge is the transient two-factor state held between
// Connect and SubmitChallenge. It lives only in memory; cancelling or
// restarting the process discards it.
type pendingChallenge struct {
	creds     domain.Credentials
	state     string
	createdAt time.Time
}

// EnrichFunc lets a concrete adapter decorate an event before it is
// stored and published. The doorbell adapter uses it to attach a live
// stream session to ring events.
type EnrichFunc func(ctx context.Context, userID domain.UserID, device *domain.Device, event *domain.Event, vendorEvent ports.VendorEvent) error

// Deps carries everything an adapter needs. All fields except Metrics
// and Enrich are required.
type Deps struct {
	Client   ports.VendorClient
	Vault    *services.Vault
	Registry *services.SessionRegistry
	Relay    ports.EventRelay

	Credentials ports.CredentialRepository
	Devices     ports.DeviceRepository
	Events      ports.EventRepository

	Logger  *zap.SugaredLogger
	Metrics ConnectionMetrics
	Enrich  EnrichFunc
}

// Adapter is the shared ProviderAdapter implementation. Vendor-specific
// behavior lives in the injected VendorClient and the Enrich hook; the
// session lifecycle, credential persistence and two-factor state machine
// are identical across vendors.
type Adapter struct {
	provider domain.Provider
	deps     Deps

	challengeMu sync.Mutex
	challenges  map[domain.UserID]*pendingChallenge
}

func newAdapter(provider domain.Provider, deps Deps) *Adapter {
	return &Adapter{
		provider:   provider,
		deps:       deps,
		challenges: make(map[domain.UserID]*pendingChallenge),
	}
}

func (a *Adapter) Provider() domain.Provider { return a.provider }

// Connect authenticates with user-supplied credentials. A two-factor
// demand from the vendor parks the attempt as a pending challenge and
// surfaces domain.ErrChallengeRequired; nothing is persisted until the
// exchange completes.
func (a *Adapter) Connect(ctx context.Context, userID domain.UserID, creds domain.Credentials) error {
	unlock := a.deps.Registry.Lock(userID, a.provider)
	defer unlock()

	conn, err := a.authenticate(ctx, creds)
	if err != nil {
		var challenge *ports.ChallengeError
		if errors.As(err, &challenge) {
			a.setPendingChallenge(userID, &pendingChallenge{
				creds:     creds,
				state:     challenge.State,
				createdAt: time.Now(),
			})
			a.deps.Logger.Infow("vendor requested second factor",
				"provider", a.provider, "user_id", userID)
			return err
		}
		return err
	}

	return a.establish(ctx, userID, conn)
}

// SubmitChallenge resumes a pending two-factor exchange. A wrong code
// keeps the challenge pending so the user can try again.
func (a *Adapter) SubmitChallenge(ctx context.Context, userID domain.UserID, code string) error {
	unlock := a.deps.Registry.Lock(userID, a.provider)
	defer unlock()

	pending, ok := a.getPendingChallenge(userID)
	if !ok {
		return domain.ErrNoPendingChallenge
	}

	conn, err := a.resumeChallenge(ctx, pending.state, code)
	if err != nil {
		if errors.Is(err, domain.ErrAuthRejected) {
			a.deps.Logger.Infow("challenge code rejected",
				"provider", a.provider, "user_id", userID)
			return err
		}
		// Anything else invalidates the exchange; the user starts over.
		a.clearPendingChallenge(userID)
		return err
	}

	a.clearPendingChallenge(userID)
	return a.establish(ctx, userID, conn)
}

// CancelChallenge discards pending two-factor state. No session is
// created and no credential stored.
func (a *Adapter) CancelChallenge(ctx context.Context, userID domain.UserID) error {
	unlock := a.deps.Registry.Lock(userID, a.provider)
	defer unlock()

	if _, ok := a.getPendingChallenge(userID); !ok {
		return domain.ErrNoPendingChallenge
	}
	a.clearPendingChallenge(userID)

	a.deps.Logger.Infow("challenge cancelled", "provider", a.provider, "user_id", userID)
	return nil
}

// ConnectWithStoredCredentials performs a silent reconnect. A vendor
// rejection returns (false, nil) and keeps the stored credential, so a
// later manual connect still has material to work with. A two-factor
// demand counts as a rejection here: there is no user to answer it.
func (a *Adapter) ConnectWithStoredCredentials(ctx context.Context, userID domain.UserID) (bool, error) {
	unlock := a.deps.Registry.Lock(userID, a.provider)
	defer unlock()

	stored, err := a.deps.Credentials.Get(ctx, userID, a.provider)
	if err != nil {
		return false, err
	}

	plaintext, err := a.deps.Vault.Decrypt(stored.Envelope)
	if err != nil {
		return false, err
	}

	var creds domain.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return false, fmt.Errorf("%w: stored credential is not decodable", domain.ErrDecryptionFailed)
	}

	conn, err := a.authenticate(ctx, creds)
	if err != nil {
		if errors.Is(err, domain.ErrAuthRejected) || errors.Is(err, domain.ErrChallengeRequired) {
			return false, nil
		}
		return false, err
	}

	if err := a.establish(ctx, userID, conn); err != nil {
		return false, err
	}
	return true, nil
}

// Disconnect tears down the live session and deletes the stored
// credential. Explicit user intent is the only path that removes a
// credential record.
func (a *Adapter) Disconnect(ctx context.Context, userID domain.UserID) error {
	unlock := a.deps.Registry.Lock(userID, a.provider)
	defer unlock()

	a.clearPendingChallenge(userID)

	session := a.deps.Registry.Remove(userID, a.provider)
	if session != nil {
		if err := session.Close(); err != nil {
			a.deps.Logger.Warnw("failed closing vendor connection",
				"provider", a.provider, "user_id", userID, "error", err)
		}
		if a.deps.Metrics != nil {
			a.deps.Metrics.SessionClosed(string(a.provider))
		}
	}

	if err := a.deps.Credentials.Delete(ctx, userID, a.provider); err != nil &&
		!errors.Is(err, domain.ErrCredentialNotFound) {
		return err
	}

	if session == nil {
		return domain.ErrSessionNotFound
	}

	a.deps.Logger.Infow("disconnected", "provider", a.provider, "user_id", userID)
	return nil
}

func (a *Adapter) IsConnected(userID domain.UserID) bool {
	return a.deps.Registry.IsConnected(userID, a.provider)
}

// establish persists the connection's credentials, registers the
// session, syncs the device inventory and starts the event pump. Called
// with the (user, provider) key lock held.
func (a *Adapter) establish(ctx context.Context, userID domain.UserID, conn ports.VendorConn) error {
	plaintext, err := json.Marshal(conn.Credentials())
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	envelope, err := a.deps.Vault.Encrypt(plaintext)
	if err != nil {
		conn.Close()
		return err
	}

	if err := a.deps.Credentials.Upsert(ctx, &domain.StoredCredential{
		UserID:    userID,
		Provider:  a.provider,
		Envelope:  envelope,
		Version:   1,
		UpdatedAt: time.Now(),
	}); err != nil {
		conn.Close()
		return err
	}

	session := &services.Session{
		UserID:      userID,
		Provider:    a.provider,
		Conn:        conn,
		ConnectedAt: time.Now(),
	}
	a.deps.Registry.Set(session)
	if a.deps.Metrics != nil {
		a.deps.Metrics.SessionOpened(string(a.provider))
	}

	if err := a.syncDevices(ctx, userID, conn); err != nil {
		a.deps.Logger.Warnw("device sync failed",
			"provider", a.provider, "user_id", userID, "error", err)
	}

	go a.pump(userID, session)

	a.deps.Logger.Infow("session established", "provider", a.provider, "user_id", userID)
	return nil
}

// syncDevices reconciles the vendor's device list into the repository,
// announcing newly discovered devices on the relay.
func (a *Adapter) syncDevices(ctx context.Context, userID domain.UserID, conn ports.VendorConn) error {
	vendorDevices, err := conn.Devices(ctx)
	if err != nil {
		return err
	}

	for _, vd := range vendorDevices {
		device, err := a.deps.Devices.GetByExternalID(ctx, userID, a.provider, vd.ExternalID)
		switch {
		case errors.Is(err, domain.ErrDeviceNotFound):
			device = &domain.Device{
				ID:         domain.DeviceID(utils.GenerateDeviceID()),
				UserID:     userID,
				Provider:   a.provider,
				ExternalID: vd.ExternalID,
				Name:       vd.Name,
				Config:     map[string]interface{}{"model": vd.Model},
				Status:     vd.Status,
				LastSeen:   time.Now(),
			}
			if err := a.deps.Devices.Upsert(ctx, device); err != nil {
				a.deps.Logger.Warnw("failed storing discovered device",
					"provider", a.provider, "external_id", vd.ExternalID, "error", err)
				continue
			}
			a.emit(ctx, userID, device, domain.EventDeviceDiscovered, domain.DeviceDiscoveredPayload{
				ExternalID: vd.ExternalID,
				Name:       vd.Name,
				Model:      vd.Model,
			}, ports.VendorEvent{})
		case err != nil:
			a.deps.Logger.Warnw("device lookup failed",
				"provider", a.provider, "external_id", vd.ExternalID, "error", err)
		default:
			if err := a.deps.Devices.UpdateStatus(ctx, device.ID, vd.Status); err != nil {
				a.deps.Logger.Warnw("failed updating device status",
					"provider", a.provider, "device_id", device.ID, "error", err)
			}
		}
	}
	return nil
}

// pump drains vendor pushes for the lifetime of one session. When the
// vendor closes the link the session is deregistered, but the stored
// credential stays put: recovery is a manual reconnect, never automatic.
func (a *Adapter) pump(userID domain.UserID, session *services.Session) {
	ctx := context.Background()

	for ve := range session.Conn.Events() {
		a.handleVendorEvent(ctx, userID, ve)
	}

	if a.deps.Registry.RemoveSession(session) {
		if a.deps.Metrics != nil {
			a.deps.Metrics.SessionClosed(string(a.provider))
		}
		a.deps.Logger.Infow("vendor connection closed",
			"provider", a.provider, "user_id", userID)
	}
}

func (a *Adapter) handleVendorEvent(ctx context.Context, userID domain.UserID, ve ports.VendorEvent) {
	device, err := a.deps.Devices.GetByExternalID(ctx, userID, a.provider, ve.ExternalID)
	if err != nil {
		a.deps.Logger.Warnw("event for unknown device, dropping",
			"provider", a.provider, "external_id", ve.ExternalID, "type", ve.Type)
		return
	}

	if err := a.deps.Devices.UpdateStatus(ctx, device.ID, eventStatus(device, ve)); err != nil {
		a.deps.Logger.Warnw("failed refreshing device",
			"provider", a.provider, "device_id", device.ID, "error", err)
	}

	a.emit(ctx, userID, device, ve.Type, ve.Payload, ve)
}

// eventStatus derives the device status a vendor push implies. Events
// that carry no status information keep the current one, so the update
// still advances LastSeen.
func eventStatus(device *domain.Device, ve ports.VendorEvent) string {
	switch payload := ve.Payload.(type) {
	case domain.DeviceStatusPayload:
		return payload.Status
	case domain.VacuumStatusPayload:
		return payload.State
	default:
		return device.Status
	}
}

// emit encodes the payload, runs the enrich hook, appends the event to
// history and publishes it on the relay.
func (a *Adapter) emit(ctx context.Context, userID domain.UserID, device *domain.Device, eventType domain.EventType, payload interface{}, vendorEvent ports.VendorEvent) {
	raw, err := json.Marshal(payload)
	if err != nil {
		a.deps.Logger.Warnw("failed encoding event payload",
			"provider", a.provider, "type", eventType, "error", err)
		return
	}

	event := &domain.Event{
		ID:        utils.GenerateEventID(),
		UserID:    userID,
		DeviceID:  device.ID,
		Provider:  a.provider,
		Type:      eventType,
		Payload:   raw,
		CreatedAt: time.Now(),
	}

	if a.deps.Enrich != nil {
		if err := a.deps.Enrich(ctx, userID, device, event, vendorEvent); err != nil {
			a.deps.Logger.Warnw("event enrichment failed",
				"provider", a.provider, "type", eventType, "error", err)
		}
	}

	if err := a.deps.Events.Append(ctx, event); err != nil {
		a.deps.Logger.Warnw("failed storing event",
			"provider", a.provider, "type", eventType, "error", err)
	}

	a.deps.Relay.Publish(userID, event)
}

func (a *Adapter) setPendingChallenge(userID domain.UserID, pc *pendingChallenge) {
	a.challengeMu.Lock()
	defer a.challengeMu.Unlock()
	a.challenges[userID] = pc
}

func (a *Adapter) getPendingChallenge(userID domain.UserID) (*pendingChallenge, bool) {
	a.challengeMu.Lock()
	defer a.challengeMu.Unlock()
	pc, ok := a.challenges[userID]
	return pc, ok
}

func (a *Adapter) clearPendingChallenge(userID domain.UserID) {
	a.challengeMu.Lock()
	defer a.challengeMu.Unlock()
	delete(a.challenges, userID)
}

func (a *Adapter) authenticate(ctx context.Context, creds domain.Credentials) (ports.VendorConn, error) {
	start := time.Now()
	conn, err := a.deps.Client.Authenticate(ctx, creds)
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordVendorCall(string(a.provider), "authenticate", time.Since(start))
	}
	return conn, err
}

func (a *Adapter) resumeChallenge(ctx context.Context, state, code string) (ports.VendorConn, error) {
	start := time.Now()
	conn, err := a.deps.Client.ResumeChallenge(ctx, state, code)
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordVendorCall(string(a.provider), "resume_challenge", time.Since(start))
	}
	return conn, err
}
