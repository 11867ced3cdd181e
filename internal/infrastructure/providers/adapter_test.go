package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"
	"homehub/internal/core/services"
	"homehub/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type scriptedConn struct {
	creds   domain.Credentials
	devices []ports.VendorDevice
	events  chan ports.VendorEvent
	closed  chan struct{}
}

func newScriptedConn(creds domain.Credentials, devices ...ports.VendorDevice) *scriptedConn {
	return &scriptedConn{
		creds:   creds,
		devices: devices,
		events:  make(chan ports.VendorEvent, 8),
		closed:  make(chan struct{}),
	}
}

func (c *scriptedConn) Credentials() domain.Credentials { return c.creds }
func (c *scriptedConn) Devices(context.Context) ([]ports.VendorDevice, error) {
	return c.devices, nil
}
func (c *scriptedConn) Events() <-chan ports.VendorEvent { return c.events }
func (c *scriptedConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
		close(c.events)
	}
	return nil
}

// scriptedClient answers Authenticate and ResumeChallenge from a script.
type scriptedClient struct {
	authErr      error
	challenge    *ports.ChallengeError
	acceptedCode string
	lastCreds    domain.Credentials
	authCalls    int
}

func (c *scriptedClient) Authenticate(_ context.Context, creds domain.Credentials) (ports.VendorConn, error) {
	c.authCalls++
	c.lastCreds = creds
	if c.challenge != nil {
		return nil, c.challenge
	}
	if c.authErr != nil {
		return nil, c.authErr
	}
	return newScriptedConn(creds), nil
}

func (c *scriptedClient) ResumeChallenge(_ context.Context, state string, code string) (ports.VendorConn, error) {
	if code != c.acceptedCode {
		return nil, domain.ErrAuthRejected
	}
	return newScriptedConn(domain.Credentials{Username: c.lastCreds.Username, Token: "minted-" + state}), nil
}

type adapterFixture struct {
	adapter  *Adapter
	client   *scriptedClient
	registry *services.SessionRegistry
	relay    *services.EventRelay
	vault    *services.Vault
	creds    ports.CredentialRepository
	devices  ports.DeviceRepository
	events   ports.EventRepository
}

func newAdapterFixture(t *testing.T, provider domain.Provider) *adapterFixture {
	t.Helper()

	log := zaptest.NewLogger(t).Sugar()
	vault, err := services.NewVault("test-secret", services.VaultParams{Time: 1, Memory: 8 * 1024, Lanes: 1})
	require.NoError(t, err)

	client := &scriptedClient{acceptedCode: "123456"}
	registry := services.NewSessionRegistry(log)
	relay := services.NewEventRelay(16, log, nil)
	credRepo := memory.NewMemoryCredentialRepository()
	deviceRepo := memory.NewMemoryDeviceRepository()
	eventRepo := memory.NewMemoryEventRepository()

	adapter := newAdapter(provider, Deps{
		Client:      client,
		Vault:       vault,
		Registry:    registry,
		Relay:       relay,
		Credentials: credRepo,
		Devices:     deviceRepo,
		Events:      eventRepo,
		Logger:      log,
	})

	return &adapterFixture{
		adapter:  adapter,
		client:   client,
		registry: registry,
		relay:    relay,
		vault:    vault,
		creds:    credRepo,
		devices:  deviceRepo,
		events:   eventRepo,
	}
}

func TestAdapter_ConnectStoresEncryptedCredential(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderVacuum)
	ctx := context.Background()

	plaintext := domain.Credentials{Username: "alice", Password: "hunter2"}
	require.NoError(t, fx.adapter.Connect(ctx, "u1", plaintext))

	assert.True(t, fx.adapter.IsConnected("u1"))

	stored, err := fx.creds.Get(ctx, "u1", domain.ProviderVacuum)
	require.NoError(t, err)
	assert.NotContains(t, stored.Envelope, "hunter2", "credential must be encrypted at rest")

	decrypted, err := fx.vault.Decrypt(stored.Envelope)
	require.NoError(t, err)
	assert.Contains(t, string(decrypted), "alice")
}

func TestAdapter_ChallengeFlow(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderDoorbell)
	ctx := context.Background()
	fx.client.challenge = &ports.ChallengeError{State: "ch_42"}

	err := fx.adapter.Connect(ctx, "u1", domain.Credentials{Username: "alice", Password: "pw"})
	assert.ErrorIs(t, err, domain.ErrChallengeRequired)
	assert.False(t, fx.adapter.IsConnected("u1"))

	_, err = fx.creds.Get(ctx, "u1", domain.ProviderDoorbell)
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound,
		"nothing is persisted until the exchange completes")

	// Wrong code keeps the challenge answerable.
	err = fx.adapter.SubmitChallenge(ctx, "u1", "000000")
	assert.ErrorIs(t, err, domain.ErrAuthRejected)

	require.NoError(t, fx.adapter.SubmitChallenge(ctx, "u1", "123456"))
	assert.True(t, fx.adapter.IsConnected("u1"))

	stored, err := fx.creds.Get(ctx, "u1", domain.ProviderDoorbell)
	require.NoError(t, err)
	decrypted, err := fx.vault.Decrypt(stored.Envelope)
	require.NoError(t, err)
	assert.Contains(t, string(decrypted), "minted-ch_42",
		"the vendor token from the exchange is what gets stored")

	// The consumed challenge is gone.
	err = fx.adapter.SubmitChallenge(ctx, "u1", "123456")
	assert.ErrorIs(t, err, domain.ErrNoPendingChallenge)
}

func TestAdapter_SubmitChallengeWithoutPending(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderDoorbell)

	err := fx.adapter.SubmitChallenge(context.Background(), "u1", "123456")
	assert.ErrorIs(t, err, domain.ErrNoPendingChallenge)
}

func TestAdapter_CancelChallenge(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderDoorbell)
	ctx := context.Background()
	fx.client.challenge = &ports.ChallengeError{State: "ch_42"}

	err := fx.adapter.Connect(ctx, "u1", domain.Credentials{Username: "alice", Password: "pw"})
	assert.ErrorIs(t, err, domain.ErrChallengeRequired)

	require.NoError(t, fx.adapter.CancelChallenge(ctx, "u1"))

	err = fx.adapter.SubmitChallenge(ctx, "u1", "123456")
	assert.ErrorIs(t, err, domain.ErrNoPendingChallenge)

	err = fx.adapter.CancelChallenge(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNoPendingChallenge)
}

func TestAdapter_StoredCredentialReconnect(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderVacuum)
	ctx := context.Background()

	require.NoError(t, fx.adapter.Connect(ctx, "u1", domain.Credentials{Username: "alice", Password: "pw"}))
	fx.registry.Remove("u1", domain.ProviderVacuum).Close()

	ok, err := fx.adapter.ConnectWithStoredCredentials(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, fx.adapter.IsConnected("u1"))
	assert.Equal(t, "alice", fx.client.lastCreds.Username)
}

func TestAdapter_StoredCredentialRejectionIsNotAnError(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderVacuum)
	ctx := context.Background()

	require.NoError(t, fx.adapter.Connect(ctx, "u1", domain.Credentials{Username: "alice", Password: "pw"}))
	fx.registry.Remove("u1", domain.ProviderVacuum).Close()

	fx.client.authErr = domain.ErrAuthRejected
	ok, err := fx.adapter.ConnectWithStoredCredentials(ctx, "u1")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = fx.creds.Get(ctx, "u1", domain.ProviderVacuum)
	assert.NoError(t, err, "a vendor rejection never deletes the stored credential")
}

func TestAdapter_StoredCredentialChallengeCountsAsRejection(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderDoorbell)
	ctx := context.Background()

	require.NoError(t, fx.adapter.Connect(ctx, "u1", domain.Credentials{Username: "alice", Password: "pw"}))
	fx.registry.Remove("u1", domain.ProviderDoorbell).Close()

	fx.client.challenge = &ports.ChallengeError{State: "ch_silent"}
	ok, err := fx.adapter.ConnectWithStoredCredentials(ctx, "u1")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestAdapter_StoredCredentialVendorOutageIsAnError(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderVacuum)
	ctx := context.Background()

	require.NoError(t, fx.adapter.Connect(ctx, "u1", domain.Credentials{Username: "alice", Password: "pw"}))
	fx.registry.Remove("u1", domain.ProviderVacuum).Close()

	fx.client.authErr = domain.ErrVendorUnavailable
	ok, err := fx.adapter.ConnectWithStoredCredentials(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrVendorUnavailable)
	assert.False(t, ok)
}

func TestAdapter_ReconnectWithoutCredential(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderVacuum)

	ok, err := fx.adapter.ConnectWithStoredCredentials(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
	assert.False(t, ok)
}

func TestAdapter_CorruptEnvelopeFailsClosed(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderVacuum)
	ctx := context.Background()

	require.NoError(t, fx.creds.Upsert(ctx, &domain.StoredCredential{
		UserID:   "u1",
		Provider: domain.ProviderVacuum,
		Envelope: "not:a:valid:envelope",
		Version:  1,
	}))

	ok, err := fx.adapter.ConnectWithStoredCredentials(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrDecryptionFailed)
	assert.False(t, ok)
	assert.Equal(t, 0, fx.client.authCalls, "an undecryptable credential never reaches the vendor")
}

func TestAdapter_DisconnectDeletesCredential(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderVacuum)
	ctx := context.Background()

	require.NoError(t, fx.adapter.Connect(ctx, "u1", domain.Credentials{Username: "alice", Password: "pw"}))
	require.NoError(t, fx.adapter.Disconnect(ctx, "u1"))

	assert.False(t, fx.adapter.IsConnected("u1"))
	_, err := fx.creds.Get(ctx, "u1", domain.ProviderVacuum)
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

	err = fx.adapter.Disconnect(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestAdapter_ConnectSupersedesExistingSession(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderVacuum)
	ctx := context.Background()

	require.NoError(t, fx.adapter.Connect(ctx, "u1", domain.Credentials{Username: "alice", Password: "pw"}))
	first := fx.registry.Get("u1", domain.ProviderVacuum)

	require.NoError(t, fx.adapter.Connect(ctx, "u1", domain.Credentials{Username: "alice", Password: "pw2"}))
	second := fx.registry.Get("u1", domain.ProviderVacuum)

	assert.NotSame(t, first, second)
	firstConn := first.Conn.(*scriptedConn)
	select {
	case <-firstConn.closed:
	case <-time.After(time.Second):
		t.Fatal("superseded vendor connection was not closed")
	}
}

func TestAdapter_DeviceDiscoveryAndEventPump(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderVacuum)
	ctx := context.Background()

	conn := newScriptedConn(
		domain.Credentials{Username: "alice", Token: "tok"},
		ports.VendorDevice{ExternalID: "robot-1", Name: "Living Room", Model: "RX-9", Status: "docked"},
	)
	fx.client.challenge = nil
	sub, err := fx.relay.Subscribe("u1")
	require.NoError(t, err)
	defer fx.relay.Unsubscribe(sub.Token)

	require.NoError(t, fx.adapter.establish(ctx, "u1", conn))

	discovered := <-sub.Events
	assert.Equal(t, domain.EventDeviceDiscovered, discovered.Type)

	device, err := fx.devices.GetByExternalID(ctx, "u1", domain.ProviderVacuum, "robot-1")
	require.NoError(t, err)
	assert.Equal(t, "Living Room", device.Name)

	conn.events <- ports.VendorEvent{
		ExternalID: "robot-1",
		Type:       domain.EventVacuumStatusChanged,
		Payload:    domain.VacuumStatusPayload{State: "cleaning", BatteryLevel: 80},
	}

	select {
	case event := <-sub.Events:
		assert.Equal(t, domain.EventVacuumStatusChanged, event.Type)
		assert.Equal(t, device.ID, event.DeviceID)
		assert.Contains(t, string(event.Payload), "cleaning")
	case <-time.After(time.Second):
		t.Fatal("pumped event never reached the relay")
	}

	stored, err := fx.events.ListRecent(ctx, "u1", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, stored)

	// Vendor drops the link: the session deregisters itself, the
	// credential stays.
	conn.Close()
	require.Eventually(t, func() bool {
		return !fx.adapter.IsConnected("u1")
	}, time.Second, 10*time.Millisecond)

	_, err = fx.creds.Get(ctx, "u1", domain.ProviderVacuum)
	assert.NoError(t, err)
}

func TestAdapter_UnknownDeviceEventDropped(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderVacuum)
	ctx := context.Background()

	conn := newScriptedConn(domain.Credentials{Username: "alice"})
	sub, err := fx.relay.Subscribe("u1")
	require.NoError(t, err)
	defer fx.relay.Unsubscribe(sub.Token)

	require.NoError(t, fx.adapter.establish(ctx, "u1", conn))

	conn.events <- ports.VendorEvent{
		ExternalID: "ghost-device",
		Type:       domain.EventVacuumStatusChanged,
		Payload:    domain.VacuumStatusPayload{State: "cleaning"},
	}
	conn.Close()

	require.Eventually(t, func() bool {
		return !fx.adapter.IsConnected("u1")
	}, time.Second, 10*time.Millisecond)

	select {
	case event, ok := <-sub.Events:
		if ok {
			t.Fatalf("event for unknown device must not be relayed, got %v", event.Type)
		}
	default:
	}
}

func TestAdapter_VendorErrorSurfacedOnConnect(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderVacuum)

	fx.client.authErr = errors.New("boom")
	err := fx.adapter.Connect(context.Background(), "u1", domain.Credentials{Username: "a", Password: "b"})
	assert.Error(t, err)
	assert.False(t, fx.adapter.IsConnected("u1"))
}

func TestAdapter_VendorPushUpdatesDeviceStatus(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderDoorbell)
	ctx := context.Background()

	conn := newScriptedConn(
		domain.Credentials{Username: "alice", Token: "tok"},
		ports.VendorDevice{ExternalID: "door-1", Name: "Front Door", Status: "online"},
	)
	sub, err := fx.relay.Subscribe("u1")
	require.NoError(t, err)
	defer fx.relay.Unsubscribe(sub.Token)

	require.NoError(t, fx.adapter.establish(ctx, "u1", conn))
	<-sub.Events // discovery

	device, err := fx.devices.GetByExternalID(ctx, "u1", domain.ProviderDoorbell, "door-1")
	require.NoError(t, err)
	require.Equal(t, "online", device.Status)
	firstSeen := device.LastSeen

	conn.events <- ports.VendorEvent{
		ExternalID: "door-1",
		Type:       domain.EventDeviceStatusChanged,
		Payload:    domain.DeviceStatusPayload{Status: "offline"},
	}
	select {
	case <-sub.Events:
	case <-time.After(time.Second):
		t.Fatal("status event never reached the relay")
	}

	device, err = fx.devices.GetByExternalID(ctx, "u1", domain.ProviderDoorbell, "door-1")
	require.NoError(t, err)
	assert.Equal(t, "offline", device.Status)
	assert.True(t, device.LastSeen.After(firstSeen) || device.LastSeen.Equal(firstSeen))

	// Events without status information keep the current one.
	conn.events <- ports.VendorEvent{
		ExternalID: "door-1",
		Type:       domain.EventMotionDetected,
		Payload:    domain.MotionDetectedPayload{Zone: "porch"},
	}
	select {
	case <-sub.Events:
	case <-time.After(time.Second):
		t.Fatal("motion event never reached the relay")
	}

	device, err = fx.devices.GetByExternalID(ctx, "u1", domain.ProviderDoorbell, "door-1")
	require.NoError(t, err)
	assert.Equal(t, "offline", device.Status)
}

func TestAdapter_VacuumStateBecomesDeviceStatus(t *testing.T) {
	fx := newAdapterFixture(t, domain.ProviderVacuum)
	ctx := context.Background()

	conn := newScriptedConn(
		domain.Credentials{Username: "alice", Token: "tok"},
		ports.VendorDevice{ExternalID: "robot-1", Name: "Living Room", Status: "docked"},
	)
	sub, err := fx.relay.Subscribe("u1")
	require.NoError(t, err)
	defer fx.relay.Unsubscribe(sub.Token)

	require.NoError(t, fx.adapter.establish(ctx, "u1", conn))
	<-sub.Events // discovery

	conn.events <- ports.VendorEvent{
		ExternalID: "robot-1",
		Type:       domain.EventVacuumStatusChanged,
		Payload:    domain.VacuumStatusPayload{State: "cleaning", BatteryLevel: 74},
	}
	select {
	case <-sub.Events:
	case <-time.After(time.Second):
		t.Fatal("state event never reached the relay")
	}

	device, err := fx.devices.GetByExternalID(ctx, "u1", domain.ProviderVacuum, "robot-1")
	require.NoError(t, err)
	assert.Equal(t, "cleaning", device.Status)
}
