package ports

import (
	"context"

	"homehub/internal/core/domain"
)

// ProviderAdapter is the capability contract implemented once per vendor.
// Every state change the vendor reports is pushed to the event relay
// tagged with the owning user; adapters never fan out to transport
// subscribers directly.
type ProviderAdapter interface {
	Provider() domain.Provider

	// Connect authenticates against the vendor. On success the encrypted
	// credential is persisted and a live session registered. A
	// domain.ErrChallengeRequired return is an intermediate state, not a
	// failure: the adapter keeps transient challenge state that
	// SubmitChallenge resumes and CancelChallenge discards.
	Connect(ctx context.Context, userID domain.UserID, creds domain.Credentials) error
	SubmitChallenge(ctx context.Context, userID domain.UserID, code string) error
	CancelChallenge(ctx context.Context, userID domain.UserID) error

	// ConnectWithStoredCredentials decrypts the stored credential and
	// connects without user interaction. A vendor rejection yields
	// (false, nil); the credential record is left in place either way.
	ConnectWithStoredCredentials(ctx context.Context, userID domain.UserID) (bool, error)

	Disconnect(ctx context.Context, userID domain.UserID) error
	IsConnected(userID domain.UserID) bool
}

// VendorClient is the opaque vendor protocol client. The hub only knows
// how to authenticate and how to drain the resulting connection.
type VendorClient interface {
	// Authenticate may return a *ChallengeError when the vendor demands a
	// second factor; the embedded state resumes the exchange.
	Authenticate(ctx context.Context, creds domain.Credentials) (VendorConn, error)
	ResumeChallenge(ctx context.Context, state string, code string) (VendorConn, error)
}

// ChallengeError carries the vendor's transient two-factor state.
type ChallengeError struct {
	State string
}

func (e *ChallengeError) Error() string { return domain.ErrChallengeRequired.Error() }
func (e *ChallengeError) Is(target error) bool {
	return target == domain.ErrChallengeRequired
}

// VendorConn is one live authenticated link to a vendor for one user.
type VendorConn interface {
	// Credentials returns the credentials worth persisting for silent
	// reconnects (vendors typically mint a long-lived token at login).
	Credentials() domain.Credentials
	Devices(ctx context.Context) ([]VendorDevice, error)
	// Events yields vendor pushes until the connection closes.
	Events() <-chan VendorEvent
	Close() error
}

type VendorDevice struct {
	ExternalID string
	Name       string
	Model      string
	Status     string
}

// VendorEvent is a single vendor push, decoded into one of the domain
// payload shapes at the client boundary.
type VendorEvent struct {
	ExternalID string
	Type       domain.EventType
	Payload    interface{}
	// StreamURL is the vendor's short-lived live media URL, set on ring
	// events. It stays hub-internal and never reaches clients.
	StreamURL string
}

// EventRelay fans provider events out to live subscribers scoped to the
// owning user. Delivery is best-effort and non-blocking.
type EventRelay interface {
	Publish(userID domain.UserID, event *domain.Event)
	Subscribe(userID domain.UserID) (*Subscription, error)
	Unsubscribe(token string)
}

// Subscription is one live subscriber's bounded event feed. Events is
// closed on Unsubscribe.
type Subscription struct {
	Token  string
	UserID domain.UserID
	Events <-chan *domain.Event
}
