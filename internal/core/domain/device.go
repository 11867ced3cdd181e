package domain

import "time"

type Provider string

const (
	ProviderVacuum   Provider = "vacuum"
	ProviderDoorbell Provider = "doorbell"
)

// Providers lists every vendor integration the hub knows about.
var Providers = []Provider{ProviderVacuum, ProviderDoorbell}

func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

type DeviceID string

type Device struct {
	ID         DeviceID
	UserID     UserID
	Provider   Provider
	ExternalID string // vendor-assigned, empty until discovered
	Name       string
	Config     map[string]interface{}
	Status     string
	LastSeen   time.Time
}
