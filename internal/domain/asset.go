// Package domain defines the core data structures shared by the snipe engine.
package domain

import (
	"fmt"
	"time"
)

// Venue identifies a liquidity source where an asset can be bought or sold.
type Venue string

const (
	VenueRaydium  Venue = "raydium"
	VenuePumpFun  Venue = "pumpfun"
	VenueOrca     Venue = "orca"
	VenueSimulate Venue = "simulate"
)

// Asset identifies one tradeable token on one venue.
type Asset struct {
	Mint  string `json:"mint"`
	Venue Venue  `json:"venue"`
}

// String returns the string representation.
func (a Asset) String() string {
	return fmt.Sprintf("%s:%s", a.Venue, a.Mint)
}

// NewAssetEvent is the normalized form of a venue "new token" notification.
// Venue adapters resolve their raw payloads into this shape at the boundary;
// nothing downstream inspects raw payload fields.
type NewAssetEvent struct {
	Asset        Asset
	Originator   string // creator/authority address when the venue reports one
	DiscoveredAt time.Time
}
