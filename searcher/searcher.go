// Package searcher implements the searcher side of the bundle auction.
// Here is a full flow of data through the client:
//
// caller builds a BundleRequest -> Client (or Broadcaster) validates required fields
// Client -> Relay signs and sends eth_callBundle / eth_sendBundle
// Relay -> relay endpoint authenticates the request with X-Flashbots-Signature
// Client -> PendingBundle is returned for every acknowledged submission
//
//	PendingBundle -> BlockSource is polled until the target block exists
//	PendingBundle -> Journal records the inclusion outcome
//
// Broadcaster does the same for several relays at once, one PendingBundle per relay.
package searcher

import "time"

const (
	CallBundleMethod     = "eth_callBundle"
	SendBundleMethod     = "eth_sendBundle"
	GetBundleStatsMethod = "flashbots_getBundleStatsV2"
	GetUserStatsMethod   = "flashbots_getUserStatsV2"

	FlashbotsSignatureHeader = "X-Flashbots-Signature"

	// DefaultPollInterval matches the default block poll cadence of the chain client.
	DefaultPollInterval = 7 * time.Second
)
