// Package coreerrors holds the sentinel errors named in §7's error taxonomy so callers
// can errors.Is/errors.As against a named condition instead of matching error strings.
//
// Grounded on pkg/ledger/errors.go's sentinel-error pattern.
package coreerrors

import "errors"

var (
	// ErrUnsupportedCounterparty is returned by a Chain Adapter's QueryProof when asked
	// to produce a proof shape for a counterparty family it does not implement.
	ErrUnsupportedCounterparty = errors.New("coreerrors: unsupported counterparty chain family")

	// ErrUnsupportedVariant is returned by a Chain Adapter's Encode when asked to encode
	// an IsmpMessage variant the target family's handler does not accept (e.g. GetResponse
	// on a Substrate destination).
	ErrUnsupportedVariant = errors.New("coreerrors: unsupported message variant for this chain family")

	// ErrHeightNotArchived is returned when a requested state-machine height has been
	// pruned from the queried node's archive.
	ErrHeightNotArchived = errors.New("coreerrors: requested height is not archived")

	// ErrMissingChainConfig is returned when a chain adapter is constructed without the
	// configuration it needs (RPC endpoint, chain id, contract address).
	ErrMissingChainConfig = errors.New("coreerrors: missing chain configuration")

	// ErrMissingSessionKey names a commitment with no session key entry in the key/value
	// store. The order executor takes the session key as an argument, and SessionStore.Get
	// reports a missing entry as (SessionKey{}, false, nil); neither returns it.
	ErrMissingSessionKey = errors.New("coreerrors: missing session key for commitment")

	// ErrDecodeFailure names a SCALE or storage-proof payload that fails to decode. The
	// decoders in this module report such failures with their own descriptive errors and
	// do not wrap it.
	ErrDecodeFailure = errors.New("coreerrors: failed to decode payload")

	// ErrNoViableBid is returned by the order executor when no polled bid meets the
	// validity rule for the order within the bid-collection window.
	ErrNoViableBid = errors.New("coreerrors: no viable bid found")

	// ErrSimulationFailed is returned when every ranked bid candidate fails simulation.
	ErrSimulationFailed = errors.New("coreerrors: all candidate bids failed simulation")

	// ErrChallengePeriodPending names a gated step polled before the destination's
	// challenge period has elapsed. The challenge-period waits in this module sleep until
	// the period has passed and do not return it.
	ErrChallengePeriodPending = errors.New("coreerrors: challenge period has not elapsed")

	// ErrNotFound names a key with no entry. The key/value stores report an absent key as
	// a nil value with a nil error and do not return it.
	ErrNotFound = errors.New("coreerrors: key not found")
)
