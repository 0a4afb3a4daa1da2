package chain

import "errors"

// ErrWrongNetwork is returned when the RPC node reports a chain id other
// than the configured one. A role bit read against the wrong chain is
// meaningless, so callers must treat this as an error state rather than a
// denial.
var ErrWrongNetwork = errors.New("connected to wrong network")

// ErrTxTimeout is returned when a submitted transaction was not mined
// within the configured wait bound. The transaction may still mine later;
// this is distinct from a failure.
var ErrTxTimeout = errors.New("timed out waiting for transaction")

// ErrTxReverted is returned when a transaction mined with a failed status.
var ErrTxReverted = errors.New("transaction reverted")

// ErrNoTransactor is returned from write operations when no signing key
// was configured.
var ErrNoTransactor = errors.New("no transactor key configured")
