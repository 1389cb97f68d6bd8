// CLAUDE:SUMMARY Sentinel errors for the sgx service.
package sgx

import "errors"

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("sgx: invalid configuration")

// ErrNoLedger is returned by ledger-backed queries when the ledger is disabled.
var ErrNoLedger = errors.New("sgx: ledger disabled")

// ErrInvalidInput is returned when a day or range argument cannot be used.
var ErrInvalidInput = errors.New("sgx: invalid input")
