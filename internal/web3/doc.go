// Package web3 defines the chain client abstraction used by the WAX tools:
// balance, account, ABI and table reads plus signed action pushes. Concrete
// RPC access lives in the wax subpackage; this package adds network
// definitions and client decorators for ABI caching and rate limiting.
package web3
