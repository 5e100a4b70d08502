// Package endpoint defines the upstream gateway record the registry stores
// and the forwarder routes through, including its status lifecycle and
// base URL normalization rules.
package endpoint
