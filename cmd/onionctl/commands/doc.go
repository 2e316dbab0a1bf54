// Package commands implements the onionctl command line: key generation,
// offline message sealing, path inspection and sending messages through
// the onion network.
package commands
