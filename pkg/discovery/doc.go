// Package discovery finds the telemetry server on the local network.
//
// Servers advertise the DNS-SD service _gaswatch._tcp in the local domain.
// The advertised port is the WebSocket/HTTP port of the server. Optional TXT
// records:
//
//	api=<port>   HTTP collaborator port, when it differs from the service port
//	site=<name>  human-readable site name
//
// Discovery is a startup convenience only. Once a server is chosen the
// client never browses again; reconnects always go to the same address.
package discovery
