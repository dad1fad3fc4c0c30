// Package stomp implements the STOMP 1.2 text frame codec used on the
// telemetry channel.
//
// A frame is a command line, zero or more header lines, a blank line, the
// body and a terminating NUL byte:
//
//	SUBSCRIBE
//	id:sub-1
//	destination:/topic/sensor/ASG-CO/COM3/12345
//	ack:auto
//
//	^@
//
// A lone end-of-line is a heartbeat. Decoding is strict about the command
// and header syntax and lenient about line endings (CRLF is accepted).
package stomp
