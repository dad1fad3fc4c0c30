package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Client and server commands.
const (
	CommandConnect     = "CONNECT"
	CommandStomp       = "STOMP"
	CommandConnected   = "CONNECTED"
	CommandSend        = "SEND"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandAck         = "ACK"
	CommandNack        = "NACK"
	CommandBegin       = "BEGIN"
	CommandCommit      = "COMMIT"
	CommandAbort       = "ABORT"
	CommandDisconnect  = "DISCONNECT"
	CommandMessage     = "MESSAGE"
	CommandReceipt     = "RECEIPT"
	CommandError       = "ERROR"
)

// Well-known header names.
const (
	HeaderAcceptVersion = "accept-version"
	HeaderHost          = "host"
	HeaderHeartBeat     = "heart-beat"
	HeaderVersion       = "version"
	HeaderID            = "id"
	HeaderDestination   = "destination"
	HeaderSubscription  = "subscription"
	HeaderMessageID     = "message-id"
	HeaderAck           = "ack"
	HeaderMessage       = "message"
	HeaderContentType   = "content-type"
	HeaderReceipt       = "receipt"
)

// Protocol defaults.
const (
	Version          = "1.2"
	Subprotocol      = "v12.stomp"
	DefaultHost      = "/"
	DefaultHeartBeat = "10000,10000"
	AckAuto          = "auto"

	// NUL terminates every frame.
	NUL byte = 0x00
)

// Codec errors.
var (
	ErrEmptyFrame     = errors.New("stomp: empty frame")
	ErrInvalidCommand = errors.New("stomp: invalid command")
	ErrInvalidHeader  = errors.New("stomp: invalid header line")
)

var knownCommands = map[string]bool{
	CommandConnect: true, CommandStomp: true, CommandConnected: true,
	CommandSend: true, CommandSubscribe: true, CommandUnsubscribe: true,
	CommandAck: true, CommandNack: true, CommandBegin: true,
	CommandCommit: true, CommandAbort: true, CommandDisconnect: true,
	CommandMessage: true, CommandReceipt: true, CommandError: true,
}

// Headers holds frame headers.
type Headers map[string]string

// Get returns the header value, or "" if absent.
func (h Headers) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[key]
}

// Frame is a single STOMP frame. The zero Frame is a heartbeat.
type Frame struct {
	Command string
	Headers Headers
	Body    string
}

// IsHeartbeat reports whether f carries no command.
func (f Frame) IsHeartbeat() bool {
	return f.Command == ""
}

// Header returns a header value.
func (f Frame) Header(key string) string {
	return f.Headers.Get(key)
}

// String returns a one-line description for logs.
func (f Frame) String() string {
	if f.IsHeartbeat() {
		return "HEARTBEAT"
	}
	if dest := f.Header(HeaderDestination); dest != "" {
		return fmt.Sprintf("%s %s", f.Command, dest)
	}
	return f.Command
}

// Heartbeat returns an encoded heartbeat.
func Heartbeat() []byte {
	return []byte{'\n'}
}

// IsHeartbeat reports whether data is a bare heartbeat.
func IsHeartbeat(data []byte) bool {
	return len(bytes.Trim(data, "\r\n")) == 0
}

// Encode serializes f. Headers are written in key order.
func Encode(f Frame) []byte {
	if f.IsHeartbeat() {
		return Heartbeat()
	}

	escape := needsEscaping(f.Command)

	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')

	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := f.Headers[k]
		if escape {
			k, v = escapeValue(k), escapeValue(v)
		}
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(v)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.WriteString(f.Body)
	buf.WriteByte(NUL)
	return buf.Bytes()
}

// Decode parses a single frame. A heartbeat decodes to the zero Frame.
func Decode(data []byte) (Frame, error) {
	if IsHeartbeat(data) {
		return Frame{}, nil
	}

	// Strip the terminator and any EOLs the peer sent after it.
	if i := bytes.LastIndexByte(data, NUL); i >= 0 && len(bytes.Trim(data[i+1:], "\r\n")) == 0 {
		data = data[:i]
	}

	// Leading EOLs are heartbeats that preceded the frame.
	data = bytes.TrimLeft(data, "\r\n")

	text := string(data)
	cmdLine, rest, found := strings.Cut(text, "\n")
	command := strings.TrimSuffix(cmdLine, "\r")
	if command == "" {
		return Frame{}, ErrEmptyFrame
	}
	if !knownCommands[command] {
		return Frame{}, fmt.Errorf("%w: %q", ErrInvalidCommand, truncate(command, 32))
	}

	f := Frame{Command: command, Headers: Headers{}}
	if !found {
		return f, nil
	}

	unescape := needsEscaping(command)
	for {
		var line string
		var ok bool
		line, rest, ok = strings.Cut(rest, "\n")
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			if !ok {
				// Frame ended right after the headers.
				return f, nil
			}
			break
		}
		key, value, hasColon := strings.Cut(line, ":")
		if !hasColon || key == "" {
			return Frame{}, fmt.Errorf("%w: %q", ErrInvalidHeader, truncate(line, 64))
		}
		if unescape {
			var err error
			if key, err = unescapeValue(key); err != nil {
				return Frame{}, err
			}
			if value, err = unescapeValue(value); err != nil {
				return Frame{}, err
			}
		}
		// Repeated headers: the first occurrence wins.
		if _, dup := f.Headers[key]; !dup {
			f.Headers[key] = value
		}
		if !ok {
			return f, nil
		}
	}

	f.Body = rest
	return f, nil
}

// Connect builds the CONNECT frame.
func Connect(host, heartBeat string) Frame {
	return Frame{
		Command: CommandConnect,
		Headers: Headers{
			HeaderAcceptVersion: Version,
			HeaderHost:          host,
			HeaderHeartBeat:     heartBeat,
		},
	}
}

// Subscribe builds a SUBSCRIBE frame with automatic acknowledgement.
func Subscribe(id, destination string) Frame {
	return Frame{
		Command: CommandSubscribe,
		Headers: Headers{
			HeaderID:          id,
			HeaderDestination: destination,
			HeaderAck:         AckAuto,
		},
	}
}

// Unsubscribe builds an UNSUBSCRIBE frame.
func Unsubscribe(id string) Frame {
	return Frame{
		Command: CommandUnsubscribe,
		Headers: Headers{HeaderID: id},
	}
}

// Disconnect builds a DISCONNECT frame.
func Disconnect() Frame {
	return Frame{Command: CommandDisconnect, Headers: Headers{}}
}

// CONNECT and CONNECTED frames carry headers verbatim.
func needsEscaping(command string) bool {
	return command != CommandConnect && command != CommandConnected
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	"\r", `\r`,
	"\n", `\n`,
	":", `\c`,
)

func escapeValue(s string) string {
	return escaper.Replace(s)
}

func unescapeValue(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("%w: dangling escape", ErrInvalidHeader)
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case 'c':
			b.WriteByte(':')
		default:
			return "", fmt.Errorf("%w: undefined escape \\%c", ErrInvalidHeader, s[i])
		}
	}
	return b.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
