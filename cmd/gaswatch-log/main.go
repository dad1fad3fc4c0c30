// Command gaswatch-log is a tool for viewing and analyzing STOMP protocol
// captures written by gaswatch.
//
// Capture files are created by running gaswatch with -protocol-log.
//
// Usage:
//
//	gaswatch-log <command> [flags] <file.cbor>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSONL or CSV format
//	filter   Filter capture file and write to new file
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View all events
//	gaswatch-log view capture.cbor
//
//	# View only MESSAGE frames of one sensor with their bodies
//	gaswatch-log view -command MESSAGE -destination /topic/sensor/ASG-CO -body capture.cbor
//
//	# Export to CSV
//	gaswatch-log export -format csv -o capture.csv capture.cbor
//
//	# Keep one session and save it to a new file
//	gaswatch-log filter -conn-id abc12345 -o session.cbor capture.cbor
//
//	# Show statistics
//	gaswatch-log stats capture.cbor
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gaswatch/gaswatch-go/cmd/gaswatch-log/commands"
)

const usage = `gaswatch-log - gaswatch Protocol Capture Analyzer

Usage:
  gaswatch-log <command> [flags] <file.cbor>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSONL or CSV format
  filter   Filter capture file and write to new file
  stats    Show statistics about the capture file

Use "gaswatch-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `gaswatch-log %s - %s

Usage:
  gaswatch-log %s [flags] <file.cbor>

Flags:
`, name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

// capturePath parses args and returns the single capture file argument.
func capturePath(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) {
	fs := newFlagSet("view", "View capture file in human-readable format")

	layer := fs.String("layer", "", "Filter by layer (transport, frame, service)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, control, state, error)")
	destination := fs.String("destination", "", "Filter by destination prefix")
	command := fs.String("command", "", "Filter by STOMP command")
	body := fs.Bool("body", false, "Show frame bodies")

	path := capturePath(fs, args)

	filter := commands.ViewFilter{
		Destination: *destination,
		Command:     *command,
	}

	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}

	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}

	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, *body, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export capture file to JSONL or CSV format")

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path := capturePath(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter capture file and write to new file")

	output := fs.String("o", "", "Output file (required)")
	connID := fs.String("conn-id", "", "Filter by connection ID")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	layer := fs.String("layer", "", "Filter by layer (transport, frame, service)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, control, state, error)")
	destination := fs.String("destination", "", "Filter by destination prefix")
	command := fs.String("command", "", "Filter by STOMP command")

	path := capturePath(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	opts := commands.FilterOptions{
		Output:      *output,
		ConnID:      *connID,
		TimeStart:   *timeStart,
		TimeEnd:     *timeEnd,
		Layer:       *layer,
		Direction:   *direction,
		Category:    *category,
		Destination: *destination,
		Command:     *command,
	}

	n, err := commands.RunFilter(path, opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `gaswatch-log stats - Show statistics about the capture file

Usage:
  gaswatch-log stats <file.cbor>

`)
	}

	path := capturePath(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
