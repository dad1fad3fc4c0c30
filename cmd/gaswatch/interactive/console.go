// Package interactive provides the operator console of the gaswatch daemon.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/gaswatch/gaswatch-go/pkg/gas"
	"github.com/gaswatch/gaswatch-go/pkg/service"
)

// commandTimeout bounds one console command.
const commandTimeout = 10 * time.Second

// Monitor is the part of service.Monitor the console drives.
type Monitor interface {
	Status(ctx context.Context) (service.Status, error)
	Reconnect(ctx context.Context) error
	SetLamp(ctx context.Context, on bool) error
	SetMaster(ctx context.Context, enabled bool) error
	SetThresholds(ctx context.Context, sensorID string, set map[gas.Type]gas.Threshold) error
	ClearThresholds(ctx context.Context, sensorID string) error
	RenameSensor(ctx context.Context, serial, name string) error
}

var _ Monitor = (*service.Monitor)(nil)

// Console handles interactive mode for gaswatch.
type Console struct {
	mon Monitor
	rl  *readline.Instance
	out io.Writer
}

// New creates a console on the terminal.
func New(mon Monitor) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "gaswatch> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{mon: mon, rl: rl, out: rl.Stdout()}, nil
}

// newWithWriter creates a console without a terminal.
func newWithWriter(mon Monitor, out io.Writer) *Console {
	return &Console{mon: mon, out: out}
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use it for log output.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Run reads commands until quit, EOF or ctx is done. It calls cancel when
// the operator leaves.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if c.Execute(ctx, line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the operator asked to
// quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "status", "s":
		c.cmdStatus(ctx)

	case "sensors", "ls":
		c.cmdSensors(ctx)

	case "reconnect":
		c.report(c.mon.Reconnect(ctx), "Reconnecting")

	case "lamp":
		c.cmdSwitch(ctx, args, "lamp", c.mon.SetLamp)

	case "master":
		c.cmdSwitch(ctx, args, "master", c.mon.SetMaster)

	case "threshold", "th":
		c.cmdThreshold(ctx, args)

	case "rename":
		c.cmdRename(ctx, args)

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
gaswatch Commands:
  Monitoring:
    status                                  - Show session, verdict and lamp
    sensors                                 - Show sensors and their readings
    reconnect                               - Force a full resync

  Lamp:
    lamp on|off                             - Switch the lamp (off suppresses automatic control)
    master on|off                           - Enable or disable automatic lamp control

  Configuration:
    threshold <sensor-id> <gas> <values...> - Override one gas threshold
        symmetric gases: normal_min normal_max warning_min warning_max danger_min
        O2:              normal_min normal_max danger_min danger_max
    threshold clear <sensor-id>             - Drop all overrides of a sensor
    rename <serial> <name...>               - Set a sensor display name

  General:
    help                                    - Show this help
    quit                                    - Exit`)
}

func (c *Console) report(err error, done string) {
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, done)
}

func (c *Console) cmdStatus(ctx context.Context) {
	st, err := c.mon.Status(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	fmt.Fprintln(c.out, "\nMonitor Status:")
	fmt.Fprintln(c.out, "-------------------------------------------")
	fmt.Fprintf(c.out, "  Service:     %s\n", st.State)
	fmt.Fprintf(c.out, "  Session:     %s\n", st.Session)
	fmt.Fprintf(c.out, "  Connection:  %s", st.Connection)
	if st.Attempts > 0 {
		fmt.Fprintf(c.out, " (attempt %d)", st.Attempts)
	}
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  Sensors:     %d\n", len(st.Sensors))
	fmt.Fprintf(c.out, "  Verdict:     %s\n", verdictText(st))
	for _, p := range st.Verdict.Problems {
		fmt.Fprintf(c.out, "               - %s\n", p)
	}
	fmt.Fprintf(c.out, "  Lamp:        %s (master %s", onOff(st.Lamp.LampOn), onOff(st.Lamp.MasterEnabled))
	if st.Lamp.ManuallyDisabled {
		fmt.Fprint(c.out, ", manually disabled")
	}
	fmt.Fprintln(c.out, ")")

	if len(st.Fans) > 0 {
		ports := slices.Sorted(maps.Keys(st.Fans))
		fmt.Fprint(c.out, "  Fans:       ")
		for _, p := range ports {
			fmt.Fprintf(c.out, " %s=%s", p, onOff(st.Fans[p]))
		}
		fmt.Fprintln(c.out)
	}
}

func verdictText(st service.Status) string {
	switch {
	case st.Verdict.Dangerous:
		return "DANGER"
	case st.Verdict.HasWarning:
		return "WARNING"
	default:
		return "SAFE"
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (c *Console) cmdSensors(ctx context.Context) {
	st, err := c.mon.Status(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if len(st.Sensors) == 0 {
		fmt.Fprintln(c.out, "No sensors")
		return
	}

	fmt.Fprintf(c.out, "\nSensors (%d):\n", len(st.Sensors))
	fmt.Fprintln(c.out, "-------------------------------------------")
	for _, s := range st.Sensors {
		d := s.Sensor
		fmt.Fprintf(c.out, "  %s\n", d.Label())
		fmt.Fprintf(c.out, "      ID: %s  Serial: %s\n", d.ID(), d.Serial)
		if !s.HasReading {
			fmt.Fprintln(c.out, "      No reading yet")
			continue
		}
		for _, g := range d.Gases() {
			fmt.Fprintf(c.out, "      %-4s %8s  %s\n", g, gas.DisplayValue(g, s.Reading.Value(g)), s.Statuses[g])
		}
		if s.Reading.GasID != "" {
			fmt.Fprintf(c.out, "      Gas: %s\n", gas.GasIDName(s.Reading.GasID))
		}
		if s.Alarm != "" {
			fmt.Fprintf(c.out, "      Alarm: %s\n", s.Alarm)
		}
		if s.Advisory != "" {
			fmt.Fprintf(c.out, "      Server: %s (%s)\n", s.Advisory, s.AdvisoryLevel)
		}
	}
}

func (c *Console) cmdSwitch(ctx context.Context, args []string, what string, fn func(context.Context, bool) error) {
	if len(args) != 1 {
		fmt.Fprintf(c.out, "Usage: %s on|off\n", what)
		return
	}
	var on bool
	switch strings.ToLower(args[0]) {
	case "on", "1", "true":
		on = true
	case "off", "0", "false":
	default:
		fmt.Fprintf(c.out, "Usage: %s on|off\n", what)
		return
	}
	c.report(fn(ctx, on), fmt.Sprintf("%s %s", strings.ToUpper(what[:1])+what[1:], onOff(on)))
}

func (c *Console) cmdThreshold(ctx context.Context, args []string) {
	if len(args) == 2 && strings.ToLower(args[0]) == "clear" {
		c.report(c.mon.ClearThresholds(ctx, args[1]), "Overrides cleared for "+args[1])
		return
	}
	if len(args) < 3 {
		fmt.Fprintln(c.out, "Usage: threshold <sensor-id> <gas> <values...> | threshold clear <sensor-id>")
		return
	}

	sensorID := args[0]
	g, ok := gas.ParseType(args[1])
	if !ok {
		fmt.Fprintf(c.out, "Unknown gas: %s\n", args[1])
		return
	}
	th, err := parseThreshold(g, args[2:])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	c.report(c.mon.SetThresholds(ctx, sensorID, map[gas.Type]gas.Threshold{g: th}),
		fmt.Sprintf("%s threshold set for %s", g, sensorID))
}

// parseThreshold reads the bands of one gas in the order the help text
// lists them. The unit is the factory unit.
func parseThreshold(g gas.Type, args []string) (gas.Threshold, error) {
	want := 5
	if g.Asymmetric() {
		want = 4
	}
	if len(args) != want {
		return gas.Threshold{}, fmt.Errorf("%s needs %d values, got %d", g, want, len(args))
	}

	vals := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return gas.Threshold{}, fmt.Errorf("invalid value %q", a)
		}
		vals[i] = v
	}

	th := gas.Threshold{
		NormalMin: vals[0],
		NormalMax: vals[1],
		Unit:      gas.DefaultThresholds()[g].Unit,
	}
	if g.Asymmetric() {
		th.DangerMin, th.DangerMax = vals[2], vals[3]
	} else {
		th.WarningMin, th.WarningMax, th.DangerMin = vals[2], vals[3], vals[4]
	}
	return th, nil
}

func (c *Console) cmdRename(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: rename <serial> <name...>")
		return
	}
	name := strings.Join(args[1:], " ")
	c.report(c.mon.RenameSensor(ctx, args[0], name), fmt.Sprintf("Sensor %s renamed to %q", args[0], name))
}
