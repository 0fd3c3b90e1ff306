package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/dougsko/x6d/pkg/client"
	"github.com/dougsko/x6d/pkg/protocol"
	"github.com/dougsko/x6d/pkg/regs"
)

var (
	socketPath = pflag.StringP("socket", "s", "/tmp/x6d.sock", "Unix socket path")
	timeout    = pflag.DurationP("timeout", "t", 5*time.Second, "Per-command timeout")
	raw        = pflag.BoolP("raw", "r", false, "Send the arguments as a raw protocol line")
)

func main() {
	pflag.Usage = showHelp
	pflag.Parse()

	if *socketPath == "" {
		fmt.Fprintf(os.Stderr, "Socket path is required\n")
		os.Exit(1)
	}

	args := pflag.Args()
	if len(args) == 0 {
		showHelp()
		return
	}

	c := client.NewSocketClient(*socketPath)
	c.SetTimeout(*timeout)

	if err := run(c, os.Stdout, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *client.SocketClient, w io.Writer, args []string) error {
	if *raw {
		response, err := c.SendCommand(strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(w, response.String())
		return nil
	}

	switch strings.ToLower(args[0]) {
	case "status":
		status, err := c.GetStatus()
		if err != nil {
			return err
		}
		renderStatus(w, status)

	case "regs":
		entries, err := c.GetRegisters()
		if err != nil {
			return err
		}
		renderRegisters(w, entries)

	case "reg":
		if len(args) != 2 {
			return fmt.Errorf("usage: reg <index>")
		}
		n, err := strconv.ParseUint(args[1], 0, 8)
		if err != nil {
			return fmt.Errorf("invalid register index %q", args[1])
		}
		entry, err := c.GetRegister(regs.Index(n))
		if err != nil {
			return err
		}
		renderRegisters(w, []protocol.RegisterEntry{*entry})

	case "fields":
		names, err := c.GetFields()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(w, name)
		}

	case "set":
		if len(args) != 3 {
			return fmt.Errorf("usage: set <field> <value>")
		}
		value, err := strconv.ParseUint(args[2], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid value %q", args[2])
		}
		stored, err := c.SetField(args[1], uint32(value))
		if err != nil {
			return err
		}
		if stored != uint32(value) {
			fmt.Fprintf(w, "%s = %d (truncated from %d)\n", args[1], stored, value)
		} else {
			fmt.Fprintf(w, "%s = %d\n", args[1], stored)
		}

	case "freq":
		if len(args) != 3 {
			return fmt.Errorf("usage: freq <A|B> <hz>")
		}
		vfo, err := regs.ParseVFO(args[1])
		if err != nil {
			return err
		}
		hz, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid frequency %q", args[2])
		}
		if err := c.SetFrequency(vfo, uint32(hz)); err != nil {
			return err
		}
		fmt.Fprintf(w, "VFO %s: %d Hz (%s)\n", vfo, hz, regs.BandIndex(uint32(hz)))

	case "mode":
		if len(args) != 3 {
			return fmt.Errorf("usage: mode <A|B> <mode>")
		}
		vfo, err := regs.ParseVFO(args[1])
		if err != nil {
			return err
		}
		mode, err := regs.ParseMode(strings.ToUpper(args[2]))
		if err != nil {
			return err
		}
		if err := c.SetMode(vfo, mode); err != nil {
			return err
		}
		fmt.Fprintf(w, "VFO %s: %s\n", vfo, mode)

	case "vfo":
		if len(args) != 2 {
			return fmt.Errorf("usage: vfo <A|B>")
		}
		vfo, err := regs.ParseVFO(args[1])
		if err != nil {
			return err
		}
		if err := c.SelectVFO(vfo); err != nil {
			return err
		}
		fmt.Fprintf(w, "foreground VFO %s\n", vfo)

	case "ptt":
		if len(args) != 2 {
			return fmt.Errorf("usage: ptt <on|off>")
		}
		on, err := parseSwitch(args[1])
		if err != nil {
			return err
		}
		if err := c.SetPTT(on); err != nil {
			return err
		}
		fmt.Fprintf(w, "ptt %s\n", strings.ToLower(args[1]))

	case "tune":
		if err := c.Tune(); err != nil {
			return err
		}
		fmt.Fprintln(w, "tune requested")

	case "telemetry":
		telemetry, err := c.GetTelemetry()
		if err != nil {
			return err
		}
		renderTelemetry(w, telemetry)

	case "snapshot":
		reason := ""
		if len(args) > 1 {
			reason = strings.Join(args[1:], " ")
		}
		id, err := c.Snapshot(reason)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "snapshot %d stored\n", id)

	case "ping":
		if err := c.Ping(); err != nil {
			return err
		}
		fmt.Fprintln(w, "pong")

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func showHelp() {
	fmt.Println("x6ctl - x6d control tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command> [args]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	pflag.PrintDefaults()
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  status                    Daemon and device status")
	fmt.Println("  regs                      Dump the register table")
	fmt.Println("  reg <index>               Show one register")
	fmt.Println("  fields                    List settable fields")
	fmt.Println("  set <field> <value>       Write a named field")
	fmt.Println("  freq <A|B> <hz>           Tune a VFO")
	fmt.Println("  mode <A|B> <mode>         Change a VFO's mode")
	fmt.Println("  vfo <A|B>                 Select the foreground VFO")
	fmt.Println("  ptt <on|off>              Key or unkey the transmitter")
	fmt.Println("  tune                      Run an antenna tuner cycle")
	fmt.Println("  telemetry                 Latest telemetry reading")
	fmt.Println("  snapshot [reason]         Store the register table")
	fmt.Println("  ping                      Test connection")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s freq A 14074000\n", os.Args[0])
	fmt.Printf("  %s --raw SET:rf_gain:80\n", os.Args[0])
	fmt.Printf("  echo 'STATUS' | nc -U /tmp/x6d.sock\n")
}
