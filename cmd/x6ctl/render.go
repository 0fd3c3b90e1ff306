package main

import (
	"fmt"
	"io"

	"github.com/bndr/gotabulate"

	"github.com/dougsko/x6d/pkg/client"
	"github.com/dougsko/x6d/pkg/protocol"
)

func renderRegisters(w io.Writer, entries []protocol.RegisterEntry) {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{
			fmt.Sprint(e.Index),
			e.Name,
			fmt.Sprintf("0x%08X", e.Value),
			fmt.Sprint(e.Value),
		}
	}
	t := gotabulate.Create(rows)
	t.SetHeaders([]string{"Idx", "Name", "Hex", "Value"})
	t.SetAlign("left")
	fmt.Fprintln(w, t.Render("simple"))
}

func renderStatus(w io.Writer, s *protocol.Status) {
	rows := [][]string{
		{"Variant", s.Variant},
		{"Firmware", s.Firmware},
		{"Connected", fmt.Sprint(s.Connected)},
		{"Foreground", s.Foreground},
		{"Band", s.Band},
		{"Band policy", s.BandPolicy},
		{"Telemetry", fmt.Sprint(s.Telemetry)},
		{"ATU", s.ATUState},
		{"Uptime", s.Uptime},
		{"Version", s.Version},
	}
	t := gotabulate.Create(rows)
	t.SetAlign("left")
	fmt.Fprintln(w, t.Render("plain"))
}

func renderTelemetry(w io.Writer, tm *client.Telemetry) {
	if !tm.Enabled {
		fmt.Fprintln(w, "telemetry disabled")
		return
	}
	fmt.Fprintf(w, "frames %d, errors %d, restarts %d\n", tm.Stats.Frames, tm.Stats.Errors, tm.Stats.Restarts)
	if tm.Latest == nil {
		fmt.Fprintln(w, "no reading yet")
		return
	}

	l := tm.Latest
	rows := [][]string{
		{"Time", l.Time.Format("15:04:05.000")},
		{"TX", fmt.Sprint(l.TX)},
		{"Power", fmt.Sprintf("%.1f W", l.TxPower)},
		{"SWR", fmt.Sprintf("%.1f", l.SWR)},
		{"ALC", fmt.Sprintf("%.1f", l.ALC)},
		{"dBm", fmt.Sprint(l.DBm)},
		{"VExt", fmt.Sprintf("%.1f V", l.VExt)},
		{"VBat", fmt.Sprintf("%.1f V", l.VBat)},
		{"Battery", fmt.Sprintf("%d%%", l.BatCap)},
		{"ATU", fmt.Sprint(l.ATU)},
	}
	if l.Key != "" {
		rows = append(rows, []string{"Key", l.Key})
	}
	t := gotabulate.Create(rows)
	t.SetAlign("left")
	fmt.Fprintln(w, t.Render("plain"))
}
