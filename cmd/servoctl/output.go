package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pushrod/servoctl/internal/hw/serial"
	"github.com/pushrod/servoctl/internal/logic/command"
)

var (
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	bold   = lipgloss.NewStyle().Bold(true)
)

func printAck(w io.Writer, r command.Request, ack command.Ack) {
	if ack.Skipped {
		fmt.Fprintln(w, yellow.Render("-")+" "+r.String()+dim.Render("  speed 0, nothing sent"))
		return
	}
	line := green.Render("✓") + " " + r.String()
	if ack.LastToken != "" {
		line += dim.Render("  last token ") + cyan.Render(string(ack.LastToken))
	}
	fmt.Fprintln(w, line)
}

func printWarn(msg string) {
	fmt.Fprintln(os.Stderr, yellow.Render("! "+msg))
}

// printPorts lists ports, marking those whose description contains preferred.
func printPorts(w io.Writer, ports []serial.PortDescriptor, preferred string) {
	if len(ports) == 0 {
		fmt.Fprintln(w, dim.Render("no serial ports found"))
		return
	}
	fmt.Fprintln(w, bold.Render(fmt.Sprintf("%d serial port(s)", len(ports))))
	for _, p := range ports {
		mark := "  "
		line := describePort(p)
		if preferred != "" && strings.Contains(p.Description, preferred) {
			mark = green.Render("* ")
			line = green.Render(line)
		}
		fmt.Fprintln(w, mark+line)
	}
}
