// ABOUTME: list command
// ABOUTME: Prints speakers and microphones with their IDs
package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Resonate-Protocol/soundcard-go/pkg/soundcard"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List speakers and microphones",
	RunE: func(cmd *cobra.Command, args []string) error {
		loopback, _ := cmd.Flags().GetBool("loopback")

		s, err := openSession(app.cfg, app.logger)
		if err != nil {
			return err
		}
		defer s.Close()

		return printDevices(cmd.OutOrStdout(), s.Context, loopback)
	},
}

func init() {
	listCmd.Flags().BoolP("loopback", "l", false, "Include loopback recording devices")
}

func printDevices(w io.Writer, ctx *soundcard.Context, loopback bool) error {
	speakers, err := ctx.AllSpeakers()
	if err != nil {
		return err
	}
	mics, err := ctx.AllMicrophones(loopback)
	if err != nil {
		return err
	}
	defSpeaker, _ := ctx.DefaultSpeaker()
	defMic, _ := ctx.DefaultMicrophone()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Backend: %s\n\n", ctx.Backend())

	fmt.Fprintln(tw, "SPEAKERS\tCHANNELS\tID")
	for _, sp := range speakers {
		fmt.Fprintf(tw, "%s%s\t%d\t%s\n", marker(defSpeaker != nil && sp.ID() == defSpeaker.ID()), sp.Name(), sp.Channels(), sp.ID())
	}

	fmt.Fprintln(tw, "\nMICROPHONES\tCHANNELS\tID")
	for _, m := range mics {
		name := m.Name()
		if m.IsLoopback() {
			name += " (loopback)"
		}
		fmt.Fprintf(tw, "%s%s\t%d\t%s\n", marker(defMic != nil && m.ID() == defMic.ID()), name, m.Channels(), m.ID())
	}
	return tw.Flush()
}

func marker(isDefault bool) string {
	if isDefault {
		return "* "
	}
	return "  "
}
