package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/poiesic/filedrop"
	"github.com/urfave/cli/v2"
)

func sessionsListCommand(c *cli.Context) error {
	client, err := filedrop.Open(c.String("sessions"), filedrop.WithSweepInterval(0))
	if err != nil {
		return fmt.Errorf("failed to open session database: %w", err)
	}
	defer client.Close()

	sessions, err := client.SessionStore().ListAll(c.Context)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(c.App.Writer, "No unfinished sessions.")
		return nil
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tPROGRESS\tSCOPE\tEXPIRES\tDIGEST")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\t%.12s\n",
			s.FileName,
			humanize.IBytes(uint64(s.BytesAcknowledged)),
			humanize.IBytes(uint64(s.TotalBytes)),
			s.ScopeID,
			humanize.Time(s.ExpiresAt),
			s.ContentDigest)
	}
	return tw.Flush()
}

func sessionsSweepCommand(c *cli.Context) error {
	client, err := filedrop.Open(c.String("sessions"), filedrop.WithSweepInterval(0))
	if err != nil {
		return fmt.Errorf("failed to open session database: %w", err)
	}
	defer client.Close()

	n, err := client.SessionStore().Sweep(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Removed %d expired session(s).\n", n)
	return nil
}
