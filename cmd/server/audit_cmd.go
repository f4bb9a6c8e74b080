package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCmd(f *flags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Replay adjustment logs against stored balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(f)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			reports, err := a.service.AuditAll(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			drifted := 0
			for _, r := range reports {
				if r.Clean() {
					continue
				}
				drifted++
				for _, d := range r.Drifts {
					fmt.Fprintf(out, "%s\tstored=%s\treplayed=%s\n", d.Key, d.Stored, d.Replayed)
				}
			}
			fmt.Fprintf(out, "audited %d employees, %d with drift\n", len(reports), drifted)
			if drifted > 0 {
				return fmt.Errorf("ledger drift detected for %d employees", drifted)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall audit timeout")
	return cmd
}
