package main

import (
	"fmt"
	"strconv"

	"github.com/gordian-engine/fwmerkle"
	"github.com/spf13/cobra"
)

func newShapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shape WIDTH",
		Short: "Print the number of nodes at each level of a WIDTH-leaf tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			width, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid width %q: %w", args[0], err)
			}

			shape, err := fwmerkle.Shape(width)
			if err != nil {
				return err
			}

			total := 0
			out := cmd.OutOrStdout()
			for lvl, w := range shape {
				total += w
				if _, err := fmt.Fprintf(out, "level %d: %d\n", lvl, w); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(out, "total: %d\n", total)
			return err
		},
	}
}
