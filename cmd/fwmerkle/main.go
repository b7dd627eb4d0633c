// Command fwmerkle computes fixed-width Merkle roots of files.
//
// The root command feeds a file's chunks through the same
// out-of-order assembly path a network receiver would use,
// which makes it convenient for checking that the root
// is independent of the order chunks arrive in.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/gordian-engine/fwmerkle/fwhash"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd(os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:          "fwmerkle",
		Short:        "Compute fixed-width Merkle trees",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log each chunk as it is added")

	newLogger := func() *slog.Logger {
		lvl := slog.LevelInfo
		if verbose {
			lvl = slog.LevelDebug
		}
		return slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: lvl}))
	}

	rootCmd.AddCommand(
		newRootHashCmd(newLogger),
		newShapeCmd(),
	)

	return rootCmd
}

func hashFlagUsage() string {
	return "Hash function (" + strings.Join(fwhash.Names(), ", ") + ")"
}

func parseHash(name string) (fwhash.Func, error) {
	f, ok := fwhash.ByName(name)
	if !ok {
		return nil, fmt.Errorf(
			"unknown hash %q (valid: %s)", name, strings.Join(fwhash.Names(), ", "),
		)
	}
	return f, nil
}
