package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/gordian-engine/fwmerkle"
	"github.com/gordian-engine/fwmerkle/fwchunk"
	"github.com/spf13/cobra"
)

// rootConfig holds the flags for the root subcommand.
type rootConfig struct {
	ChunkSize int
	Hash      string
	Odd       string
	Order     string
	Seed      uint64
	Expect    string
}

func newRootHashCmd(newLogger func() *slog.Logger) *cobra.Command {
	var cfg rootConfig

	cmd := &cobra.Command{
		Use:   "root FILE",
		Short: "Print the Merkle root of FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			fi, err := f.Stat()
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", args[0], err)
			}

			root, err := computeRoot(cmd.Context(), newLogger(), f, fi.Size(), cfg)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(root))
			return err
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&cfg.ChunkSize, "chunk-size", 64*1024, "Size in bytes of each leaf chunk")
	fl.StringVar(&cfg.Hash, "hash", "sha256", hashFlagUsage())
	fl.StringVar(&cfg.Odd, "odd", "promote", "Handling of a trailing node without a sibling (promote, duplicate)")
	fl.StringVar(&cfg.Order, "order", "sequential", "Order to add chunks in (sequential, reverse, shuffle)")
	fl.Uint64Var(&cfg.Seed, "seed", 1, "Seed for --order=shuffle")
	fl.StringVar(&cfg.Expect, "expect", "", "Expected root in hex; fail if the computed root differs")

	return cmd
}

func parseOdd(s string) (fwmerkle.OddNodePolicy, error) {
	switch s {
	case "promote":
		return fwmerkle.PromoteOddNode, nil
	case "duplicate":
		return fwmerkle.DuplicateOddNode, nil
	default:
		return 0, fmt.Errorf("unknown odd node policy %q (valid: promote, duplicate)", s)
	}
}

func chunkOrder(order string, n int, seed uint64) ([]int, error) {
	idxs := make([]int, n)
	for i := range idxs {
		idxs[i] = i
	}

	switch order {
	case "sequential":
	case "reverse":
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			idxs[i], idxs[j] = idxs[j], idxs[i]
		}
	case "shuffle":
		rng := rand.New(rand.NewPCG(seed, seed))
		rng.Shuffle(n, func(i, j int) {
			idxs[i], idxs[j] = idxs[j], idxs[i]
		})
	default:
		return nil, fmt.Errorf("unknown order %q (valid: sequential, reverse, shuffle)", order)
	}

	return idxs, nil
}

// computeRoot reads every chunk of r in the configured order
// and adds it to an assembler, returning the completed root.
func computeRoot(
	ctx context.Context,
	log *slog.Logger,
	r io.ReaderAt,
	size int64,
	cfg rootConfig,
) ([]byte, error) {
	h, err := parseHash(cfg.Hash)
	if err != nil {
		return nil, err
	}

	odd, err := parseOdd(cfg.Odd)
	if err != nil {
		return nil, err
	}

	var expect []byte
	if cfg.Expect != "" {
		expect, err = hex.DecodeString(cfg.Expect)
		if err != nil {
			return nil, fmt.Errorf("failed to decode expected root: %w", err)
		}
	}

	a, err := fwchunk.NewAssembler(log, fwchunk.AssemblerConfig{
		Size:         size,
		ChunkSize:    cfg.ChunkSize,
		Hash:         h,
		OddNodes:     odd,
		ExpectedRoot: expect,
	})
	if err != nil {
		return nil, err
	}

	order, err := chunkOrder(cfg.Order, a.NumChunks(), cfg.Seed)
	if err != nil {
		return nil, err
	}

	log.Debug(
		"Computing root",
		"size", size,
		"chunk_size", cfg.ChunkSize,
		"n_chunks", a.NumChunks(),
		"hash", cfg.Hash,
		"odd", odd,
		"order", cfg.Order,
	)

	buf := make([]byte, cfg.ChunkSize)
	for _, idx := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk := buf[:a.ChunkLen(idx)]
		n, err := r.ReadAt(chunk, int64(idx)*int64(cfg.ChunkSize))
		if n < len(chunk) {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf(
				"failed to read chunk %d (got %d of %d bytes): %w", idx, n, len(chunk), err,
			)
		}

		if err := a.AddChunk(ctx, idx, chunk); err != nil {
			return nil, err
		}

		log.Debug("Added chunk", "idx", idx, "len", len(chunk))
	}

	return a.Wait(ctx)
}
