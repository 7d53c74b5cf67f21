package main

import (
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/gitdelta/packcore/internal/trace"
	"github.com/gitdelta/packcore/packobj"
	"github.com/gitdelta/packcore/packobj/fsstore"
	"github.com/gitdelta/packcore/packwriter"
)

var (
	packOut         string
	packWindowSize  int
	packMaxDepth    int
	packMinSize     int
	packConcurrency int
	packTraceDelta  bool
	packTracePack   bool
)

var packCmd = &cobra.Command{
	Use:   "pack <objects-dir>",
	Short: "Pack every loose object under a fan-out directory into a pack-v2 file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPack,
}

func init() {
	rootCmd.AddCommand(packCmd)

	packCmd.Flags().StringVarP(&packOut, "out", "o", "pack.pack", "path to write the pack file to")
	packCmd.Flags().IntVar(&packWindowSize, "window", 0, "delta-base candidate window size (0 = package default)")
	packCmd.Flags().IntVar(&packMaxDepth, "max-depth", 0, "maximum delta-chain depth (0 = package default)")
	packCmd.Flags().IntVar(&packMinSize, "min-size", -1, "smallest payload size the writer will deltify (-1 = package default)")
	packCmd.Flags().IntVar(&packConcurrency, "concurrency", 1, "number of candidate deltas to precompute in parallel")
	packCmd.Flags().BoolVar(&packTraceDelta, "trace-delta", false, "trace base-selection decisions to stderr")
	packCmd.Flags().BoolVar(&packTracePack, "trace-pack", false, "trace pack-stream structure to stderr")
}

func runPack(cmd *cobra.Command, args []string) error {
	dir := args[0]

	var target trace.Target
	if packTraceDelta {
		target |= trace.Delta
	}
	if packTracePack {
		target |= trace.Pack
	}
	trace.SetTarget(target)

	fs := osfs.New(dir)
	store := fsstore.New(fs, "")

	oids, err := store.ListOIDs()
	if err != nil {
		return fmt.Errorf("packdump: %w", err)
	}
	if len(oids) == 0 {
		return fmt.Errorf("packdump: no loose objects found under %s", dir)
	}

	objects := make([]*packobj.Record, 0, len(oids))
	for _, oid := range oids {
		kind, payload, err := store.Read(oid)
		if err != nil {
			return fmt.Errorf("packdump: %w", err)
		}
		objects = append(objects, &packobj.Record{OID: oid, Kind: kind, Payload: payload})
	}

	var opts []packwriter.Option
	if packWindowSize > 0 {
		opts = append(opts, packwriter.WithWindowSize(packWindowSize))
	}
	if packMaxDepth > 0 {
		opts = append(opts, packwriter.WithMaxDeltaChainDepth(packMaxDepth))
	}
	if packMinSize >= 0 {
		opts = append(opts, packwriter.WithMinSizeForDelta(packMinSize))
	}
	if packConcurrency > 1 {
		opts = append(opts, packwriter.WithConcurrency(packConcurrency))
	}

	out, err := os.Create(packOut)
	if err != nil {
		return fmt.Errorf("packdump: %w", err)
	}
	defer out.Close()

	var stats packwriter.Stats
	if packConcurrency > 1 {
		stats, err = packwriter.EncodeConcurrent(cmd.Context(), out, objects, packwriter.NewZlibDeflate(), packwriter.NewSHA1Hasher(), opts...)
	} else {
		stats, err = packwriter.Encode(out, objects, packwriter.NewZlibDeflate(), packwriter.NewSHA1Hasher(), opts...)
	}
	if err != nil {
		return fmt.Errorf("packdump: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d entries (%d full, %d delta), %d bytes\n",
		packOut, stats.Entries, stats.FullEntries, stats.DeltaEntries, stats.BytesWritten)
	return nil
}
