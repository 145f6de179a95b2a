package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/calcify-go/calcify"
	"github.com/spf13/cobra"
)

var (
	archiveFeeds    string
	archiveCompress bool
	archiveTimeout  time.Duration
	dumpCompact     bool
	dumpNoContents  bool
)

func init() {
	archiveCmd.PersistentFlags().DurationVar(&archiveTimeout, "timeout", time.Second, "How long to wait for the archive lock")
	archivePutCmd.Flags().StringVar(&archiveFeeds, "feeds", "", "Treat FILE as a feed tree of the given record type")
	archivePutCmd.Flags().BoolVar(&archiveCompress, "compress", false, "Store the entry zstd-compressed")
	archiveDumpCmd.Flags().BoolVar(&dumpCompact, "compact", false, "Print contents in the compact text form")
	archiveDumpCmd.Flags().BoolVar(&dumpNoContents, "no-contents", false, "Print headers and fields only")

	archiveCmd.AddCommand(archivePutCmd, archiveGetCmd, archiveLsCmd, archiveRmCmd, archiveDumpCmd)
	rootCmd.AddCommand(archiveCmd)
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage a checkpoint archive",
}

func openArchive(cmd *cobra.Command, path string, readOnly bool) (*calcify.Archive, error) {
	return calcify.OpenArchive(path, calcify.ArchiveOptions{
		Context:  cmd.Context(),
		Logger:   logger,
		Compress: archiveCompress,
		Timeout:  archiveTimeout,
		ReadOnly: readOnly,
		Verbose:  logger.Enabled(cmd.Context(), slog.LevelDebug),
	})
}

var archivePutCmd = &cobra.Command{
	Use:   "put ARCHIVE NAME FILE",
	Short: "Store a container file under NAME",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ft, err := readContainer(args[2], archiveFeeds)
		if err != nil {
			return err
		}
		a, err := openArchive(cmd, args[0], false)
		if err != nil {
			return err
		}
		defer a.Close()
		if ft != nil {
			return ft.put(a, args[1], c)
		}
		return a.PutTree(args[1], c.(*calcify.Tree))
	},
}

var archiveGetCmd = &cobra.Command{
	Use:   "get ARCHIVE NAME OUT",
	Short: "Write the container stored under NAME to a file",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openArchive(cmd, args[0], true)
		if err != nil {
			return err
		}
		defer a.Close()
		c, err := getContainer(a, args[1])
		if err != nil {
			return err
		}
		return calcify.WriteFile(args[2], c)
	},
}

func getContainer(a *calcify.Archive, name string) (container, error) {
	e, err := a.Entry(name)
	if err != nil {
		return nil, err
	}
	switch e.Kind {
	case calcify.KindTree:
		return asContainer(a.GetTree(name))
	case calcify.KindFeedTree:
		ft, err := lookupFeedType(e.SubType)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return ft.get(a, name)
	default:
		return nil, fmt.Errorf("%s: unsupported %v", name, e.Kind)
	}
}

var archiveLsCmd = &cobra.Command{
	Use:   "ls ARCHIVE [PREFIX]",
	Short: "List archive entries",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var prefix string
		if len(args) > 1 {
			prefix = args[1]
		}
		a, err := openArchive(cmd, args[0], true)
		if err != nil {
			return err
		}
		defer a.Close()
		entries, err := a.List(prefix)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, e := range entries {
			kind := e.Kind.String()
			if e.SubType != "" {
				kind += "/" + e.SubType
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", e.Name, kind, e.RawSize, e.Size, e.Created.UTC().Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var archiveRmCmd = &cobra.Command{
	Use:   "rm ARCHIVE NAME...",
	Short: "Delete archive entries",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openArchive(cmd, args[0], false)
		if err != nil {
			return err
		}
		defer a.Close()
		for _, name := range args[1:] {
			if err := a.Delete(name); err != nil {
				return err
			}
		}
		return nil
	},
}

var archiveDumpCmd = &cobra.Command{
	Use:   "dump ARCHIVE",
	Short: "Print stats, headers, fields and contents of every entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openArchive(cmd, args[0], true)
		if err != nil {
			return err
		}
		defer a.Close()
		f := calcify.DumpAll
		if dumpNoContents {
			f &^= calcify.DumpContents
		}
		if dumpCompact {
			f |= calcify.DumpCompact
		}
		return a.Dump(cmd.OutOrStdout(), f)
	},
}
