package main

import (
	"fmt"
	"log/slog"

	"github.com/calcify-go/calcify"
	"github.com/spf13/cobra"
)

var convertFeeds string

func init() {
	convertCmd.Flags().StringVar(&convertFeeds, "feeds", "", "Treat input as a feed tree of the given record type")
	rootCmd.AddCommand(convertCmd)
}

var convertCmd = &cobra.Command{
	Use:   "convert IN OUT",
	Short: "Re-encode a container in the format selected by the OUT extension",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, out := args[0], args[1]
		c, _, err := readContainer(in, convertFeeds)
		if err != nil {
			return err
		}
		if err := calcify.WriteFile(out, c); err != nil {
			return err
		}
		logger.LogAttrs(cmd.Context(), slog.LevelInfo, "converted",
			slog.String("name", c.Name()),
			slog.String("from", calcify.FormatOf(in).String()),
			slog.String("to", calcify.FormatOf(out).String()))
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%v)\n", in, out, calcify.FormatOf(out))
		return nil
	},
}
