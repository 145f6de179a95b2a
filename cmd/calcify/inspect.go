package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/calcify-go/calcify"
	"github.com/spf13/cobra"
)

var inspectFeeds string

func init() {
	inspectCmd.Flags().StringVar(&inspectFeeds, "feeds", "", "Treat input as a feed tree of the given record type")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Print the fields and branches (or feeds) of a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ft, err := readContainer(args[0], inspectFeeds)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", args[0], calcify.FormatOf(args[0]))
		describe(cmd.OutOrStdout(), c, ft)
		return nil
	},
}

func describe(w io.Writer, c container, ft *feedType) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "name\t%s\n", c.Name())
	for _, key := range c.FieldKeys() {
		if key == "Name" {
			continue
		}
		v, _ := c.Field(key)
		fmt.Fprintf(tw, "field %s\t%s\n", key, v)
	}
	if ft != nil {
		for _, f := range ft.feeds(c) {
			fmt.Fprintf(tw, "feed %s\t%v\t%d\n", f.Key, ft.subtype, f.Len)
		}
		return
	}
	t := c.(*calcify.Tree)
	for _, key := range t.BranchKeys() {
		b := t.GetBranch(key)
		fmt.Fprintf(tw, "branch %s\t%v\t%d\n", key, b.Subtype(), b.Len())
	}
}
