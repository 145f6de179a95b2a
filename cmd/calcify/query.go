package main

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
)

var queryFeeds string

func init() {
	queryCmd.Flags().StringVar(&queryFeeds, "feeds", "", "Treat input as a feed tree of the given record type")
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query FILE PATH",
	Short: "Evaluate a JSONPath expression against the text form of a container",
	Example: `  calcify query run.msgpack '$.branches.hist.branch[*].count'
  calcify query --feeds f64 energy.json '$.feeds.total[-1:]'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, err := jp.ParseString(args[1])
		if err != nil {
			return fmt.Errorf("invalid path %q: %w", args[1], err)
		}
		c, _, err := readContainer(args[0], queryFeeds)
		if err != nil {
			return err
		}
		results, err := queryContainer(c, x)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Fprintln(cmd.OutOrStdout(), oj.JSON(r, &oj.Options{Sort: true}))
		}
		return nil
	},
}

func queryContainer(c container, x jp.Expr) ([]any, error) {
	root, err := oj.Parse(c.AppendJSON(nil))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name(), err)
	}
	return x.Get(root), nil
}
