package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calcify-go/calcify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI with args and returns what it printed to stdout.
// Package-level flag values survive between executions, so every flag is
// reset to its default first.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeDemoTree(t *testing.T, path string) {
	t.Helper()
	tree := calcify.NewTree("demo")
	require.NoError(t, tree.AddField("author", "me"))
	require.NoError(t, tree.AddBranch("pts", calcify.NewCollection(calcify.NewPoint(1, 2), calcify.NewPoint(3, 4)), calcify.SubtypePoint))
	require.NoError(t, tree.AddBranch("energy", calcify.NewCollection[calcify.F64](1, 2, 3), calcify.SubtypeF64))
	require.NoError(t, calcify.WriteFile(path, tree))
}

func writeDemoFeeds(t *testing.T, path string) {
	t.Helper()
	ft := calcify.NewFeedTree[calcify.F64]("run")
	require.NoError(t, ft.AddFeed("total", calcify.NewCollection[calcify.F64](1, 2, 3, 4)))
	require.NoError(t, calcify.WriteFile(path, ft))
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "demo.msgpack")
	out := filepath.Join(dir, "demo.jsonc.zst")
	writeDemoTree(t, in)

	stdout, err := run(t, "convert", in, out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "text-compact+zstd")

	tree, err := calcify.ReadTree(out)
	require.NoError(t, err)
	assert.Equal(t, "demo", tree.Name())
	pts, err := calcify.ReadBranch[calcify.Point](tree, "pts")
	require.NoError(t, err)
	assert.Equal(t, []calcify.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}, pts.Vec)
}

func TestConvert_feeds(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "run.json")
	out := filepath.Join(dir, "run.bin.lz4")
	writeDemoFeeds(t, in)

	_, err := run(t, "convert", in, out)
	require.Error(t, err, "reading a feed tree as a tree")

	_, err = run(t, "convert", "--feeds", "f64", in, out)
	require.NoError(t, err)
	ft, err := calcify.ReadFeedTree[calcify.F64](out)
	require.NoError(t, err)
	assert.Equal(t, []calcify.F64{1, 2, 3, 4}, ft.Feed("total").Vec)

	_, err = run(t, "convert", "--feeds", "nope", in, out)
	require.ErrorContains(t, err, `unknown feed type "nope"`)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "demo.json")
	writeDemoTree(t, in)

	stdout, err := run(t, "inspect", in)
	require.NoError(t, err)
	assert.Contains(t, stdout, "demo.json: text\n")
	assert.Regexp(t, `name +demo\n`, stdout)
	assert.Regexp(t, `field author +me\n`, stdout)
	assert.Regexp(t, `branch energy +f64 +3\n`, stdout)
	assert.Regexp(t, `branch pts +Point +2\n`, stdout)

	feeds := filepath.Join(dir, "run.msgpack")
	writeDemoFeeds(t, feeds)
	stdout, err = run(t, "inspect", "--feeds", "f64", feeds)
	require.NoError(t, err)
	assert.Regexp(t, `field SubType +f64\n`, stdout)
	assert.Regexp(t, `feed total +f64 +4\n`, stdout)
}

func TestQuery(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "demo.msgpack")
	writeDemoTree(t, in)

	stdout, err := run(t, "query", in, "$.Name")
	require.NoError(t, err)
	assert.Equal(t, "\"demo\"\n", stdout)

	stdout, err = run(t, "query", in, "$.branches.pts.subtype")
	require.NoError(t, err)
	assert.Equal(t, "\"Point\"\n", stdout)

	feeds := filepath.Join(dir, "run.json")
	writeDemoFeeds(t, feeds)
	stdout, err = run(t, "query", "--feeds", "f64", feeds, "$.feeds.total")
	require.NoError(t, err)
	assert.Equal(t, "[1,2,3,4]\n", stdout)

	_, err = run(t, "query", in, "$[")
	require.ErrorContains(t, err, "invalid path")
}

func TestArchive(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	treeFile := filepath.Join(dir, "demo.msgpack")
	feedsFile := filepath.Join(dir, "run.json")
	writeDemoTree(t, treeFile)
	writeDemoFeeds(t, feedsFile)

	_, err := run(t, "archive", "put", db, "t/demo", treeFile)
	require.NoError(t, err)
	_, err = run(t, "archive", "put", "--compress", "--feeds", "f64", db, "f/run", feedsFile)
	require.NoError(t, err)
	_, err = run(t, "archive", "put", db, "t/demo", treeFile)
	require.ErrorIs(t, err, calcify.ErrKey)

	stdout, err := run(t, "archive", "ls", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, `^f/run +feedtree/f64 `, lines[0])
	assert.Regexp(t, `^t/demo +tree `, lines[1])

	stdout, err = run(t, "archive", "ls", db, "t/")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(stdout, "\n"))

	out := filepath.Join(dir, "back.json")
	_, err = run(t, "archive", "get", db, "f/run", out)
	require.NoError(t, err)
	ft, err := calcify.ReadFeedTree[calcify.F64](out)
	require.NoError(t, err)
	assert.Equal(t, []calcify.F64{1, 2, 3, 4}, ft.Feed("total").Vec)

	stdout, err = run(t, "archive", "dump", "--compact", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "runs.db.stats: entries = 2, trees = 1, feedtrees = 1, compressed = 1")
	assert.Contains(t, stdout, "t/demo.author = me\n")
	assert.Contains(t, stdout, `{"Name":"run","SubType":"f64","feeds":{"total":[1,2,3,4]}}`)

	_, err = run(t, "archive", "rm", db, "t/demo")
	require.NoError(t, err)
	_, err = run(t, "archive", "rm", db, "t/demo")
	require.ErrorIs(t, err, calcify.ErrNotFound)
	_, err = run(t, "archive", "get", db, "t/demo", out)
	require.ErrorIs(t, err, calcify.ErrNotFound)
}

func TestSimulate(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "sim.wal")
	db := filepath.Join(dir, "sim.db")
	out := filepath.Join(dir, "sim.msgpack")
	args := []string{"simulate",
		"--bodies", "8", "--steps", "25", "--checkpoint", "10", "--workers", "3", "--bins", "4",
		"--journal", journal, "--archive", db, "--out", out}

	stdout, err := run(t, args...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "sim: 25 steps, 3 checkpoints")

	ft, err := calcify.ReadFeedTree[calcify.F64](out)
	require.NoError(t, err)
	assert.Equal(t, 25, ft.Feed(kineticFeed).Len())
	assert.Equal(t, 25, ft.Feed(spreadFeed).Len())
	bodies, _ := ft.Field("bodies")
	assert.Equal(t, "8", bodies)

	a, err := calcify.OpenArchive(db, calcify.ArchiveOptions{ReadOnly: true})
	require.NoError(t, err)
	defer a.Close()
	entries, err := a.List("sim-")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "sim-000010", entries[0].Name)
	assert.Equal(t, "sim-000025", entries[2].Name)
	assert.True(t, entries[0].Compressed)

	tree, err := a.GetTree("sim-000020")
	require.NoError(t, err)
	step, _ := tree.Field("step")
	assert.Equal(t, "20", step)
	state, err := calcify.ReadBranch[calcify.ThreeVec](tree, "state")
	require.NoError(t, err)
	assert.Equal(t, 8, state.Len())
	hist, err := calcify.ReadBranch[calcify.Bin](tree, "hist")
	require.NoError(t, err)
	require.Equal(t, 4, hist.Len())
	var total uint64
	for _, b := range hist.Vec {
		total += b.Count
	}
	assert.EqualValues(t, 8, total)

	_, err = run(t, args...)
	require.ErrorContains(t, err, "already holds run")
}

func TestSimulate_deterministic(t *testing.T) {
	u1 := newUniverse(5, 0.05, 7)
	u2 := newUniverse(5, 0.05, 7)
	for range 10 {
		require.NoError(t, u1.step(t.Context(), 0.01, 1))
		require.NoError(t, u2.step(t.Context(), 0.01, 4))
	}
	assert.Equal(t, u1.pos, u2.pos)
	assert.Equal(t, u1.vel, u2.vel)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "debug", "json")
	require.NoError(t, err)
	l.Debug("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = newLogger(&buf, "loud", "text")
	require.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	require.Error(t, err)
}
