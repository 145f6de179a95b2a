package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"strconv"

	"github.com/calcify-go/calcify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var simOpts = simulateOptions{}

type simulateOptions struct {
	Name       string
	Bodies     int
	Steps      int
	DT         float64
	Softening  float64
	Workers    int
	Checkpoint int
	Bins       int
	Seed       uint64
	Journal    string
	Archive    string
	Out        string
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simOpts.Name, "name", "sim", "Run name, used for the feed tree and checkpoint entries")
	f.IntVar(&simOpts.Bodies, "bodies", 64, "Number of bodies")
	f.IntVar(&simOpts.Steps, "steps", 1000, "Number of integration steps")
	f.Float64Var(&simOpts.DT, "dt", 0.001, "Time step")
	f.Float64Var(&simOpts.Softening, "softening", 0.05, "Gravitational softening length")
	f.IntVar(&simOpts.Workers, "workers", runtime.NumCPU(), "Number of force workers")
	f.IntVar(&simOpts.Checkpoint, "checkpoint", 100, "Steps between checkpoints")
	f.IntVar(&simOpts.Bins, "bins", 10, "Histogram bins in checkpoints")
	f.Uint64Var(&simOpts.Seed, "seed", 1, "Random seed for the initial conditions")
	f.StringVar(&simOpts.Journal, "journal", "", "Feed journal path")
	f.StringVar(&simOpts.Archive, "archive", "", "Archive to store checkpoints in")
	f.StringVar(&simOpts.Out, "out", "", "Write the final feed tree to this file")
	simulateCmd.MarkFlagRequired("journal")
	rootCmd.AddCommand(simulateCmd)
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a universe-in-a-box N-body simulation, journaling its observables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o := simOpts
		if o.Bodies < 2 || o.Steps < 1 || o.Workers < 1 || o.Checkpoint < 1 || o.Bins < 2 {
			return errors.New("need --bodies >= 2, --bins >= 2, and positive --steps, --workers, --checkpoint")
		}
		r, err := simulate(cmd.Context(), o)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d steps, %d checkpoints, kinetic energy %.5f -> %.5f\n",
			o.Name, o.Steps, r.Checkpoints, r.KineticStart, r.KineticEnd)
		return nil
	},
}

type simulateResult struct {
	Checkpoints  int
	KineticStart float64
	KineticEnd   float64
}

// sample is what the stepping goroutine hands to the writer after each step.
type sample struct {
	step       int
	kinetic    float64
	spread     float64
	checkpoint *calcify.Tree
}

const (
	kineticFeed = "kinetic"
	spreadFeed  = "spread"
)

func simulate(ctx context.Context, o simulateOptions) (simulateResult, error) {
	var result simulateResult
	fj, err := calcify.OpenFeedJournal[calcify.F64](o.Journal, o.Name, calcify.FeedJournalOptions{
		Context: ctx,
		Logger:  logger,
	})
	if err != nil {
		return result, err
	}
	defer fj.Close()
	if keys := fj.Tree().FeedKeys(); len(keys) > 0 {
		return result, fmt.Errorf("%s already holds run %q; remove it or pick another --journal", o.Journal, o.Name)
	}
	err = errors.Join(
		fj.AddField("bodies", strconv.Itoa(o.Bodies)),
		fj.AddField("dt", strconv.FormatFloat(o.DT, 'g', -1, 64)),
		fj.AddField("seed", strconv.FormatUint(o.Seed, 10)),
		fj.AddFeed(kineticFeed, nil),
		fj.AddFeed(spreadFeed, nil),
	)
	if err == nil {
		err = fj.Commit()
	}
	if err != nil {
		return result, err
	}

	var archive *calcify.Archive
	if o.Archive != "" {
		archive, err = calcify.OpenArchive(o.Archive, calcify.ArchiveOptions{
			Context:  ctx,
			Logger:   logger,
			Compress: true,
		})
		if err != nil {
			return result, err
		}
		defer archive.Close()
	}

	u := newUniverse(o.Bodies, o.Softening, o.Seed)
	result.KineticStart = u.kinetic()

	g, ctx := errgroup.WithContext(ctx)
	samples := make(chan sample, 16)
	g.Go(func() error {
		n, err := writeSamples(ctx, fj, archive, samples)
		result.Checkpoints = n
		return err
	})
	g.Go(func() error {
		defer close(samples)
		for step := 1; step <= o.Steps; step++ {
			if err := u.step(ctx, o.DT, o.Workers); err != nil {
				return err
			}
			s := sample{step: step, kinetic: u.kinetic(), spread: u.meanSpread()}
			if step%o.Checkpoint == 0 || step == o.Steps {
				var err error
				s.checkpoint, err = u.checkpoint(fmt.Sprintf("%s-%06d", o.Name, step), step, o.Bins)
				if err != nil {
					return err
				}
			}
			select {
			case samples <- s:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return result, err
	}
	result.KineticEnd = u.kinetic()

	if o.Out != "" {
		if err := fj.Flush(o.Out); err != nil {
			return result, err
		}
	}
	return result, nil
}

// writeSamples owns fj and archive until samples is closed.
func writeSamples(ctx context.Context, fj *calcify.FeedJournal[calcify.F64], archive *calcify.Archive, samples <-chan sample) (int, error) {
	var checkpoints int
	for s := range samples {
		err := errors.Join(
			fj.Write(kineticFeed, calcify.F64(s.kinetic)),
			fj.Write(spreadFeed, calcify.F64(s.spread)),
		)
		if err != nil {
			return checkpoints, err
		}
		if s.checkpoint == nil {
			continue
		}
		if err := fj.Commit(); err != nil {
			return checkpoints, err
		}
		if archive != nil {
			if err := archive.PutTree(s.checkpoint.Name(), s.checkpoint); err != nil {
				return checkpoints, err
			}
		}
		checkpoints++
		logger.LogAttrs(ctx, slog.LevelInfo, "simulate: checkpoint",
			slog.Int("step", s.step),
			slog.String("name", s.checkpoint.Name()),
			slog.Float64("kinetic", s.kinetic))
	}
	return checkpoints, fj.Commit()
}

// universe is a box of equal-mass bodies with total mass 1 and G = 1.
type universe struct {
	pos   []calcify.ThreeVec
	vel   []calcify.ThreeVec
	acc   []calcify.ThreeVec
	mass  float64
	soft2 float64
}

func newUniverse(n int, softening float64, seed uint64) *universe {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	uniform := func(scale float64) calcify.ThreeVec {
		return calcify.NewThreeVec(
			scale*(2*rng.Float64()-1),
			scale*(2*rng.Float64()-1),
			scale*(2*rng.Float64()-1))
	}
	u := &universe{
		pos:   make([]calcify.ThreeVec, n),
		vel:   make([]calcify.ThreeVec, n),
		acc:   make([]calcify.ThreeVec, n),
		mass:  1 / float64(n),
		soft2: softening * softening,
	}
	for i := range n {
		u.pos[i] = uniform(1)
		u.vel[i] = uniform(0.1)
	}
	return u
}

// step advances the universe by dt using semi-implicit Euler. Forces are
// computed by up to workers goroutines, each owning a contiguous range of acc.
func (u *universe) step(ctx context.Context, dt float64, workers int) error {
	n := len(u.pos)
	chunk := (n + workers - 1) / workers
	g, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				u.acc[i] = u.accelerationOf(i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i := range u.pos {
		u.vel[i] = u.vel[i].Add(u.acc[i].Scale(dt))
		u.pos[i] = u.pos[i].Add(u.vel[i].Scale(dt))
	}
	return nil
}

func (u *universe) accelerationOf(i int) calcify.ThreeVec {
	var a calcify.ThreeVec
	for j, p := range u.pos {
		if j == i {
			continue
		}
		d := p.Sub(u.pos[i])
		r2 := d.Dot(d) + u.soft2
		a = a.Add(d.Scale(u.mass / (r2 * math.Sqrt(r2))))
	}
	return a
}

func (u *universe) kinetic() float64 {
	var e float64
	for _, v := range u.vel {
		e += 0.5 * u.mass * v.Dot(v)
	}
	return e
}

func (u *universe) center() calcify.ThreeVec {
	var c calcify.ThreeVec
	for _, p := range u.pos {
		c = c.Add(p)
	}
	return c.Scale(1 / float64(len(u.pos)))
}

// distances returns each body's distance from the center of mass.
func (u *universe) distances() *calcify.Collection[calcify.F64] {
	c := u.center()
	out := &calcify.Collection[calcify.F64]{Vec: make([]calcify.F64, len(u.pos))}
	for i, p := range u.pos {
		out.Vec[i] = calcify.F64(p.Sub(c).R())
	}
	return out
}

func (u *universe) meanSpread() float64 {
	var sum float64
	for _, d := range u.distances().Vec {
		sum += float64(d)
	}
	return sum / float64(len(u.pos))
}

func (u *universe) checkpoint(name string, step, bins int) (*calcify.Tree, error) {
	t := calcify.NewTree(name)
	dists := u.distances()
	err := errors.Join(
		t.AddField("step", strconv.Itoa(step)),
		t.AddField("kinetic", strconv.FormatFloat(u.kinetic(), 'g', -1, 64)),
		t.AddBranch("state", calcify.NewCollection(u.pos...), calcify.SubtypeThreeVec),
		t.AddBranch("velocity", calcify.NewCollection(u.vel...), calcify.SubtypeThreeVec),
		t.AddBranch("spread", dists, calcify.SubtypeF64),
		t.AddBranch("hist", calcify.Hist(dists, bins), calcify.SubtypeBin),
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
