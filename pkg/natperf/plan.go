package natperf

import (
	"context"
	"fmt"
	"io"

	"github.com/cilium/ebpf"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/message"

	"github.com/takehaya/natperf/pkg/sim"
	"github.com/takehaya/natperf/pkg/stream"
)

// MaxFrameSize is the largest template a transmit slot holds.
const MaxFrameSize = 1514

// possibleCPU is swapped in tests.
var possibleCPU = ebpf.PossibleCPU

// Assignment is the stream one CPU transmits.
type Assignment struct {
	CPU    int
	Stream int
}

type Plan struct {
	Profile     string
	Direction   int
	Workers     int
	Streams     []*stream.Stream
	Assignments []Assignment
}

// Plan distributes the profile streams over the possible CPUs, CPU i
// sending stream i mod len(streams). Every worker obtains its streams with
// an independent GetStreams call, as a multi-queue engine would, and all
// of them must agree.
func (n *Natperf) Plan(ctx context.Context) (*Plan, error) {
	numCpus, err := possibleCPU()
	if err != nil {
		return nil, errors.Wrap(err, "failed get possible CPU")
	}
	workers := n.cfg.Parallelism
	if workers == 0 {
		workers = numCpus
	}

	results := make([][]*stream.Stream, workers)
	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			streams, err := n.Provider.GetStreams(n.cfg.Direction, n.opts)
			if err != nil {
				return errors.Wrapf(err, "worker %d: failed get streams", w)
			}
			results[w] = streams
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	streams := results[0]
	for w := 1; w < workers; w++ {
		if !sameStreams(streams, results[w]) {
			return nil, errors.Errorf("worker %d got different streams from %s", w, n.cfg.Profile)
		}
	}
	if len(streams) == 0 {
		return nil, errors.Errorf("profile %s returned no stream", n.cfg.Profile)
	}

	// percpu ごとに stream を割り当てる
	// 分散してパケットを入れるようにする
	entrycount := len(streams)
	plan := &Plan{
		Profile:     n.cfg.Profile,
		Direction:   n.cfg.Direction,
		Workers:     workers,
		Streams:     streams,
		Assignments: make([]Assignment, numCpus),
	}
	for cpu := 0; cpu < numCpus; cpu++ {
		idx := cpu % entrycount
		if l := streams[idx].Template().Len(); l > MaxFrameSize {
			return nil, errors.Errorf("stream %d: invalid entry length: %d", idx, l)
		}
		plan.Assignments[cpu] = Assignment{CPU: cpu, Stream: idx}
	}

	n.Logger.Info("plan built",
		zap.Int("cpus", numCpus),
		zap.Int("workers", workers),
		zap.Int("streams", entrycount),
	)
	return plan, nil
}

func sameStreams(a, b []*stream.Stream) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (p *Plan) Print(w io.Writer) {
	pr := message.NewPrinter(message.MatchLanguage("en"))
	pr.Fprintf(w, "profile %s direction %d: %d streams on %d CPUs (%d workers)\n",
		p.Profile, p.Direction, len(p.Streams), len(p.Assignments), p.Workers)
	for _, a := range p.Assignments {
		s := p.Streams[a.Stream]
		pr.Fprintf(w, "  cpu %3d -> stream %d: %d bytes, %d flows, %s\n",
			a.CPU, a.Stream, s.Template().Len(), sim.New(s).Flows(), modeString(s.Mode()))
	}
}

func modeString(m stream.TxMode) string {
	return fmt.Sprintf("%s %g pps", m.Kind, m.PPS)
}
