package natperf

import (
	"context"
	"io"
	"slices"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/message"

	"github.com/takehaya/natperf/pkg/packet"
	"github.com/takehaya/natperf/pkg/sim"
	"github.com/takehaya/natperf/pkg/stream"
)

// FlowStats summarises a simulated run of one stream.
type FlowStats struct {
	Stream        int
	Packets       uint64
	Bytes         uint64
	Flows         uint64 // distinct instances the stream declares
	DistinctFlows uint64 // distinct write patterns seen, capped at min(Flows, maxTrackedFlows)
	BadChecksums  uint64
	DecodeErrors  uint64
	Elapsed       time.Duration
}

// Simulate renders Count packet instances of every stream with the
// reference interpreter and checks each frame. Streams run concurrently;
// cancelling ctx stops all of them.
func (n *Natperf) Simulate(ctx context.Context) ([]FlowStats, error) {
	streams, err := n.Streams(ctx)
	if err != nil {
		return nil, err
	}

	stats := make([]FlowStats, len(streams))
	eg, ctx := errgroup.WithContext(ctx)
	for i, s := range streams {
		i, s := i, s
		eg.Go(func() error {
			st, err := simulate(ctx, s, n.cfg.Count)
			if err != nil {
				return errors.Wrapf(err, "stream %d", i)
			}
			st.Stream = i
			stats[i] = st
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for _, st := range stats {
		n.Logger.Info("simulation done",
			zap.Int("stream", st.Stream),
			zap.Uint64("packets", st.Packets),
			zap.Uint64("distinct_flows", st.DistinctFlows),
			zap.Uint64("bad_checksums", st.BadChecksums),
			zap.Duration("elapsed", st.Elapsed),
		)
	}
	return stats, nil
}

func simulate(ctx context.Context, s *stream.Stream, count uint64) (FlowStats, error) {
	it := sim.New(s)
	writes := s.Writes()
	tpl := s.Template()
	udpInfo, _ := tpl.Layer(packet.LayerUDP)
	udpSum := slices.Contains(tpl.ChecksumLayers(), packet.LayerUDP)

	var (
		eth     layers.Ethernet
		ip4     layers.IPv4
		udp     layers.UDP
		payload gopacket.Payload
	)
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &ip4, &udp, &payload)
	parser.IgnoreUnsupported = true
	decoded := make([]gopacket.LayerType, 0, 4)

	st := FlowStats{Flows: it.Flows()}
	seen := newFlowSet(st.Flows)
	key := make([]byte, 0, 16)
	start := time.Now()

	for seq := uint64(0); seq < count; seq++ {
		if seq%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return st, err
			}
		}
		frame, ok := it.Packet(seq)
		if !ok {
			break
		}
		st.Packets++
		st.Bytes += uint64(len(frame))

		key = key[:0]
		for _, w := range writes {
			key = append(key, frame[w.Offset:w.Offset+w.Width]...)
		}
		seen.add(key)

		if err := parser.DecodeLayers(frame, &decoded); err != nil {
			st.DecodeErrors++
			continue
		}
		if !slices.Contains(decoded, layers.LayerTypeIPv4) {
			continue
		}
		if packet.IPv4Checksum(ip4.Contents) != ip4.Checksum {
			st.BadChecksums++
			continue
		}
		if udpSum && slices.Contains(decoded, layers.LayerTypeUDP) {
			seg := frame[udpInfo.Offset : udpInfo.Offset+int(udp.Length)]
			if packet.UDPChecksum(ip4.Contents, seg) != udp.Checksum {
				st.BadChecksums++
			}
		}
	}

	st.DistinctFlows = seen.len()
	st.Elapsed = time.Since(start)
	return st, nil
}

// maxTrackedFlows bounds the memory used to count distinct flows.
const maxTrackedFlows = 1 << 22

// flowSet counts distinct write patterns. It stops growing once it holds
// min(flows, maxTrackedFlows) keys, since a correct stream never has more
// distinct patterns than it declares flows.
type flowSet struct {
	keys map[string]struct{}
	max  uint64
}

func newFlowSet(flows uint64) *flowSet {
	return &flowSet{keys: make(map[string]struct{}), max: min(flows, maxTrackedFlows)}
}

func (f *flowSet) add(key []byte) {
	if uint64(len(f.keys)) >= f.max {
		return
	}
	f.keys[string(key)] = struct{}{}
}

func (f *flowSet) len() uint64 { return uint64(len(f.keys)) }

func (s FlowStats) Print(w io.Writer) {
	p := message.NewPrinter(message.MatchLanguage("en"))
	p.Fprintf(w, "stream %d: %d packets, %d bytes, %d/%d distinct flows, %d bad checksums, %d decode errors",
		s.Stream, s.Packets, s.Bytes, s.DistinctFlows, s.Flows, s.BadChecksums, s.DecodeErrors)
	if secs := s.Elapsed.Seconds(); secs > 0 {
		p.Fprintf(w, ", %.2f Mpps", float64(s.Packets)/secs/1e6)
	}
	p.Fprintf(w, "\n")
}
