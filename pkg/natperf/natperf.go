// Package natperf is the application layer behind the natperf command: it
// resolves a traffic profile, asks it for streams and turns them into
// descriptors, per-CPU plans or simulation statistics.
package natperf

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/takehaya/natperf/pkg/logger"
	"github.com/takehaya/natperf/pkg/provider"
	"github.com/takehaya/natperf/pkg/stream"
)

type CancelFunc func(ctx context.Context) error

type Natperf struct {
	Logger        *zap.Logger
	Provider      provider.Provider
	cleanupFnList []CancelFunc

	cfg  Config
	opts provider.Options
}

// New validates cfg, builds the logger and resolves the profile from the
// provider registry.
func New(cfg Config) (*Natperf, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	var cleanupFnList []CancelFunc
	lg, cleanup, err := logger.NewLogger(cfg.LoggerConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed init logger")
	}
	cleanupFnList = append(cleanupFnList, cleanup)

	p, err := provider.Lookup(cfg.Profile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed lookup profile (available: %v)", provider.Names())
	}

	opts, err := cfg.ProviderOptions()
	if err != nil {
		return nil, err
	}
	lg.Debug("profile resolved",
		zap.String("profile", cfg.Profile),
		zap.Int("direction", cfg.Direction),
		zap.Any("options", opts),
	)

	return &Natperf{
		Logger:        lg,
		Provider:      p,
		cleanupFnList: cleanupFnList,
		cfg:           cfg,
		opts:          opts,
	}, nil
}

// Streams asks the profile for the streams of the configured direction.
func (n *Natperf) Streams(ctx context.Context) ([]*stream.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	streams, err := n.Provider.GetStreams(n.cfg.Direction, n.opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed get streams from %s", n.cfg.Profile)
	}
	for i, s := range streams {
		n.Logger.Debug("stream built", zap.Int("index", i), zap.Stringer("stream", s))
	}
	n.Logger.Info("streams built",
		zap.String("profile", n.cfg.Profile),
		zap.Int("direction", n.cfg.Direction),
		zap.Int("count", len(streams)),
	)
	return streams, nil
}

// WriteDescriptors writes the descriptors of every stream to w in the
// configured format.
func (n *Natperf) WriteDescriptors(ctx context.Context, w io.Writer) error {
	streams, err := n.Streams(ctx)
	if err != nil {
		return err
	}
	descs := make([]stream.Descriptor, len(streams))
	for i, s := range streams {
		descs[i] = s.Descriptor()
	}

	switch n.cfg.Format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(descs); err != nil {
			return errors.Wrap(err, "failed encode descriptors")
		}
		return errors.Wrap(enc.Close(), "failed encode descriptors")
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(descs), "failed encode descriptors")
	}
}

func (n *Natperf) Close() {
	for _, fn := range n.cleanupFnList {
		if err := fn(context.Background()); err != nil {
			n.Logger.Error("failed to cleanup", zap.Error(err))
		}
	}
	n.Logger.Debug("natperf cleanup completed")
}
