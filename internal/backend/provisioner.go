package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// PullProgress is a consumer-friendly view of a model download frame.
// Percent is -1 while the total size is not yet known.
type PullProgress struct {
	Status    string
	Completed int64
	Total     int64
	Percent   float64
}

// Provisioner makes sure an embedding model is available on a host before
// any embedding work starts.
type Provisioner struct {
	client *Client
	logger *zap.Logger
}

// NewProvisioner creates a provisioner for the given host.
func NewProvisioner(client *Client, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{client: client, logger: logger}
}

// EnsureModel probes the model with a trial embedding and, when that fails,
// pulls it while streaming progress. After the pull the probe runs once more;
// a model still unavailable at that point is an error.
func (p *Provisioner) EnsureModel(ctx context.Context, model string, progress func(PullProgress)) error {
	if err := p.probe(ctx, model); err == nil {
		return nil
	}
	p.logger.Info("model not available, pulling", zap.String("model", model), zap.String("host", p.client.BaseURL()))

	err := p.client.Pull(ctx, model, func(f PullFrame) {
		if progress == nil {
			return
		}
		pct := -1.0
		if f.Total > 0 {
			pct = float64(f.Completed) / float64(f.Total) * 100
		}
		progress(PullProgress{Status: f.Status, Completed: f.Completed, Total: f.Total, Percent: pct})
	})
	if err != nil {
		return fmt.Errorf("model pull: %w", err)
	}

	if err := p.probe(ctx, model); err != nil {
		return fmt.Errorf("pull completed but model %q unavailable: %w", model, err)
	}
	p.logger.Info("model ready", zap.String("model", model))
	return nil
}

func (p *Provisioner) probe(ctx context.Context, model string) error {
	_, err := p.client.Embed(ctx, model, "ping")
	return err
}
