package problem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Mayankdaya/CodeClash-sub000/config"
	"github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
)

// Generator produces a problem payload for a topic. Implementations must
// treat seed as a cache-buster: a fresh seed per call bypasses any caching on
// the generator side.
type Generator interface {
	Generate(ctx context.Context, topic, seed string) (*Problem, error)
}

type httpGenerator struct {
	cfg config.GeneratorConfig
	cli *http.Client
	l   logger.Logger
}

func NewHTTPGenerator(cfg config.GeneratorConfig, l logger.Logger) Generator {
	return &httpGenerator{
		cfg: cfg,
		cli: &http.Client{Timeout: cfg.Timeout},
		l:   l,
	}
}

func (g *httpGenerator) Generate(ctx context.Context, topic, seed string) (*Problem, error) {
	body, err := json.Marshal(map[string]string{
		"topic": topic,
		"seed":  seed,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.cli.Do(req)
	if err != nil {
		g.l.Errorf(ctx, "problem.httpGenerator.Generate: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generator returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	p, err := Normalize(raw)
	if err != nil {
		g.l.Warnf(ctx, "problem.httpGenerator.Generate: malformed payload for topic %s: %v", topic, err)
		return nil, err
	}

	return p, nil
}
