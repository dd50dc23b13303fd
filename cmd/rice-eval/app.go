package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/dataset"
	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/harness"
	"github.com/ricesearch/rice-eval/internal/history"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
	"github.com/ricesearch/rice-eval/internal/source"
)

// app holds everything a command needs. close releases it in reverse order.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	svc     *harness.Service
	bus     bus.Bus
	history *history.Store
	cache   source.Cache
}

// loadConfig loads the config file named by --config and applies the
// global flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if judgments, _ := cmd.Flags().GetString("judgments"); judgments != "" {
		cfg.Eval.JudgmentsPath = judgments
	}
	if queries, _ := cmd.Flags().GetString("queries"); queries != "" {
		cfg.Eval.QueriesPath = queries
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	return cfg, logger.New(cfg.Log.Level, cfg.Log.Format), nil
}

// newApp wires the harness service from cfg. Judgments and queries are
// loaded when their paths are set; requireJudgments makes a missing
// judgments path an error.
func newApp(cfg *config.Config, log *logger.Logger, requireJudgments bool) (*app, error) {
	a := &app{cfg: cfg, log: log}

	var judgments *evaluation.JudgmentSet
	if cfg.Eval.JudgmentsPath != "" {
		js, err := dataset.LoadJudgments(cfg.Eval.JudgmentsPath)
		if err != nil {
			return nil, err
		}
		judgments = js
		log.Info("Loaded judgments", "path", cfg.Eval.JudgmentsPath, "judgments", js.Len(), "queries", len(js.Queries()))
	} else if requireJudgments {
		return nil, fmt.Errorf("a judgments file is required (--judgments or RICE_EVAL_JUDGMENTS)")
	}

	var queries []evaluation.Query
	if cfg.Eval.QueriesPath != "" {
		qs, err := dataset.LoadQueries(cfg.Eval.QueriesPath)
		if err != nil {
			return nil, err
		}
		queries = qs
		log.Info("Loaded queries", "path", cfg.Eval.QueriesPath, "queries", len(qs))
	}

	cache, err := source.NewCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	a.cache = cache

	b, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	a.bus = b

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			a.close()
			return nil, err
		}
		a.history = store
		log.Debug("Opened history", "path", cfg.History.Path)
	}

	a.svc = harness.New(judgments, queries, harness.Options{
		Evaluator: evaluation.Config{
			Workers:       cfg.Eval.Workers,
			RelevantGrade: cfg.Eval.RelevantGrade,
		},
		Cutoffs: cfg.Eval.Cutoffs,
		Remote:  a.remoteFactory(),
		History: a.history,
		Bus:     a.bus,
		Log:     log,
	})
	return a, nil
}

// remoteFactory returns a factory for the configured search API. Every
// remote source shares the result cache.
func (a *app) remoteFactory() harness.RemoteFactory {
	if a.cfg.Source.URL == "" {
		return nil
	}
	return func(store string) (evaluation.Source, error) {
		return a.remoteSource("", store), nil
	}
}

// remoteSource builds a source for baseURL, or the configured URL when
// baseURL is empty.
func (a *app) remoteSource(baseURL, store string) evaluation.Source {
	srcCfg := a.cfg.Source
	if store != "" {
		srcCfg.Store = store
	}
	if baseURL == "" {
		baseURL = srcCfg.URL
	}

	name := security.MaskURL(baseURL)
	if srcCfg.Store != "" {
		name += "#" + srcCfg.Store
	}
	return source.WithCache(source.NewHTTP(srcCfg, name, baseURL), a.cache, a.log)
}

func (a *app) close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn("Error closing event bus", "error", err)
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn("Error closing history", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("Error closing cache", "error", err)
		}
	}
}

// runSource builds a source from a run file or a URL. Exactly one of path
// and url must be set.
func (a *app) runSource(name, path, url, store string) (evaluation.Source, error) {
	switch {
	case path != "" && url != "":
		return nil, fmt.Errorf("%s: use either a run file or a URL, not both", name)
	case path != "":
		run, err := dataset.LoadRun(path)
		if err != nil {
			return nil, err
		}
		if err := security.ValidateRun(run); err != nil {
			return nil, err
		}
		a.log.Debug("Loaded run", "name", name, "path", path, "queries", len(run))
		return source.NewRunSource(path, run), nil
	case url != "":
		return a.remoteSource(url, store), nil
	default:
		return nil, fmt.Errorf("%s: a run file or URL is required", name)
	}
}

// parseCutoffs parses a comma-separated cutoff list. Empty means the
// configured defaults.
func parseCutoffs(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var cutoffs []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid cutoff %q", part)
		}
		cutoffs = append(cutoffs, k)
	}
	if err := security.ValidateCutoffs(cutoffs); err != nil {
		return nil, err
	}
	return cutoffs, nil
}
