package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/ahrav/go-taxa/internal/bootstrap"
	"github.com/ahrav/go-taxa/internal/checkpoint"
	"github.com/ahrav/go-taxa/internal/classify"
	"github.com/ahrav/go-taxa/internal/config"
	"github.com/ahrav/go-taxa/internal/examine"
	"github.com/ahrav/go-taxa/internal/llm"
	"github.com/ahrav/go-taxa/internal/llm/cache"
	"github.com/ahrav/go-taxa/internal/llm/providers"
	"github.com/ahrav/go-taxa/internal/llm/ratelimit"
	"github.com/ahrav/go-taxa/internal/llm/retry"
	"github.com/ahrav/go-taxa/internal/orchestrator"
	"github.com/ahrav/go-taxa/internal/store"
	"github.com/ahrav/go-taxa/pkg/events"
)

// app holds the wired component graph for one command invocation.
type app struct {
	cfg config.Config
	db  *badger.DB

	taxonomies  *store.BadgerTaxonomyStore
	nodes       *store.BadgerNodeStore
	items       *store.BadgerItemStore
	meta        *store.BadgerMetaStore
	checkpoints *checkpoint.Store

	invoker    *llm.Invoker
	classifier *classify.Classifier
	engine     *orchestrator.Engine
	sink       events.Sink
}

// newStorageApp opens the database and the stores only. Commands that
// never call a model use this so they work without provider keys.
func newStorageApp(cfg config.Config) (*app, error) {
	db, err := store.Open(store.DefaultConfig(cfg.DataDir))
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:         cfg,
		db:          db,
		taxonomies:  store.NewBadgerTaxonomyStore(db),
		nodes:       store.NewBadgerNodeStore(db),
		items:       store.NewBadgerItemStore(db),
		meta:        store.NewBadgerMetaStore(db),
		checkpoints: checkpoint.NewStore(db),
		sink:        &events.SlogSink{},
	}, nil
}

// newApp opens the database and wires every component. singleBatch
// controls whether classification sessions finish after one batch or
// suspend for the next.
func newApp(cfg config.Config, singleBatch bool) (*app, error) {
	db, err := store.Open(store.DefaultConfig(cfg.DataDir))
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		db:          db,
		taxonomies:  store.NewBadgerTaxonomyStore(db),
		nodes:       store.NewBadgerNodeStore(db),
		items:       store.NewBadgerItemStore(db),
		meta:        store.NewBadgerMetaStore(db),
		checkpoints: checkpoint.NewStore(db),
		sink:        &events.SlogSink{},
	}

	router, err := buildRouter()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.MaxRetries
	a.invoker, err = llm.NewInvoker(router, llm.Config{
		Retry:     retryCfg,
		RateLimit: ratelimit.Config{RequestsPerSecond: cfg.RequestsPerSecond},
		Cache:     cache.DefaultConfig(),
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a.classifier, err = classify.New(a.invoker, classify.Config{
		Models:            cfg.Models,
		Fallbacks:         cfg.Fallbacks,
		TotalInvocations:  cfg.TotalInvocations,
		MajorityThreshold: cfg.MajorityThreshold,
		Temperature:       cfg.Temperature,
		MaxRetries:        cfg.MaxRetries,
		Timeout:           cfg.RequestTimeout,
		NumExamples:       4,
		MaxExampleLength:  1000,
	}, a.items, a.sink)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a.engine = orchestrator.New(
		a.taxonomies, a.nodes, a.items, a.checkpoints, a.classifier, a.sink,
		orchestrator.Config{
			MaxConcurrentCases: cfg.BatchSize,
			SingleBatch:        singleBatch,
		},
	)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) bootstrapper(humanInLoop bool) *bootstrap.Bootstrapper {
	return bootstrap.New(a.invoker, bootstrap.Config{
		Model:             a.cfg.BootstrapModel,
		Fallbacks:         a.cfg.Fallbacks,
		MaxRetries:        a.cfg.MaxRetries,
		MaxRounds:         5,
		UseHumanInTheLoop: humanInLoop,
	}, a.sink)
}

func (a *app) examiner() *examine.Examiner {
	excfg := examine.DefaultConfig()
	excfg.MinItems = a.cfg.MinItemsToExamine
	excfg.Threshold = a.cfg.ExamineThreshold
	excfg.Model = a.cfg.BootstrapModel
	excfg.Fallbacks = a.cfg.Fallbacks
	excfg.MaxRetries = a.cfg.MaxRetries
	return examine.New(a.invoker, a.classifier, a.items, excfg, a.sink)
}

// buildRouter registers one adapter per provider whose API key is
// present. Claude models route by prefix; everything else goes to the
// OpenAI-compatible adapter when available.
func buildRouter() (*providers.Router, error) {
	router := providers.NewRouter()
	registered := false

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		adapter, err := providers.NewOpenAIAdapter(providers.OpenAIConfig{
			APIKey:  key,
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		})
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		router.Register("", adapter)
		registered = true
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		adapter, err := providers.NewAnthropicAdapter(providers.AnthropicConfig{
			APIKey:  key,
			BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic adapter: %w", err)
		}
		router.Register("claude", adapter)
		if !registered {
			router.Register("", adapter)
		}
		registered = true
	}

	if !registered {
		return nil, errors.New("no provider configured: set OPENAI_API_KEY or ANTHROPIC_API_KEY")
	}
	return router, nil
}
