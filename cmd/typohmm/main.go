// Command typohmm corrects typing errors with a hidden Markov model trained on
// a labelled misspelling corpus.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/japaniel/typohmm/pkg/config"
	"github.com/japaniel/typohmm/pkg/corpus"
	"github.com/japaniel/typohmm/pkg/db"
	"github.com/japaniel/typohmm/pkg/eval"
	"github.com/japaniel/typohmm/pkg/hmm"
	"github.com/japaniel/typohmm/pkg/observe"
	"github.com/japaniel/typohmm/pkg/pipeline"
	"github.com/japaniel/typohmm/pkg/segment"
	"github.com/japaniel/typohmm/pkg/source"
)

type flags struct {
	config        string
	corpus        string
	db            string
	model         string
	train         bool
	eval          string
	plot          string
	url           string
	segmenter     string
	metricsAddr   string
	logLevel      string
	history       int
	listModels    bool
	smoothUnknown bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "Path to YAML config file")
	flag.StringVar(&f.corpus, "corpus", "", "Path to the labelled training corpus")
	flag.StringVar(&f.db, "db", "", "Path to SQLite database (default: in memory)")
	flag.StringVar(&f.model, "model", "", "Name of the stored model")
	flag.BoolVar(&f.train, "train", false, "Re-estimate the model from the corpus and store it")
	flag.StringVar(&f.eval, "eval", "", "Evaluate against a labelled corpus file and print a report")
	flag.StringVar(&f.plot, "plot", "", "With -eval, write an accuracy chart to this file (png, svg, pdf)")
	flag.StringVar(&f.url, "url", "", "Correct the readable text of a web page")
	flag.StringVar(&f.segmenter, "segmenter", "", "Word segmenter: whitespace or kagome")
	flag.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.IntVar(&f.history, "history", 0, "Print the N most recent corrections and exit")
	flag.BoolVar(&f.listModels, "list-models", false, "Print the stored models and exit")
	flag.BoolVar(&f.smoothUnknown, "smooth-unknown", false, "Decode characters never seen in training with the floor probability (default: a word containing one is left entirely unchanged)")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "typohmm: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.Load(f.config); err != nil {
			return err
		}
	}
	applyFlags(cfg, f)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "typohmm"})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()
	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, logger)
		defer stop()
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = ":memory:"
	}
	conn, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	if f.listModels {
		return printModels(conn)
	}

	model, modelID, err := loadModel(ctx, conn, cfg, f.train, logger)
	if err != nil {
		return err
	}

	if f.history > 0 {
		return printHistory(conn, modelID, f.history)
	}

	var opts []hmm.Option
	if f.smoothUnknown {
		opts = append(opts, hmm.SmoothUnknown())
	}
	decoder := hmm.NewDecoder(model, opts...)
	logger.Debug("decoder ready", "states", len(decoder.States()))

	if f.eval != "" {
		return evaluate(ctx, decoder, f.eval, f.plot, cfg.Pipeline.Workers, logger)
	}
	if f.train && f.url == "" {
		return nil
	}

	c, closeWriter, err := newCorrector(conn, decoder, modelID, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeWriter(); err != nil {
			logger.Error("flush corrections", "err", err)
		}
	}()

	if f.url != "" {
		return correctPage(ctx, c, f.url, logger)
	}

	err = pipeline.ReadLoop(ctx, os.Stdin, os.Stdout, c, "stdin")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// applyFlags overrides cfg with the flags that were set on the command line.
func applyFlags(cfg *config.Config, f flags) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "corpus":
			cfg.Corpus.Path = f.corpus
		case "db":
			cfg.Database.Path = f.db
		case "model":
			cfg.Model.Name = f.model
		case "segmenter":
			cfg.Pipeline.Segmenter = f.segmenter
		case "metrics-addr":
			cfg.Metrics.Addr = f.metricsAddr
		case "log-level":
			cfg.LogLevel = config.LogLevel(f.logLevel)
		}
	})
}

// loadModel returns the stored model named in cfg. When there is none, or
// retrain is set, the model is estimated from the corpus and stored.
func loadModel(ctx context.Context, conn *sql.DB, cfg *config.Config, retrain bool, logger *slog.Logger) (*hmm.Model, int64, error) {
	if !retrain {
		m, id, err := db.LoadModel(conn, cfg.Model.Name)
		if err == nil {
			logger.Info("loaded stored model", "model", cfg.Model.Name, "id", id)
			return m, id, nil
		}
		if !errors.Is(err, db.ErrModelNotFound) {
			return nil, 0, fmt.Errorf("load model %q: %w", cfg.Model.Name, err)
		}
	}

	if err := corpus.EnsureCorpus(ctx, cfg.Corpus.Path, cfg.Corpus.URL); err != nil {
		return nil, 0, err
	}
	start := time.Now()
	records, err := corpus.Load(cfg.Corpus.Path)
	if err != nil {
		if !corpus.IsLineError(err) {
			return nil, 0, fmt.Errorf("load corpus: %w", err)
		}
		logger.Warn("skipped malformed corpus lines", "path", cfg.Corpus.Path, "err", err)
	}
	if len(records) == 0 {
		return nil, 0, fmt.Errorf("corpus %s contains no records", cfg.Corpus.Path)
	}
	m := hmm.Estimate(records)

	id, err := db.SaveModel(ctx, conn, cfg.Model.Name, m, len(records))
	if err != nil {
		return nil, 0, fmt.Errorf("save model: %w", err)
	}
	logger.Info("trained model",
		"model", cfg.Model.Name,
		"records", len(records),
		"states", m.Emissions.Len(),
		"elapsed", time.Since(start),
	)
	return m, id, nil
}

func newCorrector(conn *sql.DB, d *hmm.Decoder, modelID int64, cfg *config.Config, logger *slog.Logger) (*pipeline.Corrector, func() error, error) {
	seg, err := segment.New(cfg.Pipeline.Segmenter)
	if err != nil {
		return nil, nil, err
	}
	c := pipeline.NewCorrector(d)
	c.Segmenter = seg
	c.Workers = cfg.Pipeline.Workers
	c.Logger = logger
	c.Metrics = observe.DefaultMetrics()

	closeWriter := func() error { return nil }
	if cfg.Pipeline.RecordCorrections {
		bw := pipeline.NewBatchWriter(conn, cfg.Pipeline.BatchSize, cfg.Pipeline.FlushInterval)
		c.Writer = bw
		c.ModelID = modelID
		closeWriter = bw.Close
	}
	return c, closeWriter, nil
}

func correctPage(ctx context.Context, c *pipeline.Corrector, rawURL string, logger *slog.Logger) error {
	logger.Info("fetching page", "url", rawURL)
	article, err := source.FetchArticle(ctx, nil, rawURL)
	if err != nil {
		return err
	}
	lines := source.Lines(article.Text)
	logger.Info("extracted article", "title", article.Title, "lines", len(lines))

	out, err := c.Run(ctx, lines, rawURL)
	if err != nil {
		return err
	}
	for _, l := range out {
		fmt.Println(l)
	}
	return nil
}

func evaluate(ctx context.Context, d *hmm.Decoder, path, plotPath string, workers int, logger *slog.Logger) error {
	records, err := corpus.Load(path)
	if err != nil {
		if !corpus.IsLineError(err) {
			return fmt.Errorf("load evaluation corpus: %w", err)
		}
		logger.Warn("skipped malformed evaluation lines", "path", path, "err", err)
	}
	rep, err := eval.Evaluate(ctx, d, records, workers)
	if err != nil {
		return err
	}
	if err := rep.WriteSummary(os.Stdout); err != nil {
		return err
	}
	if plotPath == "" {
		return nil
	}
	p, err := eval.PlotAccuracy(rep)
	if err != nil {
		return err
	}
	if err := eval.SavePlot(p, plotPath); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	logger.Info("wrote accuracy chart", "path", plotPath)
	return nil
}

func printHistory(conn *sql.DB, modelID int64, limit int) error {
	corrections, err := db.GetCorrections(conn, modelID, limit)
	if err != nil {
		return err
	}
	for _, c := range corrections {
		src := c.Source
		if src == "" {
			src = "-"
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", c.CreatedAt.Format(time.RFC3339), c.Typed, c.Decoded, src)
	}
	return nil
}

func printModels(conn *sql.DB) error {
	models, err := db.ListModels(conn)
	if err != nil {
		return err
	}
	for _, m := range models {
		fmt.Printf("%d\t%s\t%d\t%s\n", m.ID, m.Name, m.RecordCount, m.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observe.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
