package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/langid-train/internal/config"
	"github.com/standardbeagle/langid-train/internal/debug"
	"github.com/standardbeagle/langid-train/internal/pipeline"
)

// runCtx cancels the returned context on SIGINT/SIGTERM so a long
// train run aborts its worker pools instead of leaving them running
// past the process's own shutdown.
func runCtx() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		if sig, ok := <-sigChan; ok {
			fmt.Printf("\nreceived signal %v, stopping...\n", sig)
			cancel()
		}
	}()
	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// loadConfigWithOverrides loads the optional config file and layers CLI
// flags on top of it, mirroring the shared flags available to both
// subcommands.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if v := c.String("model"); v != "" {
		cfg.Model = v
	}
	if c.IsSet("proportion") {
		cfg.Proportion = c.Float64("proportion")
	}
	if c.IsSet("min_domain") {
		cfg.MinDomain = c.Int("min_domain")
	}
	if langs := c.StringSlice("lang"); len(langs) > 0 {
		cfg.Langs = langs
	}
	if domains := c.StringSlice("domain"); len(domains) > 0 {
		cfg.Domains = domains
	}
	if c.IsSet("jobs") {
		cfg.Jobs = c.Int("jobs")
	}
	if c.IsSet("buckets") {
		cfg.Buckets = c.Int("buckets")
	}
	if c.IsSet("chunksize") {
		cfg.ChunkSize = c.Int("chunksize")
	}
	if c.IsSet("max_order") {
		cfg.MaxOrder = c.Int("max_order")
	}
	if c.IsSet("df_tokens") {
		cfg.DFTokens = c.Int("df_tokens")
	}
	if c.IsSet("feats_per_lang") {
		cfg.FeatsPerLang = c.Int("feats_per_lang")
	}
	if c.Bool("word") {
		cfg.Word = true
	}
	if v := c.String("df_feats"); v != "" {
		cfg.DFFeatsPath = v
	}
	if v := c.String("ld_feats"); v != "" {
		cfg.LDFeatsPath = v
	}
	if c.Bool("no_domain_ig") {
		cfg.NoDomainIG = true
	}
	if c.IsSet("sample_size") {
		cfg.SampleSize = c.Int("sample_size")
	}
	if c.IsSet("sample_count") {
		cfg.SampleCount = c.Int("sample_count")
	}
	if v := c.String("temp"); v != "" {
		cfg.TempDir = v
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}
	if c.IsSet("class_alpha") {
		cfg.ClassAlpha = c.Float64("class_alpha")
	}
	if c.IsSet("feature_beta") {
		cfg.FeatureBeta = c.Float64("feature_beta")
	}

	return cfg, nil
}

func sharedFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "TOML config file overlaying the defaults",
		},
		&cli.StringFlag{
			Name:    "model",
			Aliases: []string{"m"},
			Usage:   "Output directory for the trained model and debug artifacts",
		},
		&cli.Float64Flag{
			Name:  "proportion",
			Usage: "Proportion of each domain/lang bucket to sample",
		},
		&cli.IntFlag{
			Name:  "min_domain",
			Usage: "Minimum number of domains a language must appear in",
		},
		&cli.StringSliceFlag{
			Name:  "lang",
			Usage: "Restrict training to these languages (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "domain",
			Usage: "Restrict training to these domains (repeatable)",
		},
	}
}

func main() {
	app := &cli.App{
		Name:  "langid-train",
		Usage: "train a byte-n-gram naive Bayes language identifier",
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "scan a corpus and print the language/domain distribution",
				ArgsUsage: "CORPUS_DIR",
				Flags:     sharedFlags(),
				Action:    indexCommand,
			},
			{
				Name:      "train",
				Usage:     "run the full tally -> select -> learn pipeline and write a model",
				ArgsUsage: "CORPUS_DIR",
				Flags: append(sharedFlags(),
					&cli.IntFlag{
						Name:  "jobs",
						Usage: "Number of worker goroutines",
					},
					&cli.IntFlag{
						Name:  "buckets",
						Usage: "Number of feature buckets for the tally pass",
					},
					&cli.IntFlag{
						Name:  "chunksize",
						Usage: "Documents per worker chunk",
					},
					&cli.IntFlag{
						Name:  "max_order",
						Usage: "Maximum byte n-gram order",
					},
					&cli.IntFlag{
						Name:  "df_tokens",
						Usage: "Number of document-frequency features to keep per order",
					},
					&cli.IntFlag{
						Name:  "feats_per_lang",
						Usage: "Number of LD features to keep per language",
					},
					&cli.BoolFlag{
						Name:  "word",
						Usage: "Tokenize on whitespace instead of byte n-grams",
					},
					&cli.StringFlag{
						Name:  "df_feats",
						Usage: "Skip DF selection, read candidate features from this file",
					},
					&cli.StringFlag{
						Name:  "ld_feats",
						Usage: "Skip DF/IG/LD selection entirely, train directly on this feature file",
					},
					&cli.BoolFlag{
						Name:  "no_domain_ig",
						Usage: "Disable the domain-IG penalty term in LD scoring",
					},
					&cli.IntFlag{
						Name:  "sample_size",
						Usage: "Bytes read per document sample",
					},
					&cli.IntFlag{
						Name:  "sample_count",
						Usage: "Number of samples per document (-1 = whole document, no sampling; 0 is rejected)",
						Value: -1,
					},
					&cli.StringFlag{
						Name:  "temp",
						Usage: "Directory for intermediate tally buckets (default: <model>/buckets)",
					},
					&cli.BoolFlag{
						Name:  "debug",
						Usage: "Write intermediate artifacts (DF_all, DFfeats, LDfeats, IG weights) into the model directory",
					},
					&cli.Float64Flag{
						Name:  "class_alpha",
						Usage: "Additive smoothing for class priors",
					},
					&cli.Float64Flag{
						Name:  "feature_beta",
						Usage: "Additive smoothing for feature-class counts",
					},
				),
				Action: trainCommand,
			},
		},
	}

	ctx, stop := runCtx()
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func indexCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: langid-train index CORPUS_DIR", 1)
	}
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	cfg.Corpus = c.Args().First()

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Debug {
		debug.SetEnabled(true)
		debug.SetOutput(os.Stderr)
	}

	_, err = pipeline.Index(cfg)
	return err
}

func trainCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: langid-train train CORPUS_DIR", 1)
	}
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	cfg.Corpus = c.Args().First()
	if cfg.Model == "" {
		return cli.Exit("--model is required for train", 1)
	}
	if cfg.Debug {
		debug.SetEnabled(true)
		debug.SetOutput(os.Stderr)
	}

	result, err := pipeline.Train(c.Context, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("wrote model to %s (%d features, %d classes)\n", result.ModelPath, result.NumFeats, result.NumClasses)
	return nil
}
