package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/JoshVarga/inflate/config"
	"github.com/JoshVarga/inflate/renderer"
	"github.com/JoshVarga/inflate/zip"
)

func main() {
	cfg, err := config.NewConfig(os.Args[1:])
	if err != nil {
		logrus.Errorf("unable to load config: %s", err)
		os.Exit(1)
	}

	logrus.SetLevel(cfg.LogLevel())

	if cfg.CLI.DisableColor {
		color.NoColor = true
		logrus.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	}

	if !cfg.CLI.Quiet {
		displayConfig(cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	failures, err := run(ctx, cfg)
	if err != nil {
		logrus.Errorf("unable to process %s: %s", cfg.CLI.Archive, err)
		os.Exit(1)
	}

	if failures > 0 {
		logrus.Errorf("%d entries failed", failures)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) (int, error) {
	options := []zip.Option{zip.WithLogger(logrus.WithField("pkg", "zip"))}
	if cfg.TOML.Config.SkipCRC {
		options = append(options, zip.SkipChecksum())
	}

	archive, err := zip.OpenFile(cfg.CLI.Archive, options...)
	if err != nil {
		return 0, errors.Wrap(err, "unable to open archive")
	}
	defer archive.Close() // nolint: errcheck

	dumpRecords(archive)

	unsupported := lo.Filter(archive.Entries, func(entry *zip.Entry, _ int) bool {
		return entry.Supported() != nil
	})
	for _, entry := range unsupported {
		logrus.WithField("name", entry.FileName).Warnf("skipping entry: %s", entry.Supported())
	}
	if len(unsupported) > 0 && cfg.TOML.Config.FailUnsupported {
		return 0, errors.Wrapf(zip.ErrUnsupportedFeature, "%d unsupported entries", len(unsupported))
	}

	r := renderer.NewRenderer(os.Stdout)

	switch {
	case cfg.CLI.List && cfg.CLI.JSON:
		return 0, r.RenderEntriesJSON(archive.Entries)
	case cfg.CLI.List:
		r.RenderEntries(archive.Entries)
		return 0, nil
	}

	supported := lo.Without(archive.Entries, unsupported...)

	if cfg.CLI.Test {
		results, err := archive.ExtractEntries(ctx, supported, cfg.Workers(), nil)
		if err != nil {
			return 0, err
		}
		return r.RenderResults(results), nil
	}

	results, err := archive.ExtractTo(ctx, cfg.CLI.OutputDir, zip.ExtractOptions{
		Workers:         cfg.Workers(),
		Overwrite:       cfg.CLI.Overwrite || cfg.TOML.Config.Overwrite,
		SkipUnsupported: true,
	})
	if err != nil {
		return 0, err
	}

	if cfg.CLI.Quiet {
		return lo.CountBy(results, func(result zip.Result) bool {
			return result.Err != nil
		}), nil
	}
	return r.RenderResults(results), nil
}

func dumpRecords(archive *zip.Archive) {
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		return
	}

	logrus.Debug(archive.EOCD)
	logrus.Debugf("EOCD record:\n%s", spew.Sdump(archive.EOCD))
	for _, entry := range archive.Entries {
		logrus.Debug(entry.CentralDirectoryHeader)
		logrus.Debugf("local header of %s:\n%s", entry.FileName, spew.Sdump(entry.Local))
	}
}

func displayConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	logrus.Info("unzip settings:")
	logrus.Info("  [CLI]")
	logrus.Infof("  version: %s", config.VERSION)
	logrus.Infof("  archive: %s", cfg.CLI.Archive)
	logrus.Infof("  config file: %s", cfg.CLI.ConfigFile)
	logrus.Infof("  output dir: %s", cfg.CLI.OutputDir)
	logrus.Infof("  list: %v", cfg.CLI.List)
	logrus.Infof("  test: %v", cfg.CLI.Test)
	logrus.Infof("  debug: %v", cfg.CLI.Debug)
	logrus.Infof("  disable color: %v", cfg.CLI.DisableColor)
	logrus.Info("")
	logrus.Info("  [CONFIG]")
	logrus.Infof("  config.log_level: %s", cfg.TOML.Config.LogLevel)
	logrus.Infof("  config.num_workers: %d", cfg.TOML.Config.NumWorkers)
	logrus.Infof("  config.skip_crc: %v", cfg.TOML.Config.SkipCRC)
	logrus.Infof("  config.overwrite: %v", cfg.TOML.Config.Overwrite)
	logrus.Infof("  config.fail_unsupported: %v", cfg.TOML.Config.FailUnsupported)
}
