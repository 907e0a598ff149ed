package pkg

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/samber/lo"
	"github.com/samber/oops"
	"github.com/urfave/cli"

	"github.com/vulnkit/vulnkit/pkg/log"
	"github.com/vulnkit/vulnkit/pkg/matcher"
	"github.com/vulnkit/vulnkit/pkg/normalize"
	"github.com/vulnkit/vulnkit/pkg/report"
	"github.com/vulnkit/vulnkit/pkg/sheet"
)

func inputPath(c *cli.Context) (string, error) {
	input := c.Args().First()
	if input == "" {
		return "", oops.Errorf("input workbook required")
	}
	return input, nil
}

func outputPath(c *cli.Context, input, suffix string) string {
	if output := c.String("output"); output != "" {
		return output
	}
	return strings.TrimSuffix(input, ".xlsx") + suffix
}

func match(c *cli.Context) error {
	input, err := inputPath(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	column := c.String("column")
	values, err := sheet.ReadColumn(input, column, c.Int("skip-rows"))
	if err != nil {
		return oops.With("column", column).Wrapf(err, "package list error")
	}
	packages := lo.Map(values, func(v string, _ int) string { return normalize.PackageName(v) })
	log.Info("Packages loaded", log.FilePath(input), log.Int("packages", len(lo.Uniq(packages))))

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	idx, err := openIndex(s, false)
	if err != nil {
		return err
	}
	if idx.Len() == 0 {
		log.Warn("The normalization index is empty, run the update command first")
	}

	res, err := matcher.Match(ctx, packages, cfg.Platforms, idx, policy)
	if err != nil {
		return err
	}

	output := outputPath(c, input, ".report.xlsx")
	if err = report.Write(output, res); err != nil {
		return err
	}
	affected := lo.CountBy(lo.Uniq(packages), func(name string) bool { return len(res.AffectedBy(name)) > 0 })
	log.Info("Report written", log.FilePath(output), log.String("maps", report.MapsPath(output)),
		log.Int("advisories", len(res.AdvisoryIDs())), log.Int("affected_packages", affected), log.Int("failed", len(res.Failed)))
	return nil
}
