package pkg

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gocsaf/csaf/v3/csaf"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"github.com/urfave/cli"

	"github.com/vulnkit/vulnkit/pkg/annotate"
	"github.com/vulnkit/vulnkit/pkg/log"
	"github.com/vulnkit/vulnkit/pkg/reducer"
	"github.com/vulnkit/vulnkit/pkg/sheet"
	"github.com/vulnkit/vulnkit/pkg/source/redhat"
	"github.com/vulnkit/vulnkit/pkg/types"
)

const annotatedSheet = "annotated"

func annotateWorkbook(c *cli.Context) error {
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

	var modes []annotate.Mode
	for _, name := range splitList(c.String("modes")) {
		m := annotate.NewMode(name)
		if m == annotate.ModeUnknown {
			return oops.With("mode", name).Errorf("unknown processing mode")
		}
		modes = append(modes, m)
	}
	modes = lo.Uniq(modes)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, err := sheet.ReadRows(input, 0, annotate.AdvisoryColumn, annotate.PackageColumn)
	if err != nil {
		return err
	}
	rows := annotate.ParseRows(records)
	log.Info("Rows loaded", log.FilePath(input), log.Int("rows", len(rows)))

	src := newSource(cfg)
	if !c.Bool("skip-download") {
		if _, err = src.Fetch(ctx, annotate.Advisories(rows)); err != nil {
			return err
		}
	}

	load := func(id types.AdvisoryID) (*csaf.Advisory, error) {
		if !redhat.ValidID(id) {
			return nil, oops.With("advisory_id", id).Errorf("invalid advisory ID")
		}
		f, err := os.Open(src.Path(id))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return reducer.Decode(f)
	}

	a := annotate.New(cfg.Platforms, policy, modes...)
	output := outputPath(c, input, ".annotated.xlsx")
	if err = sheet.Write(output, a.Annotate(annotatedSheet, rows, load)); err != nil {
		return err
	}
	log.Info("Workbook written", log.FilePath(output))
	return nil
}
