package pkg

import (
	"github.com/urfave/cli"

	"github.com/vulnkit/vulnkit/pkg/config"
	"github.com/vulnkit/vulnkit/pkg/log"
)

func NewApp(version string) *cli.App {
	app := cli.NewApp()
	app.Name = "vulnkit"
	app.Version = version
	app.Usage = "Red Hat VEX aggregation and package impact reports"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "YAML config file, flags take precedence over it",
		},
		cli.StringFlag{
			Name:  "data-dir",
			Usage: "directory holding advisories, normalized records and metadata",
			Value: config.Default().DataDir,
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "debug mode",
		},
	}
	app.Before = func(c *cli.Context) error {
		log.InitLogger(c.GlobalBool("debug"))
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:   "update",
			Usage:  "download missing advisories and normalize them for the requested platforms",
			Action: update,
			Flags: append(commonFlags(),
				cli.IntFlag{
					Name:  "workers",
					Usage: "number of advisories reduced concurrently (default: number of CPUs)",
				},
				cli.IntFlag{
					Name:  "checkpoint-interval",
					Usage: "persist the index every N merged advisories",
				},
				cli.BoolFlag{
					Name:  "reset-index",
					Usage: "discard a corrupt normalization index instead of failing",
				},
				cli.BoolFlag{
					Name:  "skip-download",
					Usage: "only normalize the advisories already downloaded",
				},
				cli.IntFlag{
					Name:  "concurrency",
					Usage: "maximum number of downloads in flight",
				},
				cli.Float64Flag{
					Name:  "rate",
					Usage: "maximum number of requests per second, 0 for no limit",
				},
				cli.Uint64Flag{
					Name:  "retries",
					Usage: "retries of a failed download",
				},
				cli.IntFlag{
					Name:  "retry-passes",
					Usage: "passes over the downloads which still failed",
				},
			),
		},
		{
			Name:      "match",
			Usage:     "report the advisories affecting the packages listed in a workbook",
			ArgsUsage: "input_xlsx",
			Action:    match,
			Flags: append(commonFlags(),
				cli.StringFlag{
					Name:  "column",
					Usage: "header of the package column",
					Value: "Progiciel",
				},
				cli.IntFlag{
					Name:  "skip-rows",
					Usage: "rows to skip after the header",
				},
				cli.StringFlag{
					Name:  "output, o",
					Usage: "output workbook, the JSON maps are written next to it (default: <input>.report.xlsx)",
				},
				cli.StringFlag{
					Name:  "priority",
					Usage: "categories in reporting order (comma separated)",
				},
				cli.StringFlag{
					Name:  "exclude",
					Usage: "categories never counted as affecting (comma separated)",
				},
			),
		},
		{
			Name:      "annotate",
			Usage:     "add remediation and status columns to a workbook of CVE and package rows",
			ArgsUsage: "input_xlsx",
			Action:    annotateWorkbook,
			Flags: append(commonFlags(),
				cli.StringFlag{
					Name:  "output, o",
					Usage: "output workbook (default: <input>.annotated.xlsx)",
				},
				cli.StringFlag{
					Name:  "modes",
					Usage: "processing modes (comma separated): remediations, status",
					Value: "remediations",
				},
				cli.BoolFlag{
					Name:  "skip-download",
					Usage: "read the advisories already downloaded only",
				},
			),
		},
		{
			Name:   "status",
			Usage:  "show the last update",
			Action: status,
			Flags:  commonFlags(),
		},
	}

	return app
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "platforms",
			Usage: "RHEL major versions (comma separated)",
		},
		cli.StringFlag{
			Name:  "store",
			Usage: "normalized record store: json or bolt",
		},
	}
}
