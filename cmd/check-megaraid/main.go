package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	"machinerun.io/raidhealth"
	"machinerun.io/raidhealth/megaraid"
)

var version string

// end prints the one and only plugin line(s) and terminates with the
// matching Nagios exit code.
func end(sev raidhealth.Severity, summary, detail string) {
	sep := ""
	if detail != "" {
		sep = "\n"
	}

	fmt.Printf("%s: %s%s%s\n", sev, summary, sep, detail)
	os.Exit(sev.ExitCode())
}

func main() {
	if unix.Geteuid() != 0 {
		end(raidhealth.Unknown, "Must be run as a root", "")
	}

	app := &cli.App{
		Name:    "check-megaraid",
		Version: version,
		Usage:   "Nagios-style health check for MegaRAID (AVAGO, LSI, Broadcom) controllers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "storcli",
				Aliases: []string{"s"},
				Value:   megaraid.DefaultStorCLI,
				Usage:   "path of the storcli executable",
			},
			&cli.BoolFlag{
				Name:    "nobattery",
				Aliases: []string{"b"},
				Usage:   "do not expect a BBU/cachevault to be installed",
			},
			&cli.BoolFlag{
				Name:    "nohotspare",
				Aliases: []string{"H"},
				Usage:   "do not expect a hot-spare drive to be configured",
			},
			&cli.BoolFlag{
				Name:    "ugood",
				Aliases: []string{"u"},
				Usage:   "do not warn about Unconfigured Good drives",
			},
			&cli.BoolFlag{
				Name:    "missingok",
				Aliases: []string{"m"},
				Usage: "do not warn about missing drives (empty slots); " +
					"runs of 3 or more empty slots are treated as OK regardless",
			},
			&cli.StringFlag{
				Name:    "missingoklist",
				Aliases: []string{"M"},
				Usage: "comma separated controller:enclosure:slot triples " +
					`allowed to be empty, for example "0:1:6,1:25:9"`,
			},
			&cli.BoolFlag{
				Name:    "othererrors",
				Aliases: []string{"o"},
				Usage:   "apply error thresholds to the Other Error Count counter",
			},
			&cli.BoolFlag{
				Name:    "fahrenheit",
				Aliases: []string{"f"},
				Usage:   "use Fahrenheit instead of Celsius",
			},
			&cli.IntFlag{
				Name:    "slotstart",
				Aliases: []string{"S"},
				Usage:   "first populated slot number in enclosures",
			},
			&cli.StringFlag{
				Name:    "limits",
				Aliases: []string{"l"},
				Usage: `colon separated warning:critical temperature limits, ` +
					`default "60:80" for Celsius and "140:176" for Fahrenheit`,
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "log storcli invocations to stderr",
			},
		},
		Action: check,
	}

	if err := app.Run(os.Args); err != nil {
		end(raidhealth.Unknown, err.Error(), "")
	}
}

func check(c *cli.Context) error {
	logrus.SetLevel(logrus.WarnLevel)

	if c.Bool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
	}

	opts := megaraid.DefaultOptions()
	opts.StorCLI = c.String("storcli")
	opts.ExpectBattery = !c.Bool("nobattery")
	opts.ExpectHotSpare = !c.Bool("nohotspare")
	opts.IgnoreUGood = c.Bool("ugood")
	opts.MissingOK = c.Bool("missingok")
	opts.IgnoreOtherErrors = !c.Bool("othererrors")
	opts.Fahrenheit = c.Bool("fahrenheit")
	opts.SlotStart = c.Int("slotstart")

	if limits := c.String("limits"); limits != "" {
		warn, crit, err := megaraid.ParseTempLimits(limits)
		if err != nil {
			end(raidhealth.Unknown, err.Error(), "")
		}

		opts.TempWarn, opts.TempCrit = warn, crit
	}

	if list := c.String("missingoklist"); list != "" {
		refs, err := megaraid.ParseMissingOKList(list)
		if err != nil {
			end(raidhealth.Unknown, err.Error(), "")
		}

		opts.MissingOKList = refs
	}

	run := megaraid.NewCachingRunner(megaraid.NewExecRunner(opts.StorCLI))

	if err := megaraid.CheckTool(opts.StorCLI, run); err != nil {
		detail := ""

		var terr *megaraid.ToolError
		if errors.As(err, &terr) {
			detail = terr.Detail
		}

		end(raidhealth.Unknown, err.Error(), detail)
	}

	report, err := megaraid.New(run, opts).Run()
	if err != nil {
		end(raidhealth.Unknown, err.Error(), "")
	}

	end(report.Severity, report.Summary, report.Detail)

	return nil
}
