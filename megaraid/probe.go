package megaraid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"machinerun.io/raidhealth"
)

// Probe runs one full health check pass over every MegaRAID controller
// reachable through its Runner.
type Probe struct {
	run  Runner
	opts Options
}

// New returns a Probe using run for storcli invocations. Zero-valued
// threshold options are filled with the defaults for the configured
// temperature unit.
func New(run Runner, opts Options) *Probe {
	if opts.ErrWarn == 0 && opts.ErrCrit == 0 {
		opts.ErrWarn, opts.ErrCrit = defaultErrWarn, defaultErrCrit
	}

	if opts.TempWarn == 0 && opts.TempCrit == 0 {
		opts.TempWarn, opts.TempCrit = defaultTempWarnC, defaultTempCritC
		if opts.Fahrenheit {
			opts.TempWarn = toFahrenheit(defaultTempWarnC)
			opts.TempCrit = toFahrenheit(defaultTempCritC)
		}
	}

	return &Probe{run: run, opts: opts}
}

func (p *Probe) unitLabel() string {
	if p.opts.Fahrenheit {
		return "F"
	}

	return "C"
}

// Report is the final verdict of one probe pass: the folded severity,
// the one-line summary, and the long output including the perfdata
// trailer.
type Report struct {
	Severity raidhealth.Severity
	Summary  string
	Detail   string
}

//nolint:gochecknoglobals
var (
	ctrlCountRE       = regexp.MustCompile(`(?i)^Controller\s+Count\s+=\s\d+$`)
	ctrlTableHeaderRE = regexp.MustCompile(`(?i)^Ctl\s+Model\s+Ports\s+.*Hlth\s*$`)
	encTableHeaderRE  = regexp.MustCompile(`(?i)^EID\s+State\s+Slots\s+PD.*ProdID\s+VendorSpecific\s*$`)
	vdTableHeaderRE   = regexp.MustCompile(`(?i)^\s*DG/VD\s+TYPE\s+.*Size\s+Name\s*$`)

	bbuUseCvRE    = regexp.MustCompile(`(?i)Failed\s+-\s+use\s+/cx/cv\s+255`)
	battOptimalRE = regexp.MustCompile(`(?i)\s+Optimal\s+`)
	bbuAbsentRE   = regexp.MustCompile(`(?i)Battery\s+is\s+absent!`)
	cvAbsentRE    = regexp.MustCompile(`(?i)Cachevault\s+is\s+absent!`)

	sccScheduledRE = regexp.MustCompile(`(?i)^on`)
	vdPartDegrRE   = regexp.MustCompile(`(?i)^pdgd`)
	vdDegradedRE   = regexp.MustCompile(`(?i)^dgrd`)

	foreignNoneRE = regexp.MustCompile(`(?i)Couldn't\s+find\s+any\s+foreign\s+Configuration`)
)

// Run performs the whole probe: controller enumeration, battery,
// virtual drive, enclosure, physical drive, hot-spare, and foreign
// configuration checks, folded into one Report. A non-nil error is a
// fatal condition the caller must map to an Unknown exit.
func (p *Probe) Run() (Report, error) {
	ctrls, err := p.controllers()
	if err != nil {
		return Report{}, err
	}

	perf := raidhealth.NewPerfData()

	var foreign, drives, spares, vds, encs raidhealth.Result

	batt := p.checkBatteries(ctrls)

	for _, ctrl := range ctrls {
		vds.Merge(p.checkVirtDrives(ctrl))

		encRes, enclosures, err := p.checkEnclosures(ctrl)
		if err != nil {
			return Report{}, err
		}

		encs.Merge(encRes)

		hasSpare := false

		for _, enc := range enclosures {
			dRes, spare, count, err := p.checkDrives(enc, perf)
			if err != nil {
				return Report{}, err
			}

			drives.Merge(dRes)

			hasSpare = hasSpare || spare

			if count != enc.PDCount {
				encID := fmt.Sprintf("/c%d/e%d", enc.Ctrl, enc.ID)
				drives.AddWarn(encID, fmt.Sprintf(
					"WA: Enclosure %s The disk count found does not correspond with the disk count reported",
					encID))
			}
		}

		spares.Merge(p.checkHotSpare(ctrl, hasSpare))
		foreign.Merge(p.checkForeign(ctrl))
	}

	return p.report(foreign, drives, spares, vds, encs, batt, perf), nil
}

// controllers cross-validates the controller listing against the count
// the firmware reports. Any mismatch aborts the probe; every other
// check depends on this list being trustworthy.
func (p *Probe) controllers() ([]int, error) {
	out, _ := p.run.Run("show", "ctrlcount")

	count := 0

	for _, line := range strings.Split(out, "\n") {
		if !ctrlCountRE.MatchString(line) {
			continue
		}

		toks := strings.Split(line, "=")

		n, err := strconv.Atoi(strings.TrimSpace(toks[len(toks)-1]))
		if err != nil {
			return nil, errors.Wrap(err, "parsing controller count")
		}

		count = n

		break
	}

	out, _ = p.run.Run("show")

	ctrls := []int{}

	for _, line := range sectionLines(out, ctrlTableHeaderRE) {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, errors.Wrapf(err, "parsing controller number from %q", line)
		}

		ctrls = append(ctrls, id)
	}

	if len(ctrls) != count {
		return nil, ErrControllerMismatch
	}

	return ctrls, nil
}

// checkBatteries inspects each controller's BBU, rerouting to the
// cachevault facet when the BBU report says so. An absent unit is
// Critical unless a battery is declared not expected.
func (p *Probe) checkBatteries(ctrls []int) raidhealth.Result {
	res := raidhealth.Result{}

	var cvCtrls []int

	for _, ctrl := range ctrls {
		out, _ := p.run.Run(fmt.Sprintf("/c%d/bbu", ctrl), "show")

		switch {
		case bbuUseCvRE.MatchString(out):
			cvCtrls = append(cvCtrls, ctrl)
		case battOptimalRE.MatchString(out):
			res.AddOK(fmt.Sprintf("OK: Battery on /c%d.", ctrl))
		case bbuAbsentRE.MatchString(out):
			p.addAbsentBattery(&res, ctrl)
		default:
			res.AddCrit(fmt.Sprintf("/c%d", ctrl),
				fmt.Sprintf("CR: Battery on controller /c%d", ctrl))
		}
	}

	for _, ctrl := range cvCtrls {
		out, _ := p.run.Run(fmt.Sprintf("/c%d/cv", ctrl), "show")

		switch {
		case battOptimalRE.MatchString(out):
			res.AddOK(fmt.Sprintf("OK: Battery on /c%d", ctrl))
		case cvAbsentRE.MatchString(out):
			p.addAbsentBattery(&res, ctrl)
		default:
			res.AddCrit(fmt.Sprintf("/c%d", ctrl),
				fmt.Sprintf("CR: Battery on controller /c%d", ctrl))
		}
	}

	return res
}

func (p *Probe) addAbsentBattery(res *raidhealth.Result, ctrl int) {
	if p.opts.ExpectBattery {
		res.AddCrit(fmt.Sprintf("/c%d", ctrl),
			fmt.Sprintf("CR: Battery on controller /c%d is missing.", ctrl))
	} else {
		res.AddOK(fmt.Sprintf(
			"OK: Battery on controller /c%d is missing, but this is expected.", ctrl))
	}
}

// checkVirtDrives judges each virtual drive on three independent
// conditions: consistency check not scheduled, partially degraded, and
// degraded. A drive can land in several buckets at once.
func (p *Probe) checkVirtDrives(ctrl int) raidhealth.Result {
	res := raidhealth.Result{}

	out, _ := p.run.Run(fmt.Sprintf("/c%d/vall", ctrl), "show")

	for _, line := range sectionLines(out, vdTableHeaderRE) {
		fields := strings.Fields(line)

		const minVDFields = 8
		if len(fields) < minVDFields {
			continue
		}

		vdNum := fields[0]
		if i := strings.IndexByte(vdNum, '/'); i >= 0 {
			vdNum = vdNum[i+1:]
		}

		id := fmt.Sprintf("/c%d/v%s", ctrl, vdNum)
		healthy := true

		if !sccScheduledRE.MatchString(fields[7]) {
			res.AddWarn(id, fmt.Sprintf("WA: VD %s does not have scheduled CC", id))

			healthy = false
		}

		if vdPartDegrRE.MatchString(fields[2]) {
			res.AddWarn(id, fmt.Sprintf("WA: VD %s is partially degraded", id))

			healthy = false
		}

		if vdDegradedRE.MatchString(fields[2]) {
			res.AddCrit(id, fmt.Sprintf("CR: VD %s is DEGRADED", id))

			healthy = false
		}

		if healthy {
			res.AddOK("OK: VD " + id)
		}
	}

	return res
}

// checkEnclosures lists the controller's enclosures, judging their
// health strings and recording declared slot and drive counts for the
// physical-drive cross-check.
func (p *Probe) checkEnclosures(ctrl int) (raidhealth.Result, []Enclosure, error) {
	res := raidhealth.Result{}

	out, _ := p.run.Run(fmt.Sprintf("/c%d/eall", ctrl), "show")

	var enclosures []Enclosure

	for _, line := range sectionLines(out, encTableHeaderRE) {
		fields := strings.Fields(line)

		const minEncFields = 4
		if len(fields) < minEncFields {
			continue
		}

		eid, err := strconv.Atoi(fields[0])
		if err != nil {
			return res, nil, errors.Wrapf(err, "parsing enclosure number from %q", line)
		}

		slots, err := strconv.Atoi(fields[2])
		if err != nil {
			return res, nil, errors.Wrapf(err, "parsing slot count from %q", line)
		}

		pds, err := strconv.Atoi(fields[3])
		if err != nil {
			return res, nil, errors.Wrapf(err, "parsing drive count from %q", line)
		}

		id := fmt.Sprintf("/c%d/e%d", ctrl, eid)

		if !strings.EqualFold(fields[1], "OK") {
			res.AddCrit(id, "CR: Enclosure "+id)
		} else {
			res.AddOK("OK: Enclosure " + id)
		}

		enclosures = append(enclosures, Enclosure{
			Ctrl:    ctrl,
			ID:      eid,
			State:   fields[1],
			Slots:   slots,
			PDCount: pds,
		})
	}

	return res, enclosures, nil
}

func (p *Probe) checkHotSpare(ctrl int, hasSpare bool) raidhealth.Result {
	res := raidhealth.Result{}

	if hasSpare {
		return res
	}

	if p.opts.ExpectHotSpare {
		res.AddWarn(fmt.Sprintf("/c%d", ctrl),
			fmt.Sprintf("WA: HS on /c%d is missing", ctrl))
	} else {
		res.AddOK(fmt.Sprintf("OK: HS on /c%d is missing, but this is expected", ctrl))
	}

	return res
}

// checkForeign warns when a controller holds RAID metadata from some
// other controller. Foreign configurations need operator attention but
// destroy nothing by themselves.
func (p *Probe) checkForeign(ctrl int) raidhealth.Result {
	res := raidhealth.Result{}

	out, _ := p.run.Run(fmt.Sprintf("/c%d/fall", ctrl), "show")

	if !foreignNoneRE.MatchString(out) {
		res.AddWarn(fmt.Sprintf("/c%d", ctrl),
			fmt.Sprintf("WA: Foreign configuration detected on /c%d", ctrl))
	}

	return res
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ";") + ";"
}

// report folds the facet results into the final Report. Facets render
// in a fixed order; a clean facet shows "OK;" except the foreign
// configuration one, which only ever appears when it found something.
func (p *Probe) report(
	foreign, drives, spares, vds, encs, batt raidhealth.Result,
	perf *raidhealth.PerfData) Report {
	facets := []struct {
		tag    string
		res    raidhealth.Result
		hideOK bool
	}{
		{"FC", foreign, true},
		{"PDs", drives, false},
		{"HS", spares, false},
		{"VDs", vds, false},
		{"Enc", encs, false},
		{"Batt", batt, false},
	}

	sev := raidhealth.OK

	var summary strings.Builder

	var detail []string

	for _, f := range facets {
		sev = raidhealth.Combine(sev, f.res.Severity)
		detail = append(detail, f.res.Detail...)

		seg := f.tag + ":"

		if len(f.res.Crit) > 0 {
			seg += " CR-" + joinIDs(f.res.Crit)
		}

		if len(f.res.Warn) > 0 {
			seg += " WA-" + joinIDs(f.res.Warn)
		}

		if f.res.Severity == raidhealth.OK {
			if f.hideOK {
				continue
			}

			seg += " OK;"
		}

		summary.WriteString(seg + " ")
	}

	long := strings.Join(detail, "\n")
	if long != "" {
		long += "\n"
	}

	long += "|" + perf.String()

	return Report{
		Severity: sev,
		Summary:  strings.TrimSpace(summary.String()),
		Detail:   long,
	}
}
