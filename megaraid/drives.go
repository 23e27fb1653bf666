package megaraid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"machinerun.io/raidhealth"
)

//nolint:gochecknoglobals
var pdTableHeaderRE = regexp.MustCompile(`(?i)^\s*EID:Slt\s+DID\s+State.*\s+Sp\s+Type\s*$`)

// checkDrives enumerates the physical drives of one enclosure, judges
// each against the temperature/error thresholds and its role tag, and
// flags missing slots. It reports whether any drive is a hot spare and
// how many drives were seen, for the controller level cross-checks.
func (p *Probe) checkDrives(enc Enclosure, perf *raidhealth.PerfData) (
	res raidhealth.Result, hotspare bool, count int, err error) {
	out, _ := p.run.Run(fmt.Sprintf("/c%d/e%d/sall", enc.Ctrl, enc.ID), "show")

	observed := map[int]bool{}

	for _, line := range sectionLines(out, pdTableHeaderRE) {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		slot, perr := parseSlotNumber(fields[0])
		if perr != nil {
			return res, hotspare, count, perr
		}

		observed[slot] = true
		count++

		id := fmt.Sprintf("/c%d/e%d/s%d", enc.Ctrl, enc.ID, slot)

		vitals, perr := p.driveVitals(id)
		if perr != nil {
			return res, hotspare, count, perr
		}

		sev := p.driveThresholdSeverity(vitals)

		role := ParseDriveRole(fields[2])
		if role.IsHotSpare() {
			hotspare = true
		}

		sev = raidhealth.Combine(sev, p.roleSeverity(role))

		detail := p.driveDetailLine(id, role, fields, vitals)

		switch sev {
		case raidhealth.OK:
			res.AddOK("OK: " + detail)
		case raidhealth.Warning:
			res.AddWarn(id, "WA: "+detail)
		case raidhealth.Critical:
			res.AddCrit(id, "CR: "+detail)
		case raidhealth.Unknown:
			// thresholds and roles never yield Unknown
		}

		p.addDrivePerfData(perf, id, vitals)
	}

	for _, slot := range missingSlots(observed, p.opts.SlotStart) {
		id := fmt.Sprintf("/c%d/e%d/s%d", enc.Ctrl, enc.ID, slot)
		ref := SlotRef{Ctrl: enc.Ctrl, Enc: enc.ID, Slot: slot}

		if p.opts.MissingOK || p.opts.MissingOKList[ref] {
			res.AddOK("OK: PD (Missing) " + id)
		} else {
			res.AddWarn(id, "WA: PD (Missing) "+id)
		}
	}

	return res, hotspare, count, nil
}

func parseSlotNumber(eidSlot string) (int, error) {
	toks := strings.Split(eidSlot, ":")
	if len(toks) != 2 {
		return 0, errors.Errorf("EID:Slt field %q does not split into two", eidSlot)
	}

	slot, err := strconv.Atoi(toks[1])
	if err != nil {
		return 0, errors.Wrapf(err, "slot number in %q", eidSlot)
	}

	return slot, nil
}

func (p *Probe) driveVitals(id string) (DriveVitals, error) {
	out, _ := p.run.Run(id, "show", "all")

	vitals, err := parseDriveVitals(out, p.opts.Fahrenheit)
	if err != nil {
		return vitals, errors.Wrapf(err, "parsing attributes of %s", id)
	}

	return vitals, nil
}

// driveThresholdSeverity judges the numeric vitals. Critical limits
// dominate; the SMART alert flag counts as a Warning. Other-error
// thresholds apply only when not configured away.
func (p *Probe) driveThresholdSeverity(v DriveVitals) raidhealth.Severity {
	sev := raidhealth.OK

	switch {
	case v.Temperature >= float64(p.opts.TempCrit),
		v.MediaErrors >= p.opts.ErrCrit,
		v.PredictiveErrors >= p.opts.ErrCrit:
		sev = raidhealth.Combine(sev, raidhealth.Critical)
	case v.Temperature >= float64(p.opts.TempWarn),
		v.MediaErrors >= p.opts.ErrWarn,
		v.PredictiveErrors >= p.opts.ErrWarn,
		v.SmartAlert:
		sev = raidhealth.Combine(sev, raidhealth.Warning)
	}

	if !p.opts.IgnoreOtherErrors {
		switch {
		case v.OtherErrors >= p.opts.ErrCrit:
			sev = raidhealth.Combine(sev, raidhealth.Critical)
		case v.OtherErrors >= p.opts.ErrWarn:
			sev = raidhealth.Combine(sev, raidhealth.Warning)
		}
	}

	return sev
}

// roleSeverity maps a drive role to its severity contribution. The
// switch is exhaustive: a new vendor state lands in RoleUnknown and is
// Critical until someone classifies it here.
func (p *Probe) roleSeverity(role DriveRole) raidhealth.Severity {
	switch role {
	case RoleOnline, RoleGlobalHotSpare, RoleDedicatedHotSpare, RoleJBOD:
		return raidhealth.OK
	case RoleUnconfiguredGood, RoleUnconfiguredShielded:
		if p.opts.IgnoreUGood {
			return raidhealth.OK
		}

		return raidhealth.Warning
	case RoleCopyback, RoleRebuild:
		return raidhealth.Warning
	case RoleUnknown:
		return raidhealth.Critical
	}

	return raidhealth.Critical
}

func (p *Probe) driveDetailLine(id string, role DriveRole, fields []string, v DriveVitals) string {
	var prefix string

	switch role {
	case RoleOnline:
		prefix = "PD "
	case RoleGlobalHotSpare:
		prefix = "PD (GHS) "
	case RoleDedicatedHotSpare:
		prefix = fmt.Sprintf("PD (DHS VD%s) ", fields[3])
	case RoleJBOD:
		prefix = "PD (JBOD) "
	case RoleUnconfiguredGood:
		prefix = "PD (Unconfigured Good) "
	case RoleUnconfiguredShielded:
		prefix = "PD (Unconfigured Good Shielded) "
	case RoleCopyback:
		prefix = "PD (CopyBack) "
	case RoleRebuild:
		prefix = "PD (Rebuild) "
	case RoleUnknown:
		prefix = fmt.Sprintf("PD (%s) ", fields[2])
	}

	smartOK := "OK"
	if v.SmartAlert {
		smartOK = "FAIL"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%s%s ", prefix, id)

	if !strings.EqualFold(v.Manufacturer, "ATA") {
		fmt.Fprintf(&b, "%s; ", v.Manufacturer)
	}

	fmt.Fprintf(&b, "%s; SN: %s; Temperature: %6.2f˚%s; ",
		v.Model, v.Serial, v.Temperature, p.unitLabel())
	fmt.Fprintf(&b, "Errors: SMART: %s, Media: %d, Other: %d, Predictive: %d",
		smartOK, v.MediaErrors, v.OtherErrors, v.PredictiveErrors)

	return b.String()
}

func (p *Probe) addDrivePerfData(perf *raidhealth.PerfData, id string, v DriveVitals) {
	if p.opts.Fahrenheit {
		perf.Add(id, "temperature", fmt.Sprintf("%s;%d;%d",
			strconv.FormatFloat(v.Temperature, 'f', -1, 64),
			p.opts.TempWarn, p.opts.TempCrit))
	} else {
		perf.Add(id, "temperature", fmt.Sprintf("%d;%d;%d",
			int(v.Temperature), p.opts.TempWarn, p.opts.TempCrit))
	}

	other := strconv.Itoa(v.OtherErrors)
	if !p.opts.IgnoreOtherErrors {
		other += fmt.Sprintf(";%d;%d", p.opts.ErrWarn, p.opts.ErrCrit)
	}

	perf.Add(id, "errors_other", other)
	perf.Add(id, "errors_media", fmt.Sprintf("%d;%d;%d",
		v.MediaErrors, p.opts.ErrWarn, p.opts.ErrCrit))
	perf.Add(id, "errors_predictive", fmt.Sprintf("%d;%d;%d",
		v.PredictiveErrors, p.opts.ErrWarn, p.opts.ErrCrit))

	smart := 0
	if v.SmartAlert {
		smart = 1
	}

	perf.Add(id, "smart_ok", fmt.Sprintf("%d;1", smart))
}

// missingSlots returns the unoccupied slot numbers between start and
// the highest observed slot, except that a contiguous run of more than
// two empty slots is taken as an intentionally unpopulated section and
// suppressed entirely.
func missingSlots(observed map[int]bool, start int) []int {
	if len(observed) == 0 {
		return nil
	}

	last := start
	for slot := range observed {
		if slot > last {
			last = slot
		}
	}

	if last > slotRangeMax {
		last = slotRangeMax
	}

	var missing []int

	for slot := start; slot <= last; slot++ {
		if !observed[slot] {
			missing = append(missing, slot)
		}
	}

	kept := []int{}

	for i := 0; i < len(missing); {
		j := i
		for j+1 < len(missing) && missing[j+1] == missing[j]+1 {
			j++
		}

		const maxFlaggedRun = 2
		if j-i+1 <= maxFlaggedRun {
			kept = append(kept, missing[i:j+1]...)
		}

		i = j + 1
	}

	return kept
}
