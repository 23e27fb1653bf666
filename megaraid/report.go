package megaraid

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// sectionRuleRE - the dashed rule storcli draws above and below each
// tabular section.
//
//nolint:gochecknoglobals
var sectionRuleRE = regexp.MustCompile(`^-----+$`)

// sectionLines returns the body lines between the first two dashed
// rules following the first line matching header. If the header never
// appears, or fewer than two rules follow it, it returns an empty
// slice. Trailing sections are never consumed.
func sectionLines(text string, header *regexp.Regexp) []string {
	lines := []string{}

	var headerFound, open bool

	for _, line := range strings.Split(text, "\n") {
		switch {
		case !headerFound:
			headerFound = header.MatchString(line)
		case sectionRuleRE.MatchString(line):
			if open {
				return lines
			}

			open = true
		case open:
			lines = append(lines, line)
		}
	}

	return nil
}

type attrKind int

const (
	attrString attrKind = iota
	attrInt
	attrFloat
	attrBool
)

type attrSpec struct {
	name string
	re   *regexp.Regexp
	kind attrKind
}

// driveAttrSpecs - the attributes pulled from a per-drive detail dump.
// Scanning captures each attribute's first occurrence and stops once
// all are found.
//
//nolint:gochecknoglobals
var driveAttrSpecs = []attrSpec{
	{"manufacturer", regexp.MustCompile(`(?i)^Manufacturer\s+Id\s+=\s+`), attrString},
	{"model", regexp.MustCompile(`(?i)^Model\s+Number\s+=\s+`), attrString},
	{"serial", regexp.MustCompile(`(?i)^SN\s+=\s+`), attrString},
	{"temperature", regexp.MustCompile(`(?i)^Drive\s+Temperature\s+=\s+`), attrFloat},
	{"smart", regexp.MustCompile(`(?i)^S\.M\.A\.R\.T\s+alert\s+flagged\s+by\s+drive\s+=\s+`), attrBool},
	{"mediaErrors", regexp.MustCompile(`(?i)^Media\s+Error\s+Count\s+=\s+`), attrInt},
	{"otherErrors", regexp.MustCompile(`(?i)^Other\s+Error\s+Count\s+=\s+`), attrInt},
	{"predictiveErrors", regexp.MustCompile(`(?i)^Predictive\s+Failure\s+Count\s+=\s+`), attrInt},
}

//nolint:gochecknoglobals
var (
	attrAssignRE     = regexp.MustCompile(`\s+=\s+`)
	tempPairRE       = regexp.MustCompile(`(?i)^\d+\s*C\s+\(?\d+[.,]\d+\s*F\)?`)
	tempCelsiusRE    = regexp.MustCompile(`(?i)(\d+[,.]?\d*)\s*C`)
	tempFahrenheitRE = regexp.MustCompile(`(?i)(\d+[,.]?\d*)\s*F`)
	yesRE            = regexp.MustCompile(`(?i)^yes$`)
	noRE             = regexp.MustCompile(`(?i)^no$`)
	notAvailableRE   = regexp.MustCompile(`(?i)^N/A$`)
)

// naSentinel stands in for counters the firmware reports as "N/A".
// Callers that must tell "zero" from "unavailable" check for it.
const naSentinel = -99

type attrValue struct {
	str string
	i   int
	f   float64
	b   bool
}

func rawAttrValue(line string) string {
	toks := attrAssignRE.Split(strings.TrimSpace(line), 2)
	return strings.TrimSpace(toks[len(toks)-1])
}

func coerceAttr(raw string, kind attrKind, useFahrenheit bool) (attrValue, error) {
	switch {
	case tempPairRE.MatchString(raw):
		unitRE, unit := tempCelsiusRE, "C"
		if useFahrenheit {
			unitRE, unit = tempFahrenheitRE, "F"
		}

		m := unitRE.FindStringSubmatch(raw)
		if m == nil {
			return attrValue{}, errors.Errorf("temperature %q has no %s reading", raw, unit)
		}

		raw = strings.Replace(m[1], ",", ".", 1)
	case yesRE.MatchString(raw), noRE.MatchString(raw):
		yes := yesRE.MatchString(raw)

		switch kind {
		case attrBool:
			return attrValue{b: yes}, nil
		case attrInt, attrFloat:
			n := 0
			if yes {
				n = 1
			}

			return attrValue{i: n, f: float64(n)}, nil
		case attrString:
			return attrValue{str: raw}, nil
		}
	case notAvailableRE.MatchString(raw):
		switch kind {
		case attrInt, attrFloat:
			return attrValue{i: naSentinel, f: naSentinel}, nil
		case attrBool:
			// an unavailable flag cannot be assumed clear
			return attrValue{b: true}, nil
		case attrString:
			return attrValue{str: raw}, nil
		}
	}

	switch kind {
	case attrString:
		return attrValue{str: raw}, nil
	case attrInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return attrValue{}, errors.Errorf("value %q is not an integer", raw)
		}

		return attrValue{i: n, f: float64(n)}, nil
	case attrFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return attrValue{}, errors.Errorf("value %q is not a number", raw)
		}

		return attrValue{f: f}, nil
	case attrBool:
		return attrValue{}, errors.Errorf("value %q is not a yes/no flag", raw)
	}

	return attrValue{}, nil
}

// parseDriveVitals extracts the DriveVitals attributes from a drive
// detail dump. A value that cannot be coerced to its declared type is
// a hard error: it means the tool's output format changed and nothing
// derived from it can be trusted.
func parseDriveVitals(text string, useFahrenheit bool) (DriveVitals, error) {
	found := map[string]attrValue{}

	for _, line := range strings.Split(text, "\n") {
		for _, spec := range driveAttrSpecs {
			if _, ok := found[spec.name]; ok {
				continue
			}

			if !spec.re.MatchString(line) {
				continue
			}

			val, err := coerceAttr(rawAttrValue(line), spec.kind, useFahrenheit)
			if err != nil {
				return DriveVitals{}, errors.Wrapf(err, "attribute %s", spec.name)
			}

			found[spec.name] = val

			break
		}

		if len(found) == len(driveAttrSpecs) {
			break
		}
	}

	return DriveVitals{
		Manufacturer:     found["manufacturer"].str,
		Model:            found["model"].str,
		Serial:           found["serial"].str,
		Temperature:      found["temperature"].f,
		SmartAlert:       found["smart"].b,
		MediaErrors:      found["mediaErrors"].i,
		OtherErrors:      found["otherErrors"].i,
		PredictiveErrors: found["predictiveErrors"].i,
	}, nil
}
