package megaraid

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultStorCLI - where vendor packages install the storcli binary.
const DefaultStorCLI = "/opt/MegaRAID/storcli/storcli64"

const (
	// slotRangeMax - highest slot number considered when looking for
	// missing drives.
	slotRangeMax = 2048

	defaultErrWarn = 1
	defaultErrCrit = 11

	defaultTempWarnC = 60
	defaultTempCritC = 80
)

func toFahrenheit(c int) int {
	return c*9/5 + 32
}

// ErrControllerMismatch - the enumerated controller list does not match
// the count the controller firmware reports. Nothing derived from the
// list can be trusted, so the whole probe aborts on this.
var ErrControllerMismatch = errors.New(
	"detected controller count does not correspond with the reported count")

// SlotRef names one physical drive slot as controller:enclosure:slot.
type SlotRef struct {
	Ctrl, Enc, Slot int
}

// Options control what the probe tolerates and where thresholds sit.
type Options struct {
	// StorCLI is the path of the storcli binary.
	StorCLI string

	// ExpectBattery - an absent BBU/cachevault is Critical when true.
	ExpectBattery bool

	// ExpectHotSpare - a controller without any hot-spare drive is a
	// Warning when true.
	ExpectHotSpare bool

	// IgnoreUGood - do not warn about Unconfigured Good drives.
	IgnoreUGood bool

	// MissingOK - report all missing drives (empty slots) as OK.
	MissingOK bool

	// MissingOKList - specific slots allowed to be empty.
	MissingOKList map[SlotRef]bool

	// IgnoreOtherErrors - skip thresholds on the "Other Error Count"
	// counter.
	IgnoreOtherErrors bool

	// Fahrenheit selects Fahrenheit temperature readings and limits.
	Fahrenheit bool

	// SlotStart is the first slot number populated in enclosures.
	SlotStart int

	// TempWarn and TempCrit are the temperature limits in the
	// configured unit. Both zero means defaults (60:80 C, 140:176 F).
	TempWarn, TempCrit int

	// ErrWarn and ErrCrit are the drive error-counter limits. Both
	// zero means defaults (1:11).
	ErrWarn, ErrCrit int
}

// DefaultOptions returns the options the plugin ships with: battery and
// hot-spare expected, unconfigured-good drives warned about, other
// errors ignored, Celsius.
func DefaultOptions() Options {
	return Options{
		StorCLI:           DefaultStorCLI,
		ExpectBattery:     true,
		ExpectHotSpare:    true,
		IgnoreOtherErrors: true,
	}
}

//nolint:gochecknoglobals
var (
	missingListRE = regexp.MustCompile(`^\d+:\d+:\d+(,\d+:\d+:\d+)*$`)
	tempLimitsRE  = regexp.MustCompile(`^\d+:\d+$`)
)

// ParseMissingOKList parses a comma separated list of
// controller:enclosure:slot triples.
func ParseMissingOKList(list string) (map[SlotRef]bool, error) {
	if !missingListRE.MatchString(list) {
		return nil, errors.Errorf(
			`missingoklist argument accepts only this format "\d+:\d+:\d+[,\d+:\d+:\d+]"`)
	}

	refs := map[SlotRef]bool{}

	for _, triple := range strings.Split(list, ",") {
		toks := strings.Split(triple, ":")
		ctrl, _ := strconv.Atoi(toks[0])
		enc, _ := strconv.Atoi(toks[1])
		slot, _ := strconv.Atoi(toks[2])
		refs[SlotRef{Ctrl: ctrl, Enc: enc, Slot: slot}] = true
	}

	return refs, nil
}

// ParseTempLimits parses a "warning:critical" temperature limit pair.
func ParseTempLimits(limits string) (warn int, crit int, err error) {
	if !tempLimitsRE.MatchString(limits) {
		return 0, 0, errors.Errorf(
			`limits argument accepts only this format "\d+:\d+"`)
	}

	toks := strings.Split(limits, ":")
	warn, _ = strconv.Atoi(toks[0])
	crit, _ = strconv.Atoi(toks[1])

	return warn, crit, nil
}

// DriveRole - the role/state tag storcli reports for a physical drive
// in the State column of a drive listing.
type DriveRole int

const (
	// RoleUnknown - a state string this package does not recognize.
	// Judged Critical so new vendor states never pass silently.
	RoleUnknown DriveRole = iota

	// RoleOnline - member of a drive group, operating normally.
	RoleOnline

	// RoleGlobalHotSpare - spare available to any drive group.
	RoleGlobalHotSpare

	// RoleDedicatedHotSpare - spare bound to one drive group.
	RoleDedicatedHotSpare

	// RoleJBOD - exposed directly, not part of any RAID group.
	RoleJBOD

	// RoleUnconfiguredGood - healthy but not configured into a group.
	RoleUnconfiguredGood

	// RoleUnconfiguredShielded - unconfigured, under diagnosis.
	RoleUnconfiguredShielded

	// RoleCopyback - data is being copied back to a replaced drive.
	RoleCopyback

	// RoleRebuild - drive is being rebuilt from redundancy data.
	RoleRebuild
)

// ParseDriveRole maps a storcli drive state string to a DriveRole.
// Unrecognized strings map to RoleUnknown.
func ParseDriveRole(state string) DriveRole {
	known := []struct {
		tag  string
		role DriveRole
	}{
		{"Onln", RoleOnline},
		{"GHS", RoleGlobalHotSpare},
		{"DHS", RoleDedicatedHotSpare},
		{"JBOD", RoleJBOD},
		{"UGood", RoleUnconfiguredGood},
		{"UGShld", RoleUnconfiguredShielded},
		{"Cpybck", RoleCopyback},
		{"Rbld", RoleRebuild},
	}

	for _, k := range known {
		if strings.EqualFold(state, k.tag) {
			return k.role
		}
	}

	return RoleUnknown
}

// IsHotSpare - is this drive reserved as a global or dedicated spare.
func (r DriveRole) IsHotSpare() bool {
	return r == RoleGlobalHotSpare || r == RoleDedicatedHotSpare
}

// Enclosure - one drive bay unit on a controller, as listed by
// 'storcli /cN/eall show'.
type Enclosure struct {
	// Ctrl is the owning controller number.
	Ctrl int

	// ID is the enclosure number (the EID column).
	ID int

	// State is the health string the enclosure reports.
	State string

	// Slots is the declared slot count.
	Slots int

	// PDCount is the declared number of physical drives.
	PDCount int
}

// DriveVitals - the per-drive attributes extracted from
// 'storcli /cC/eE/sS show all'. Attributes the report omits keep their
// zero values; counters reported "N/A" hold -99.
type DriveVitals struct {
	Manufacturer     string
	Model            string
	Serial           string
	Temperature      float64
	SmartAlert       bool
	MediaErrors      int
	OtherErrors      int
	PredictiveErrors int
}
