package raidhealth

// Severity enumerates Nagios-style plugin states. The integer value of
// each state is its process exit code.
type Severity int

const (
	// OK - the checked facet is healthy.
	OK Severity = iota

	// Warning - the checked facet needs attention but still works.
	Warning

	// Critical - the checked facet is broken or about to break.
	Critical

	// Unknown - the checker could not produce a trustworthy verdict.
	Unknown
)

// combineOrder - precedence for Combine, worst first.
//
//nolint:gochecknoglobals
var combineOrder = []Severity{Critical, Warning, Unknown, OK}

func (s Severity) String() string {
	return []string{"OK", "WA", "CR", "UK"}[s]
}

// ExitCode returns the Nagios exit code for the severity.
func (s Severity) ExitCode() int {
	return int(s)
}

// Combine returns the worse of a and b under the precedence
// Critical > Warning > Unknown > OK. OK is the identity.
func Combine(a, b Severity) Severity {
	for _, s := range combineOrder {
		if a == s || b == s {
			return s
		}
	}

	return OK
}

// Result carries one facet's verdict: its combined severity, the short
// device identifiers that went Critical or Warning (for the summary
// line), and the long per-device detail lines.
type Result struct {
	Severity Severity
	Crit     []string
	Warn     []string
	Detail   []string
}

// AddOK appends a detail line without changing severity.
func (r *Result) AddOK(line string) {
	r.Detail = append(r.Detail, line)
}

// AddWarn records id as Warning with the given detail line.
func (r *Result) AddWarn(id, line string) {
	r.Severity = Combine(r.Severity, Warning)
	r.Warn = append(r.Warn, id)
	r.Detail = append(r.Detail, line)
}

// AddCrit records id as Critical with the given detail line.
func (r *Result) AddCrit(id, line string) {
	r.Severity = Combine(r.Severity, Critical)
	r.Crit = append(r.Crit, id)
	r.Detail = append(r.Detail, line)
}

// Merge folds other into r.
func (r *Result) Merge(other Result) {
	r.Severity = Combine(r.Severity, other.Severity)
	r.Crit = append(r.Crit, other.Crit...)
	r.Warn = append(r.Warn, other.Warn...)
	r.Detail = append(r.Detail, other.Detail...)
}
