package raidhealth

import (
	"fmt"
	"strings"
)

// PerfSample is one named numeric reading for a device. Value is
// pre-rendered, optionally with ";warn;crit" thresholds appended.
type PerfSample struct {
	Name  string
	Value string
}

// PerfData collects performance samples per device identifier. Devices
// and samples render in insertion order so repeated probe runs produce
// identical output.
type PerfData struct {
	order []string
	byDev map[string][]PerfSample
}

// NewPerfData returns an empty PerfData.
func NewPerfData() *PerfData {
	return &PerfData{byDev: map[string][]PerfSample{}}
}

// Add records a sample for the device with identifier dev.
func (p *PerfData) Add(dev, name, value string) {
	if _, ok := p.byDev[dev]; !ok {
		p.order = append(p.order, dev)
	}

	p.byDev[dev] = append(p.byDev[dev], PerfSample{Name: name, Value: value})
}

// Len returns the number of devices with samples.
func (p *PerfData) Len() int {
	return len(p.order)
}

// String renders all samples as " dev_name=value" tokens, each with a
// leading space, matching the Nagios perfdata trailer format.
func (p *PerfData) String() string {
	var b strings.Builder

	for _, dev := range p.order {
		for _, s := range p.byDev[dev] {
			fmt.Fprintf(&b, " %s_%s=%s", dev, s.Name, s.Value)
		}
	}

	return b.String()
}
