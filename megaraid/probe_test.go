package megaraid

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"machinerun.io/raidhealth"
)

type fakeRunner struct {
	out   map[string]string
	errs  map[string]string
	calls []string
}

func (fr *fakeRunner) Run(args ...string) (string, string) {
	key := strings.Join(args, " ")
	fr.calls = append(fr.calls, key)

	return fr.out[key], fr.errs[key]
}

var ctrlCountOut = `CLI Version = 007.1504.0000.0000 June 22, 2020
Operating system = Linux 5.4.0-90-generic
Controller Count = 1
`

var showOut = `CLI Version = 007.1504.0000.0000 June 22, 2020
Operating system = Linux 5.4.0-90-generic
Status Code = 0
Status = Success
Description = None

Number of Controllers = 1
Host Name = storage01
Operating System  = Linux 5.4.0-90-generic

System Overview :
===============

-----------------------------------------------------------------------------
Ctl Model                 Ports PDs DGs DNOpt VDs VNOpt BBU sPR DS  EHS ASOs Hlth
-----------------------------------------------------------------------------
  0 AVAGO MegaRAID 9361-8i    8   3   1     0   1     0 Opt On  1&2 Y      4 Opt
-----------------------------------------------------------------------------
`

var eallOut = `Controller = 0
Status = Success
Description = None

Properties :
==========

--------------------------------------------------------------------------
EID State Slots PD PS Fans TSs Alms SIM Port# ProdID  VendorSpecific
--------------------------------------------------------------------------
 32 OK        3  3  0    0   0    0   1 -     SGPIO
--------------------------------------------------------------------------
`

var vallOut = `Controller = 0
Status = Success
Description = None

Virtual Drives :
==============

---------------------------------------------------------------
DG/VD TYPE  State Access Consist Cache Cac sCC     Size Name
---------------------------------------------------------------
0/0   RAID1 Optl  RW     Yes     RWBD  -   ON  446.625 GB system
---------------------------------------------------------------
`

var sallOut = `Controller = 0
Status = Success
Description = None

Drive Information :
=================

-----------------------------------------------------------------------------
EID:Slt DID State DG       Size Intf Med SED PI SeSz Model            Sp Type
-----------------------------------------------------------------------------
32:0      8 Onln   0 446.625 GB SATA SSD N   N  512B MZ7KM480HMHQ0D3 U  -
32:1      9 Onln   0 446.625 GB SATA SSD N   N  512B MZ7KM480HMHQ0D3 U  -
32:2     10 GHS    - 446.625 GB SATA SSD N   N  512B MZ7KM480HMHQ0D3 U  -
-----------------------------------------------------------------------------
`

var bbuOptimalOut = `Controller = 0
Status = Success
Description = None

BBU_Info :
========

----------------------------------------------
Model  State   RetentionTime Temp Mode MfgDate
----------------------------------------------
CVPM02 Optimal 0 hour(s)     29C  -    2016/05/28
----------------------------------------------
`

var foreignNoneOut = `Controller = 0
Status = Success
Description = Couldn't find any foreign Configuration
`

func healthyFixture() *fakeRunner {
	return &fakeRunner{out: map[string]string{
		"show ctrlcount":      ctrlCountOut,
		"show":                showOut,
		"/c0/bbu show":        bbuOptimalOut,
		"/c0/vall show":       vallOut,
		"/c0/eall show":       eallOut,
		"/c0/e32/sall show":   sallOut,
		"/c0/e32/s0 show all": healthyDriveDetail,
		"/c0/e32/s1 show all": healthyDriveDetail,
		"/c0/e32/s2 show all": healthyDriveDetail,
		"/c0/fall show":       foreignNoneOut,
	}}
}

func TestControllers(t *testing.T) {
	p := New(healthyFixture(), DefaultOptions())

	ctrls, err := p.controllers()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	assert.Equal(t, []int{0}, ctrls)
}

func TestControllersMismatch(t *testing.T) {
	run := healthyFixture()
	run.out["show ctrlcount"] = strings.Replace(
		ctrlCountOut, "Controller Count = 1", "Controller Count = 2", 1)
	p := New(run, DefaultOptions())

	_, err := p.controllers()
	assert.ErrorIs(t, err, ErrControllerMismatch)
}

func TestProbeRunHealthy(t *testing.T) {
	assert := assert.New(t)

	report, err := New(healthyFixture(), DefaultOptions()).Run()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	assert.Equal(raidhealth.OK, report.Severity)
	assert.Equal("PDs: OK; HS: OK; VDs: OK; Enc: OK; Batt: OK;", report.Summary)

	wantDetail := []string{
		"OK: PD /c0/e32/s0 SAMSUNG MZ7KM480HMHQ0D3; SN: S2HSNX0H800001; " +
			"Temperature:  27.00˚C; Errors: SMART: OK, Media: 0, Other: 0, Predictive: 0",
		"OK: PD /c0/e32/s1 SAMSUNG MZ7KM480HMHQ0D3; SN: S2HSNX0H800001; " +
			"Temperature:  27.00˚C; Errors: SMART: OK, Media: 0, Other: 0, Predictive: 0",
		"OK: PD (GHS) /c0/e32/s2 SAMSUNG MZ7KM480HMHQ0D3; SN: S2HSNX0H800001; " +
			"Temperature:  27.00˚C; Errors: SMART: OK, Media: 0, Other: 0, Predictive: 0",
		"OK: VD /c0/v0",
		"OK: Enclosure /c0/e32",
		"OK: Battery on /c0.",
	}
	wantPerf := "|" +
		" /c0/e32/s0_temperature=27;60;80 /c0/e32/s0_errors_other=0" +
		" /c0/e32/s0_errors_media=0;1;11 /c0/e32/s0_errors_predictive=0;1;11" +
		" /c0/e32/s0_smart_ok=0;1" +
		" /c0/e32/s1_temperature=27;60;80 /c0/e32/s1_errors_other=0" +
		" /c0/e32/s1_errors_media=0;1;11 /c0/e32/s1_errors_predictive=0;1;11" +
		" /c0/e32/s1_smart_ok=0;1" +
		" /c0/e32/s2_temperature=27;60;80 /c0/e32/s2_errors_other=0" +
		" /c0/e32/s2_errors_media=0;1;11 /c0/e32/s2_errors_predictive=0;1;11" +
		" /c0/e32/s2_smart_ok=0;1"

	want := strings.Join(wantDetail, "\n") + "\n" + wantPerf
	if diff := cmp.Diff(want, report.Detail); diff != "" {
		t.Errorf("detail mismatch (-want +got):\n%s", diff)
	}
}

func TestProbeRunDegradedVD(t *testing.T) {
	assert := assert.New(t)

	run := healthyFixture()
	run.out["/c0/vall show"] = strings.Replace(vallOut,
		"0/0   RAID1 Optl  RW     Yes     RWBD  -   ON  446.625 GB system",
		"0/0   RAID1 Dgrd  RW     Yes     RWBD  -   OFF 446.625 GB system", 1)

	report, err := New(run, DefaultOptions()).Run()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	assert.Equal(raidhealth.Critical, report.Severity)
	assert.Contains(report.Summary, "VDs: CR-/c0/v0; WA-/c0/v0;")
	assert.Contains(report.Detail, "WA: VD /c0/v0 does not have scheduled CC")
	assert.Contains(report.Detail, "CR: VD /c0/v0 is DEGRADED")
}

func TestProbeRunPartiallyDegradedVD(t *testing.T) {
	run := healthyFixture()
	run.out["/c0/vall show"] = strings.Replace(vallOut,
		"0/0   RAID1 Optl ",
		"0/0   RAID1 Pdgd ", 1)

	report, err := New(run, DefaultOptions()).Run()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	assert.Equal(t, raidhealth.Warning, report.Severity)
	assert.Contains(t, report.Detail, "WA: VD /c0/v0 is partially degraded")
}

func TestProbeRunForeignConfig(t *testing.T) {
	assert := assert.New(t)

	run := healthyFixture()
	run.out["/c0/fall show"] = `Controller = 0
Status = Success
Description = Operation on foreign configuration Succeeded

FOREIGN CONFIGURATION :
=====================

--------------------------------------
DG EID:Slot Type  State      Size NoVDs
--------------------------------------
 0 -        RAID1 Frgn 446.625 GB    1
--------------------------------------
`

	report, err := New(run, DefaultOptions()).Run()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	assert.Equal(raidhealth.Warning, report.Severity)
	assert.True(strings.HasPrefix(report.Summary, "FC: WA-/c0; "),
		"summary %q should start with the foreign facet", report.Summary)
	assert.Contains(report.Detail, "WA: Foreign configuration detected on /c0")
}

func TestProbeRunMissingBattery(t *testing.T) {
	assert := assert.New(t)

	absent := `Controller = 0
Status = Failure
Description = None

Detailed Status :
===============

------------------------------------------
Ctrl Status Property ErrMsg             ErrCd
------------------------------------------
   0 Failed -        Battery is absent!    34
------------------------------------------
`
	run := healthyFixture()
	run.out["/c0/bbu show"] = absent

	report, err := New(run, DefaultOptions()).Run()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	assert.Equal(raidhealth.Critical, report.Severity)
	assert.Contains(report.Summary, "Batt: CR-/c0;")
	assert.Contains(report.Detail, "CR: Battery on controller /c0 is missing.")

	// same report with the battery declared not expected
	opts := DefaultOptions()
	opts.ExpectBattery = false

	report, err = New(run, opts).Run()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	assert.Equal(raidhealth.OK, report.Severity)
	assert.Contains(report.Detail,
		"OK: Battery on controller /c0 is missing, but this is expected.")
}

func TestProbeRunCacheVaultReroute(t *testing.T) {
	assert := assert.New(t)

	run := healthyFixture()
	run.out["/c0/bbu show"] = `Controller = 0
Status = Failure
Description = None

Detailed Status :
===============

--------------------------------------------------
Ctrl Status Property ErrMsg                  ErrCd
--------------------------------------------------
   0 Failed -        use /cx/cv 255              0
--------------------------------------------------
`
	// the reroute phrase appears in the detail column
	run.out["/c0/bbu show"] = strings.Replace(run.out["/c0/bbu show"],
		"Failed -        use /cx/cv 255", "Failed - use /cx/cv 255", 1)
	run.out["/c0/cv show"] = `Controller = 0
Status = Success
Description = None

Cachevault_Info :
===============

--------------------------------------
Model  State   Temp Mode MfgDate
--------------------------------------
CVPM02 Optimal 29C  -    2016/05/28
--------------------------------------
`

	report, err := New(run, DefaultOptions()).Run()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	assert.Equal(raidhealth.OK, report.Severity)
	assert.Contains(report.Detail, "OK: Battery on /c0")
	assert.Contains(run.calls, "/c0/cv show")
}

func TestProbeRunCacheVaultAbsent(t *testing.T) {
	run := healthyFixture()
	run.out["/c0/bbu show"] = "   0 Failed - use /cx/cv 255\n"
	run.out["/c0/cv show"] = "Cachevault is absent!\n"

	report, err := New(run, DefaultOptions()).Run()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	assert.Equal(t, raidhealth.Critical, report.Severity)
	assert.Contains(t, report.Summary, "Batt: CR-/c0;")
}

func TestProbeRunBadEnclosure(t *testing.T) {
	assert := assert.New(t)

	run := healthyFixture()
	run.out["/c0/eall show"] = strings.Replace(eallOut,
		" 32 OK  ", " 32 Dgd ", 1)

	report, err := New(run, DefaultOptions()).Run()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	assert.Equal(raidhealth.Critical, report.Severity)
	assert.Contains(report.Summary, "Enc: CR-/c0/e32;")
	assert.Contains(report.Detail, "CR: Enclosure /c0/e32")
}

func TestProbeRunDriveCountMismatch(t *testing.T) {
	assert := assert.New(t)

	run := healthyFixture()
	// enclosure claims four drives, listing shows three
	run.out["/c0/eall show"] = strings.Replace(eallOut,
		" 32 OK        3  3 ", " 32 OK        4  4 ", 1)

	report, err := New(run, DefaultOptions()).Run()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	assert.Equal(raidhealth.Warning, report.Severity)
	assert.Contains(report.Summary, "WA-/c0/e32;")
	assert.Contains(report.Detail,
		"WA: Enclosure /c0/e32 The disk count found does not correspond "+
			"with the disk count reported")
}

func TestProbeRunNoHotSpare(t *testing.T) {
	assert := assert.New(t)

	run := healthyFixture()
	run.out["/c0/e32/sall show"] = strings.Replace(sallOut, "GHS ", "Onln", 1)

	report, err := New(run, DefaultOptions()).Run()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	assert.Equal(raidhealth.Warning, report.Severity)
	assert.Contains(report.Summary, "HS: WA-/c0;")
	assert.Contains(report.Detail, "WA: HS on /c0 is missing")

	opts := DefaultOptions()
	opts.ExpectHotSpare = false

	report, err = New(run, opts).Run()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	assert.Equal(raidhealth.OK, report.Severity)
	assert.Contains(report.Detail, "OK: HS on /c0 is missing, but this is expected")
}

func TestProbeRunBadDriveAttribute(t *testing.T) {
	run := healthyFixture()
	run.out["/c0/e32/s1 show all"] = "Media Error Count = garbage\n"

	_, err := New(run, DefaultOptions()).Run()
	if err == nil {
		t.Fatal("expected a fatal error for a malformed attribute value")
	}

	assert.Contains(t, err.Error(), "/c0/e32/s1")
}
