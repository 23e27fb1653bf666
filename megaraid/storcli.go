package megaraid

import (
	"bytes"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Runner executes storcli with the given arguments and returns its
// stdout and stderr. A nonzero exit status is not an error; callers
// judge health from the text itself.
type Runner interface {
	Run(args ...string) (stdout string, stderr string)
}

const noStorCliRC = 127

type execRunner struct {
	storcli string
}

// NewExecRunner returns a Runner invoking the storcli binary at the
// given path.
func NewExecRunner(storcli string) Runner {
	return &execRunner{storcli: storcli}
}

func (er *execRunner) Run(args ...string) (string, string) {
	stdout, stderr, rc := runCommandWithOutputErrorRc(
		append([]string{er.storcli}, args...)...)

	logrus.WithFields(logrus.Fields{
		"storcli": er.storcli,
		"args":    strings.Join(args, " "),
		"rc":      rc,
	}).Debug("storcli invoked")

	return string(stdout), string(stderr)
}

func runCommandWithOutputErrorRc(args ...string) ([]byte, []byte, int) {
	cmd := exec.Command(args[0], args[1:]...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	return stdout.Bytes(), stderr.Bytes(), getCommandErrorRCDefault(err, noStorCliRC)
}

func getCommandErrorRCDefault(err error, rcError int) int {
	if err == nil {
		return 0
	}

	exitError, ok := err.(*exec.ExitError)
	if ok {
		if status, ok := exitError.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus()
		}
	}

	return rcError
}

type cachingRunner struct {
	run   Runner
	cache *cache.Cache
}

type runResult struct {
	stdout, stderr string
}

// NewCachingRunner wraps run with a short-lived cache keyed by the
// storcli arguments, so embedding callers probing repeatedly reuse the
// captured text instead of querying the controller again.
func NewCachingRunner(run Runner) Runner {
	const longTime = 5 * time.Minute

	return &cachingRunner{run: run, cache: cache.New(longTime, longTime)}
}

func (cr *cachingRunner) Run(args ...string) (string, string) {
	key := strings.Join(args, " ")

	if cached, found := cr.cache.Get(key); found {
		ret := cached.(runResult)
		return ret.stdout, ret.stderr
	}

	stdout, stderr := cr.run.Run(args...)
	cr.cache.Set(key, runResult{stdout: stdout, stderr: stderr}, cache.DefaultExpiration)

	return stdout, stderr
}

// ToolError - a storcli preflight failure. Msg is the plugin status
// line, Detail the long-output line below it.
type ToolError struct {
	Msg    string
	Detail string
}

func (te *ToolError) Error() string {
	return te.Msg
}

// CheckTool verifies the storcli binary exists, is executable, and
// answers a version query, before any controller commands run.
func CheckTool(storcli string, run Runner) error {
	if _, err := os.Stat(storcli); err != nil {
		return &ToolError{
			Msg:    "Could not find the storcli executable",
			Detail: "Expected storcli path is: " + storcli,
		}
	}

	if err := unix.Access(storcli, unix.X_OK); err != nil {
		return &ToolError{
			Msg:    "The storcli executable is not executable",
			Detail: "Detected storcli path is: " + storcli,
		}
	}

	stdout, stderr := run.Run("-v")
	if stderr != "" {
		return &ToolError{
			Msg:    "The storcli version query returned an error",
			Detail: "Detected storcli path is: " + storcli,
		}
	}

	if stdout == "" {
		return &ToolError{
			Msg:    "The storcli version query returned empty data",
			Detail: "Detected storcli path is: " + storcli,
		}
	}

	return nil
}
