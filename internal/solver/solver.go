// Package solver drives the external hydraulic solver and flood-spreading
// executables. Both read the same control file and both are noisy on stdout,
// so success is judged from the output text as well as the exit code.
package solver

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/tilepipe/internal/config"
	"git.home.luguber.info/inful/tilepipe/internal/controlfile"
	pipeerrors "git.home.luguber.info/inful/tilepipe/internal/errors"
	"git.home.luguber.info/inful/tilepipe/internal/fingerprint"
	"git.home.luguber.info/inful/tilepipe/internal/metrics"
)

// mapCards are the output-raster cards a flood-spreading run can produce.
var mapCards = []string{"OutDEP", "OutFLD", "OutVEL", "OutWSE", "FSOutBATHY"}

// Runner invokes the configured executables for one control file at a time.
type Runner struct {
	Settings *config.Settings
	Ledger   *fingerprint.Ledger

	logger   *slog.Logger
	recorder metrics.Recorder
}

// NewRunner creates a process runner.
func NewRunner(settings *config.Settings, ledger *fingerprint.Ledger) *Runner {
	return &Runner{Settings: settings, Ledger: ledger, logger: slog.Default(), recorder: metrics.NoopRecorder{}}
}

// WithLogger sets a custom logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// WithRecorder sets a metrics recorder.
func (r *Runner) WithRecorder(rec metrics.Recorder) *Runner {
	r.recorder = rec
	return r
}

// RunSolver runs the hydraulic solver for a control file. The run is skipped
// when the velocity-depth table it would produce is already current.
func (r *Runner) RunSolver(ctx context.Context, controlFile string) error {
	vdt, found, err := controlfile.ReadCard(controlFile, "Print_VDT_Database")
	if err != nil {
		return fmt.Errorf("inspect %s: %w", controlFile, err)
	}
	if !found {
		return pipeerrors.ConfigurationError("control file lists no velocity-depth table").
			WithContext("path", controlFile)
	}
	if r.upToDate(controlFile, vdt) {
		r.logger.Debug("Velocity-depth table up to date", "vdt", vdt)
		return nil
	}

	if err := r.invoke(ctx, r.Settings.SolverPath, controlFile); err != nil {
		return err
	}
	r.Ledger.Record(vdt, controlFile)
	return nil
}

// RunFloodSpreader runs the flood-spreading pass for a control file. With no
// output maps requested there is nothing to produce and the run is skipped;
// with every requested map current it is skipped as well. Otherwise any maps
// left from a previous run are removed first, so a crash mid-run never leaves
// a stale raster posing as a fresh one.
func (r *Runner) RunFloodSpreader(ctx context.Context, controlFile string) error {
	var maps []string
	for _, card := range mapCards {
		path, found, err := controlfile.ReadCard(controlFile, card)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", controlFile, err)
		}
		if found {
			maps = append(maps, path)
		}
	}
	if len(maps) == 0 {
		r.logger.Debug("No output maps requested", "control_file", controlFile)
		return nil
	}

	current := 0
	for _, m := range maps {
		if r.upToDate(controlFile, m) {
			current++
		}
	}
	if current == len(maps) {
		r.logger.Debug("Output maps up to date", "control_file", controlFile)
		return nil
	}

	for _, m := range maps {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("Could not remove stale output map", "path", m, "error", err)
		}
	}

	if err := r.invoke(ctx, r.Settings.FloodSpreaderPath, controlFile); err != nil {
		return err
	}
	for _, m := range maps {
		if _, err := os.Stat(m); err == nil {
			r.Ledger.Record(m, controlFile)
		}
	}
	return nil
}

func (r *Runner) upToDate(controlFile, output string) bool {
	if r.Settings.Overwrite {
		return false
	}
	if _, err := os.Stat(output); err != nil {
		return false
	}
	return r.Ledger.IsUpToDate(output, controlFile)
}

// invoke runs an executable with the control file as its argument. A single
// keystroke is fed on stdin since the tools pause for one on some builds.
func (r *Runner) invoke(ctx context.Context, exe, controlFile string) error {
	r.logger.Info("Running external executable", "exe", exe, "control_file", controlFile)
	started := time.Now()
	cmd := exec.CommandContext(ctx, exe, controlFile)
	cmd.Stdin = strings.NewReader("a\n")
	out, err := cmd.CombinedOutput()
	r.recorder.ObserveProcessDuration(filepath.Base(exe), time.Since(started), err == nil)
	if err != nil {
		return pipeerrors.ExternalProcessError(err, "executable failed").
			WithContext("exe", exe).
			WithContext("control_file", controlFile).
			WithContext("output", tail(string(out), 20))
	}
	if line, failed := classify(string(out)); failed {
		return pipeerrors.ExternalProcessError(nil, "executable reported a failure").
			WithContext("exe", exe).
			WithContext("control_file", controlFile).
			WithContext("line", line)
	}
	return nil
}

// classify scans process output for failure markers. The tools exit zero even
// when they fail, so "error" lines and "PROBLEMS" banners are authoritative.
// Progress lines about the perimeter, area, and low-spot finder routinely
// contain the word error and are not failures.
func classify(output string) (string, bool) {
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, "PROBLEMS") {
			return line, true
		}
		if !strings.Contains(strings.ToLower(line), "error") {
			continue
		}
		if strings.Contains(line, "Perimeter") ||
			strings.Contains(line, "Area") ||
			strings.Contains(line, "Finder") {
			continue
		}
		return line, true
	}
	return "", false
}

func tail(s string, lines int) string {
	all := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(all) > lines {
		all = all[len(all)-lines:]
	}
	return strings.Join(all, "\n")
}
