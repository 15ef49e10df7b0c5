package hal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/topology"
	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// DefaultEctoolPath is where ChromeOS installs the EC utility.
const DefaultEctoolPath = "/usr/local/bin/ectool"

// ectoolInterCommandDelay is the minimum spacing between consecutive
// ectool invocations; the EC rejects commands arriving faster.
const ectoolInterCommandDelay = 10 * time.Millisecond

// EctoolDriver drives the keyboard backlight by shelling out to the
// ectool utility ("rgbkbd <led> <rgb> [<rgb> ...]" per zone segment,
// "rgbkbd clear <rgb>" as the full-board fast path).
type EctoolDriver struct {
	path    string
	topo    *topology.Topology
	timeout time.Duration
	logger  types.Logger

	// runCmd is swappable for tests.
	runCmd func(ctx context.Context, args ...string) error

	lastCmd time.Time
}

// EctoolOption configures an EctoolDriver.
type EctoolOption func(*EctoolDriver)

// WithEctoolPath overrides the ectool executable path.
func WithEctoolPath(path string) EctoolOption {
	return func(d *EctoolDriver) { d.path = path }
}

// WithEctoolTimeout overrides the per-command timeout (default 2s).
func WithEctoolTimeout(timeout time.Duration) EctoolOption {
	return func(d *EctoolDriver) { d.timeout = timeout }
}

// WithEctoolLogger sets the driver logger.
func WithEctoolLogger(logger types.Logger) EctoolOption {
	return func(d *EctoolDriver) { d.logger = logger }
}

// NewEctoolDriver creates a driver bound to the given topology, which
// supplies the zone → LED index mapping.
func NewEctoolDriver(topo *topology.Topology, opts ...EctoolOption) *EctoolDriver {
	d := &EctoolDriver{
		path:    DefaultEctoolPath,
		topo:    topo,
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.runCmd == nil {
		d.runCmd = d.execCmd
	}

	return d
}

// Probe reports whether ectool is present and the rgbkbd subcommand
// responds. It also switches any firmware demo pattern off so
// software frames are visible.
func (d *EctoolDriver) Probe(ctx context.Context) bool {
	if _, err := os.Stat(d.path); err != nil {
		return false
	}
	if err := d.run(ctx, "version"); err != nil {
		return false
	}
	// Firmware demo patterns override host writes.
	_ = d.run(ctx, "rgbkbd", "demo", "0")

	return d.run(ctx, "rgbkbd", "clear", "0") == nil
}

// Apply writes one zone's color: a single rgbkbd command carrying the
// packed color once per member LED, starting at the zone's first LED.
func (d *EctoolDriver) Apply(ctx context.Context, zoneID string, color types.Color) error {
	leds, ok := d.topo.Resolve(zoneID)
	if !ok {
		return types.NewHalError(types.HalPermanent, "apply", fmt.Errorf("unknown zone %q", zoneID))
	}

	packed := strconv.FormatUint(uint64(color.Packed()), 10)
	args := make([]string, 0, 2+len(leds))
	args = append(args, "rgbkbd", strconv.Itoa(int(leds[0])))
	for range leds {
		args = append(args, packed)
	}

	if err := d.run(ctx, args...); err != nil {
		return classifyExecErr("apply", err)
	}

	return nil
}

// Flush is a no-op: rgbkbd commands take effect immediately.
func (d *EctoolDriver) Flush(_ context.Context) error {
	return nil
}

// SetBrightness sets the global keyboard backlight level, 0-100.
func (d *EctoolDriver) SetBrightness(ctx context.Context, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if err := d.run(ctx, "pwmsetkblight", strconv.Itoa(percent)); err != nil {
		return classifyExecErr("brightness", err)
	}

	return nil
}

// MaxLED returns the highest LED index the rgbkbd command set can
// address for the bound topology.
func (d *EctoolDriver) MaxLED() types.LedIndex {
	return d.topo.MaxLED()
}

// Close stops firmware effects and clears the board.
func (d *EctoolDriver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	_ = d.run(ctx, "rgbkbd", "demo", "0")
	if err := d.run(ctx, "rgbkbd", "clear", "0"); err != nil {
		return classifyExecErr("close", err)
	}

	return nil
}

// run invokes ectool, enforcing the EC's minimum inter-command
// spacing.
func (d *EctoolDriver) run(ctx context.Context, args ...string) error {
	if wait := ectoolInterCommandDelay - time.Since(d.lastCmd); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.lastCmd = time.Now()

	if d.logger != nil {
		d.logger.Debug("ectool", "args", args)
	}

	return d.runCmd(ctx, args...)
}

func (d *EctoolDriver) execCmd(ctx context.Context, args ...string) error {
	cmdCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, d.path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ectool %v: %w (output: %s)", args, err, out)
	}

	return nil
}

// classifyExecErr maps process execution failures onto the HAL error
// taxonomy: a missing or unrunnable executable is permanent, anything
// else (busy EC, timeout, nonzero exit) is transient.
func classifyExecErr(op string, err error) error {
	var halErr *types.HalError
	if errors.As(err, &halErr) {
		return err
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return types.NewHalError(types.HalPermanent, op, err)
	}

	return types.NewHalError(types.HalTransient, op, err)
}
