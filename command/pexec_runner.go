package command

import (
	"context"
	"strings"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	"go.viam.com/utils/pexec"

	"github.com/136709865/maplab/errs"
)

// PexecRunner shells out to an external map-processing binary for every
// command, mirroring the teacher's use of pexec.ProcessManager to own and
// supervise SLAM subprocesses (services/slam). Each Run call gets its own
// one-shot ProcessManager so commands against different map keys never share
// process lifetimes.
type PexecRunner struct {
	binary string // path to the external map-processing executable.
	logger golog.Logger
}

// NewPexecRunner returns a Runner that invokes binary once per command, with
// the command text split into arguments shell-style and mapKey passed as the
// leading positional argument.
func NewPexecRunner(binary string, logger golog.Logger) *PexecRunner {
	return &PexecRunner{binary: binary, logger: logger}
}

// Run executes one command synchronously, returning when the subprocess exits.
// Stop is always attempted once the process has been started, even if Start
// itself failed partway through, mirroring the teacher's
// rexec.processManager.Stop pattern of combining independent failures with
// multierr rather than masking the first one.
func (r *PexecRunner) Run(ctx context.Context, mapKey, commandText string) (err error) {
	args := append([]string{mapKey}, splitCommand(commandText)...)

	pm := pexec.NewProcessManager(r.logger.Named("submap_command"))
	if _, addErr := pm.AddProcessFromConfig(ctx, pexec.ProcessConfig{
		ID:      mapKey + ":" + commandText,
		Name:    r.binary,
		Args:    args,
		OneShot: true,
		Log:     true,
	}); addErr != nil {
		return errs.Wrap(addErr, errs.CommandFailed, "configure command %q for map %q", commandText, mapKey)
	}

	startErr := pm.Start(ctx)
	stopErr := pm.Stop()
	if combined := multierr.Combine(startErr, stopErr); combined != nil {
		return errs.Wrap(combined, errs.CommandFailed, "run command %q for map %q", commandText, mapKey)
	}
	return nil
}

func splitCommand(commandText string) []string {
	fields := strings.Fields(commandText)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
