package pool

import "context"

// LaunchSpec is everything a Launcher needs to start the child editor:
// the transport endpoint it must export as CHILD_TRANSPORT_ADDR, plus
// the pool options that bear on which binary and profile to use.
type LaunchSpec struct {
	TransportAddr        string
	Version              string
	EditorExecutablePath string
	ReuseMachineInstall  bool
	Platform             string
	CachePath            string
	Args                 []string
	Debug                bool
}

// Launcher is an external, contract-only collaborator: something that
// knows how to start and await the child editor process. The pool never
// inspects how a Launcher does this; it only calls Launch and waits on
// the returned handle's Wait.
type Launcher interface {
	// Launch starts the child editor and returns immediately; the
	// returned LaunchHandle's Wait resolves when the child exits.
	Launch(ctx context.Context, spec LaunchSpec) (LaunchHandle, error)
}

// LaunchHandle is the live handle to a launched child editor process.
type LaunchHandle interface {
	// Wait blocks until the child exits and reports its outcome.
	Wait(ctx context.Context) error
	// Kill forces the child to terminate, for use when Stop's grace
	// period elapses without a clean exit.
	Kill() error
}

// defaultDisableExtensionsArg is the safety invariant launchArgs append
// to rather than replace: a test run must never silently pick up the
// user's installed extensions.
const defaultDisableExtensionsArg = "--disable-extensions"

// buildLaunchArgs assembles the child command line: the default
// disable-extensions flag first, then the caller-supplied args appended
// verbatim.
func buildLaunchArgs(extra []string) []string {
	args := make([]string, 0, len(extra)+1)
	args = append(args, defaultDisableExtensionsArg)
	args = append(args, extra...)
	return args
}
