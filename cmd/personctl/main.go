// Command personctl reads, sets and watches attributes of a person record
// shared between processes through a memory-mapped file.
//
//	personctl [-f file] [-s value] attr_name   print (and optionally set) an attribute
//	personctl [-f file] -w                     report every change until interrupted
//	personctl [-f file] debug                  dump attributes and watcher slots
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/srediag/attrshm/internal/config"
	"github.com/srediag/attrshm/internal/logging"
	"github.com/srediag/attrshm/pkg/notify"
	"github.com/srediag/attrshm/pkg/setter"
	"github.com/srediag/attrshm/pkg/store"
	"github.com/srediag/attrshm/pkg/watcher"
)

var errMissingAttr = errors.New("attr_name is required unless -w is given")

type app struct {
	cfg config.Config
	log *zap.Logger

	file        string
	logLevel    string
	metricsAddr string
	watch       bool
	value       string
}

func newRootCmd() *cobra.Command {
	a := &app{log: zap.NewNop()}
	cmd := &cobra.Command{
		Use:   "personctl [-f file] [-w] [-s value] attr_name",
		Short: "Read, set or watch attributes of a shared person record",
		Long: `personctl maps a person record stored in a file and shared by every
process that maps the same file.

Without -s it prints the attribute's value. With -s it writes the value
first and then notifies every registered watcher of the change. With -w it
registers as a watcher and prints "name: 'value' from 'pid'" for each change
until interrupted.`,
		Args:              cobra.MaximumNArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { _ = a.log.Sync() },
		RunE:              a.run,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.file, "file", "f", "", "backing file of the record (default $PERSONCTL_FILE or ./person.dat)")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn, error or none (default $PERSONCTL_LOG_LEVEL or warn)")

	f := cmd.Flags()
	f.BoolVarP(&a.watch, "watch", "w", false, "watch the record and report changes")
	f.StringVarP(&a.value, "set", "s", "", "value to write before printing")
	f.StringVar(&a.metricsAddr, "metrics-addr", "", "serve /metrics, /live and /ready on this address while watching")
	cmd.MarkFlagsMutuallyExclusive("watch", "set")

	cmd.AddCommand(newDebugCmd(a))
	return cmd
}

// setup merges environment and flags and builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("file") {
		cfg.File = a.file
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

func (a *app) open(cmd *cobra.Command) (*store.Store, error) {
	return store.Open(cmd.Context(), a.cfg.File,
		store.WithLogger(a.log),
		store.WithOpenRetry(a.cfg.OpenRetry))
}

func (a *app) notifyOptions() []notify.Option {
	return []notify.Option{
		notify.WithLogger(a.log),
		notify.WithTimeout(a.cfg.NotifyTimeout),
		notify.WithWorkers(a.cfg.NotifyWorkers),
	}
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	if a.watch {
		return a.runWatch(cmd)
	}
	if len(args) != 1 {
		_ = cmd.Usage()
		return errMissingAttr
	}

	s, err := a.open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	set, err := setter.New(s,
		setter.WithOutput(cmd.OutOrStdout()),
		setter.WithLogger(a.log),
		setter.WithNotifyOptions(a.notifyOptions()...))
	if err != nil {
		return err
	}
	defer set.Close()

	var value *string
	if cmd.Flags().Changed("set") {
		value = &a.value
	}
	_, err = set.Run(cmd.Context(), args[0], value)
	return err
}

// stopSignals end a watch through the normal cleanup path, including a hangup
// from a closed terminal.
var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

func (a *app) runWatch(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), stopSignals...)
	defer stop()

	s, err := a.open(cmd)
	if err != nil {
		return err
	}
	w := watcher.New(s,
		watcher.WithOutput(cmd.OutOrStdout()),
		watcher.WithLogger(a.log),
		watcher.WithMetricsAddr(a.cfg.MetricsAddr),
		watcher.WithNotifyOptions(a.notifyOptions()...))
	return w.Run(ctx)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "personctl:", err)
		os.Exit(1)
	}
}
