package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/rbridge/atexit"
	"github.com/wippyai/rbridge/callable"
	"github.com/wippyai/rbridge/console"
	"github.com/wippyai/rbridge/internal/config"
	"github.com/wippyai/rbridge/libr"
	"github.com/wippyai/rbridge/loader"
	"github.com/wippyai/rbridge/locate"
	"github.com/wippyai/rbridge/runtime"
	"github.com/wippyai/rbridge/session"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	env    session.Env
	stdin  io.Reader

	cfgFile string
}

func newApp() *app {
	return &app{
		env:    session.OSEnv{},
		stdin:  os.Stdin,
		logger: zap.NewNop(),
	}
}

func newRootCmd(a *app) *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:   "rbridge",
		Short: "Embed and drive the R runtime from Go",
		Long: titleStyle.Render("rbridge") + ` embeds R in a Go process.

It locates the R installation, loads libR, starts R once per process and
routes R's console through Go.

` + subtitleStyle.Render("Examples:") + `
  rbridge home                 Show the R installation in use
  rbridge session              Show the session channel
  rbridge eval "sum(1:10)"     Evaluate expressions
  rbridge repl                 Start an interactive console`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.Options{
				File:  a.cfgFile,
				Dirs:  configDirs(),
				Viper: v,
			})
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.setLogger(logger)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./rbridge.yaml or $HOME/.config/rbridge/rbridge.yaml)")
	flags.String("r-home", "", "R home directory, skipping discovery")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: console or json")
	_ = v.BindPFlag("r_home", flags.Lookup("r-home"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(
		newHomeCmd(a),
		newSessionCmd(a),
		newEvalCmd(a),
		newReplCmd(a),
	)
	return root
}

func configDirs() []string {
	dirs := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, dir+string(os.PathSeparator)+config.AppName)
	}
	return dirs
}

// setLogger routes every package's logger to l.
func (a *app) setLogger(l *zap.Logger) {
	a.logger = l
	atexit.SetLogger(l.Named("atexit"))
	callable.SetLogger(l.Named("callable"))
	console.SetLogger(l.Named("console"))
	libr.SetLogger(l.Named("libr"))
	loader.SetLogger(l.Named("loader"))
	locate.SetLogger(l.Named("locate"))
	runtime.SetLogger(l.Named("runtime"))
	session.SetLogger(l.Named("session"))
}

func (a *app) locator() *locate.Locator {
	return locate.New(
		locate.WithHome(a.cfg.RHome),
		locate.WithLogger(a.logger.Named("locate")),
	)
}

func (a *app) session() *session.Coordinator {
	return session.New(a.env,
		session.WithKeys(a.cfg.Session.InboundKey, a.cfg.Session.OutboundKey),
		session.WithLogger(a.logger.Named("session")),
	)
}

// newRuntime builds a runtime over the real libR with cons as its console.
// The minimum R version, when configured, is checked before anything loads.
func (a *app) newRuntime(cons *console.Registry) *runtime.Runtime {
	loc := a.locator()
	home := runtime.HomeFunc(func(ctx context.Context) (string, error) {
		dir, err := loc.Home(ctx)
		if err != nil || a.cfg.MinVersion == "" {
			return dir, err
		}
		ver, err := loc.Version(ctx, dir)
		if err != nil {
			return "", err
		}
		if err := locate.CheckVersion(ver, a.cfg.MinVersion); err != nil {
			return "", err
		}
		return dir, nil
	})

	return runtime.New(libr.New(),
		runtime.WithHome(home),
		runtime.WithLoader(loader.New(a.logger.Named("loader"))),
		runtime.WithEnv(a.env),
		runtime.WithSession(a.session()),
		runtime.WithConsole(cons),
		runtime.WithArgs(a.cfg.Args...),
		runtime.WithInteractive(a.cfg.Interactive),
		runtime.WithLogger(a.logger.Named("runtime")),
	)
}
