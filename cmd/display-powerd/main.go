// Command display-powerd drives the panel through NORMAL, DIM, LCD-OFF and
// SLEEP, and serves the standby lease API on the system bus.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/display-powerd/internal/config"
	"github.com/sweeney/display-powerd/internal/lease"
)

const clientTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "display-powerd",
		Short:         "Display power state controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default "+config.DefaultFile+" if present)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "log format (text, json)")
	mustBind(v, config.KeyLogLevel, root.PersistentFlags().Lookup("log-level"))
	mustBind(v, config.KeyLogFormat, root.PersistentFlags().Lookup("log-format"))

	load := func() (config.Config, error) { return config.Load(v, cfgFile) }

	root.AddCommand(
		newRunCmd(v, load),
		newPrintStateCmd(),
		newStandbyCmd(),
		newOffCmd(),
		newActivityCmd(),
	)
	return root
}

func newRunCmd(v *viper.Viper, load func() (config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg, cfg.Logger())
		},
	}
	bindRunFlags(v, cmd)
	return cmd
}

// bindRunFlags registers the daemon flags and binds them to their config keys.
func bindRunFlags(v *viper.Viper, cmd *cobra.Command) {
	f := cmd.Flags()
	f.Duration("normal", 30*time.Second, "NORMAL state timeout")
	f.Duration("dim", 5*time.Second, "DIM state timeout")
	f.Duration("lcdoff", 10*time.Second, "LCD-OFF timeout before SLEEP")
	f.Bool("dim-enabled", true, "time out from NORMAL into DIM instead of LCD-OFF")
	f.String("plugin", "/usr/lib/display-powerd/smartstay.so", "smart stay plugin path (empty disables)")
	f.String("broker", "tcp://127.0.0.1:1883", "MQTT broker address (empty disables)")
	f.Duration("heartbeat", 15*time.Minute, "heartbeat interval (0 to disable)")
	f.String("http", ":8080", "HTTP status address (empty to disable)")

	mustBind(v, config.KeyNormal, f.Lookup("normal"))
	mustBind(v, config.KeyDim, f.Lookup("dim"))
	mustBind(v, config.KeyLCDOff, f.Lookup("lcdoff"))
	mustBind(v, config.KeyDimEnabled, f.Lookup("dim-enabled"))
	mustBind(v, config.KeyPlugin, f.Lookup("plugin"))
	mustBind(v, config.KeyBroker, f.Lookup("broker"))
	mustBind(v, config.KeyHeartbeat, f.Lookup("heartbeat"))
	mustBind(v, config.KeyHTTPAddr, f.Lookup("http"))
}

func newPrintStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print-state",
		Short: "Print the running daemon's display state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *lease.Client) error {
				state, err := c.State(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "state: %s\n", state)
				return nil
			})
		},
	}
}

func newStandbyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "standby",
		Short: "Manage standby leases",
	}

	var pid int
	setMode := func(enable bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *lease.Client) error {
				return c.SetStandbyMode(ctx, pid, enable)
			})
		}
	}

	acquire := &cobra.Command{
		Use:   "acquire",
		Short: "Hold a standby lease for a process",
		Args:  cobra.NoArgs,
		RunE:  setMode(true),
	}
	release := &cobra.Command{
		Use:   "release",
		Short: "Drop a process's standby lease",
		Args:  cobra.NoArgs,
		RunE:  setMode(false),
	}
	for _, c := range []*cobra.Command{acquire, release} {
		c.Flags().IntVar(&pid, "pid", os.Getppid(), "lease holder pid (default: parent process)")
	}

	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the standby lease state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *lease.Client) error {
				text, err := c.PrintStandbyMode(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}

	cmd.AddCommand(acquire, release, dump)
	return cmd
}

func newOffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "off",
		Short: "Turn the panel off now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *lease.Client) error {
				return c.TurnOff(ctx)
			})
		},
	}
}

func newActivityCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Report user input to the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *lease.Client) error {
				return c.NotifyActivity(ctx, key)
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "key pressed: power, brightness-up, brightness-down (empty for plain activity)")
	return cmd
}

func withClient(parent context.Context, fn func(context.Context, *lease.Client) error) error {
	if parent == nil {
		parent = context.Background()
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return errors.Wrap(err, "connect system bus")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(parent, clientTimeout)
	defer cancel()
	return fn(ctx, lease.NewClient(conn))
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
