package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrylevesque/invitedeliver/internal"
	"github.com/harrylevesque/invitedeliver/internal/utils"
)

type app struct {
	configPath string
	logLevel   string

	cfg    internal.Config
	logger *utils.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "invite",
		Short:         "Deliver an invite token to a device that showed a QR code",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", utils.GetConfigPath(), "path to config.json")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		a.newTokenCmd(),
		a.newComposeCmd(),
		a.newScanCmd(),
		a.newDeliverCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := internal.ReadConfig(a.configPath)
	if err != nil {
		return err
	}
	level := a.logLevel
	if cfg.LogFile != "" && level == "warn" {
		level = cfg.LogLevel
	}
	logger, err := utils.NewLogger(cfg.LogFile, level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <page-url>",
		Short: "Print the invite carried in a link's #ek= or ?ek= parameter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := tokenFromLink(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
}

func (a *app) newComposeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compose <device-url> <invite>",
		Short: "Print the device URL with the invite set as its ek parameter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := composeURL(args[0], args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), target)
			return err
		},
	}
}

func (a *app) newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <image|->",
		Short: "Print the text of the QR code in a PNG, JPEG, GIF or WebP image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := scanImage(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(text))
			return err
		},
	}
}
