package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newConfigCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configFile != "" {
				viper.SetConfigFile(configFile)
			}
			if err := viper.ReadInConfig(); err != nil {
				if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
					return err
				}
			}
			settings, err := yaml.Marshal(viper.AllSettings())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(settings))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.restitch/config.yaml)")
	return cmd
}
