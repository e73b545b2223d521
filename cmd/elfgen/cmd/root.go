package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// RootCmd is the base command when elfgen is called without a subcommand.
var RootCmd = &cobra.Command{
	Use:   "elfgen",
	Short: "An ELF32 (i386) relocatable object emitter",
	Long: `elfgen assembles a pre-encoded instruction stream into a bit-exact
ELF32 (i386) ET_REL object file, with optional STABS or DWARF v2/v3 debug
info. It does not tokenize or assemble source text itself; that is the job
of a front end driving the object.Emitter API this CLI wraps.`,
}

// Execute adds all child commands to RootCmd and runs it. Called once from
// main.main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .elfgen.yaml)")
}

// initConfig layers flags over environment variables over .elfgen.yaml,
// following Manu343726/cucaracha's cmd/root.go.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".elfgen")
	}

	viper.SetEnvPrefix("ELFGEN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}
