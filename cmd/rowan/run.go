package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	rowan "github.com/Ki11erRabbit/rowan"
	"github.com/Ki11erRabbit/rowan/internal/rlog"
)

var (
	runMainClass  string
	runMainMethod string
	runNativeDir  string
	runLogLevel   string
)

var runCmd = &cobra.Command{
	Use:   "run <classfile.json>... [-- args...]",
	Short: "Link the given class files and call_main into the resolved entry point",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		classArgs, mainArgs := splitArgsDash(args, cmd.ArgsLenAtDash())

		files, err := readClassFiles(classArgs)
		if err != nil {
			return err
		}

		level, err := parseLogLevel(runLogLevel)
		if err != nil {
			return err
		}
		cfg := rowan.NewRuntimeConfig().
			WithNativeDir(runNativeDir).
			WithLogWriter(cmd.ErrOrStderr()).
			WithLogLevel(level)

		rt, err := rowan.NewRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close(cmd.Context())

		if err := rt.Load(files); err != nil {
			return err
		}

		exitCode, err := rt.CallMain(cmd.Context(), runMainClass, runMainMethod, mainArgs)
		if err != nil {
			return err
		}
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	},
}

// splitArgsDash separates the leading class-file paths from any
// arguments meant for the guest main method. dash is cobra's
// ArgsLenAtDash: the number of args before "--" (which cobra has
// already removed from args), or -1 if there was none.
func splitArgsDash(args []string, dash int) (classArgs, mainArgs []string) {
	if dash < 0 {
		return args, nil
	}
	return args[:dash], args[dash:]
}

func parseLogLevel(s string) (rlog.Level, error) {
	switch s {
	case "", "off":
		return rlog.LevelOff, nil
	case "debug":
		return rlog.LevelDebug, nil
	case "info":
		return rlog.LevelInfo, nil
	case "warn":
		return rlog.LevelWarn, nil
	case "error":
		return rlog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown --log-level %q", s)
	}
}

func init() {
	runCmd.Flags().StringVar(&runMainClass, "main-class", "", "main class symbol to resolve (required)")
	runCmd.Flags().StringVar(&runMainMethod, "main-method", "main", "main static method symbol to resolve")
	runCmd.Flags().StringVar(&runNativeDir, "native-dir", "", "base directory native library paths resolve under")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "off", "one of: off, debug, info, warn, error")
	_ = runCmd.MarkFlagRequired("main-class")
	rootCmd.AddCommand(runCmd)
}
