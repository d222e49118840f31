package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	rowan "github.com/Ki11erRabbit/rowan"
	"github.com/Ki11erRabbit/rowan/api/classfile"
)

var loadNativeDir string

var loadCmd = &cobra.Command{
	Use:   "load <classfile.json>...",
	Short: "Link one or more JSON class files and report any link error",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := readClassFiles(args)
		if err != nil {
			return err
		}

		rt, err := rowan.NewRuntime(rowan.NewRuntimeConfig().WithNativeDir(loadNativeDir))
		if err != nil {
			return err
		}
		defer rt.Close(cmd.Context())

		if err := rt.Load(files); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "linked %d class file(s) OK\n", len(files))
		return nil
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadNativeDir, "native-dir", "", "base directory native library paths resolve under")
	rootCmd.AddCommand(loadCmd)
}

// readClassFiles decodes every path as a JSON class file
// (api/classfile.DecodeJSON).
func readClassFiles(paths []string) ([]*rowan.ClassFile, error) {
	files := make([]*rowan.ClassFile, len(paths))
	for i, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		cf, err := classfile.DecodeJSON(f)
		closeErr := f.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		if closeErr != nil {
			return nil, closeErr
		}
		files[i] = cf
	}
	return files, nil
}
