package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/simsweep/internal/config"
	"github.com/nvandessel/simsweep/internal/constants"
	"github.com/nvandessel/simsweep/internal/pathutil"
	"github.com/spf13/cobra"
)

const configHeader = `# simsweep sweep configuration
#
# params lists the values of each sweep dimension; every combination is run
# "executions" times. Run 'simsweep plan' to see the resulting runs.

`

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default sweep configuration to the workspace",
		Long: `Create ` + constants.ConfigFileName + ` and the ` + constants.StateDirName + `/ state directory in the
workspace root. An existing configuration is left alone unless --force is given.

Examples:
  simsweep init
  simsweep init --root ./exploration --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(cmd)
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")
			jsonOut, _ := cmd.Flags().GetBool("json")

			if err := os.MkdirAll(pathutil.StateDir(root), 0755); err != nil {
				return fmt.Errorf("failed to create %s directory: %w", constants.StateDirName, err)
			}

			path := configPath(cmd, root)
			status := "exists"
			if _, err := os.Stat(path); os.IsNotExist(err) || force {
				data, err := config.Default().Marshal()
				if err != nil {
					return fmt.Errorf("failed to render default config: %w", err)
				}
				if err := os.WriteFile(path, append([]byte(configHeader), data...), 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
				}
				status = "initialized"
			}

			template := filepath.Join(root, constants.DefaultTemplate)
			_, statErr := os.Stat(template)
			templateFound := statErr == nil

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]any{
					"status":         status,
					"config":         path,
					"template_found": templateFound,
				})
			}

			if status == "initialized" {
				fmt.Fprintf(out, "Initialized %s in %s\n", filepath.Base(path), root)
			} else {
				fmt.Fprintf(out, "%s already exists (use --force to overwrite)\n", path)
			}
			if !templateFound {
				fmt.Fprintf(out, "Note: template %s not found yet\n", constants.DefaultTemplate)
			}
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Overwrite an existing configuration")
	return cmd
}
