package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

// RoachConfig describes the settings roach reads from flags and the
// environment.
type RoachConfig struct {
	Debug   bool   `json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
	LogFile string `json:"logFile,omitempty" jsonschema:"title=Log File,description=Append logs to this file instead of stderr"`
	Policy  string `json:"policy,omitempty" jsonschema:"title=Unknown Opcode Policy,enum=byte,enum=stop,enum=arch,default=arch"`
	Base    string `json:"base,omitempty" jsonschema:"title=Base Address,description=Load address of raw input in hex"`
	NoColor bool   `json:"noColor,omitempty" jsonschema:"title=No Color,description=Disable colored output"`
	Profile bool   `json:"profile,omitempty" jsonschema:"title=Profile,description=Serve pprof on localhost:6060"`
}

var schemaCmd = &cobra.Command{
	Use:    "schema",
	Short:  "Generate JSON schema for configuration",
	Long:   "Generate JSON schema for the roach configuration",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		reflector := new(jsonschema.Reflector)
		bts, err := json.MarshalIndent(reflector.Reflect(&RoachConfig{}), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(bts))
		return nil
	},
}
