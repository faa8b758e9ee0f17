// Package display renders CLI output: JSON for scripts, pterm tables for people.
package display

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/teranos/sprout/errors"
)

// ShouldOutputJSON reports whether cmd should print JSON, from its own --json
// flag or the root's persistent one
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}

	if cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}

	globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json")
	return globalFlag
}

// OutputJSON marshals and prints v
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	fmt.Println(string(data))
	return nil
}
