package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/meshcheck/internal/adaptor"
)

// MethodsResult lists the registered transport methods.
type MethodsResult struct {
	Methods []string `json:"methods"`
}

func (r MethodsResult) String() string {
	return strings.Join(r.Methods, "\n")
}

// NewMethodsCommand creates the methods command.
func NewMethodsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "methods",
		Short:         "List transport methods",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if err := formatter.Success(MethodsResult{Methods: adaptor.Default().Methods()}); err != nil {
				return fmt.Errorf("write methods: %w", err)
			}
			return nil
		},
	}
}
