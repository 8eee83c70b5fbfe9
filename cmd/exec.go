package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/wdatoms/api/schemas"
)

// newExecCmd creates the `exec` command, which runs a single command and
// prints its envelope.
func newExecCmd() *cobra.Command {
	var docs documentFlags

	execCmd := &cobra.Command{
		Use:   "exec COMMAND [ARGS_JSON]",
		Short: "Run one command against a document and print its envelope",
		Long: `Run one command against a document and print its envelope.

ARGS_JSON is a JSON array of arguments, e.g. '[{"id":"q"}]'. Element
references use the {"ELEMENT": ":wdc:N"} form.`,
		Example: `  wdatoms exec --file page.html FIND_ELEMENT '[{"css":"#q"}]'
  wdatoms exec --url https://example.com GET_TEXT '[]'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			argsJSON := "[]"
			if len(args) == 2 {
				argsJSON = args[1]
			}
			values, err := schemas.ParseValues(argsJSON)
			if err != nil {
				return err
			}

			s, cfg, release, err := openSession(ctx, docs)
			if err != nil {
				return err
			}
			defer release()

			resp := s.Handle(ctx, schemas.Request{Command: args[0], Args: values})
			return writeEnvelope(cmd.OutOrStdout(), cfg.Envelope().Format, resp.Envelope)
		},
	}
	docs.register(execCmd)
	return execCmd
}
