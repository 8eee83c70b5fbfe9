package cmd

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wdatoms/api/schemas"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
	"github.com/xkilldash9x/wdatoms/internal/observability"
)

// maxRequestLine bounds one request on the run stream.
const maxRequestLine = 16 << 20

// newRunCmd creates the `run` command: a request/response loop over stdin
// and stdout, one JSON object per line.
func newRunCmd() *cobra.Command {
	var docs documentFlags

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Answer JSON command requests read line by line from stdin",
		Long: `Answer JSON command requests read line by line from stdin.

Each line is {"id": "...", "command": "NAME", "args": [...]} and produces one
response line {"id": "...", "status": N, "value": ...}. Besides the atoms,
NAVIGATE, LOAD, SWITCH_TO_FRAME, SWITCH_TO_DEFAULT_CONTENT and
GET_CURRENT_URL act on the session itself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, cfg, release, err := openSession(ctx, docs)
			if err != nil {
				return err
			}
			defer release()

			logger := observability.GetLogger().Named("run")
			out := cmd.OutOrStdout()
			format := cfg.Envelope().Format

			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLine)
			handled := 0
			for scanner.Scan() {
				if err := ctx.Err(); err != nil {
					return err
				}
				line := bytes.TrimSpace(scanner.Bytes())
				if len(line) == 0 {
					continue
				}

				var resp schemas.Response
				req, err := schemas.ParseRequest(line)
				if err != nil {
					resp.Envelope = schemas.Failed(int(errcode.UnknownError), err.Error())
				} else {
					resp = s.Handle(ctx, req)
				}
				if err := writeEnvelope(out, format, resp); err != nil {
					return err
				}
				handled++
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed reading requests: %w", err)
			}
			logger.Debug("Request stream ended.", zap.Int("handled", handled))
			return nil
		},
	}
	docs.register(runCmd)
	return runCmd
}
