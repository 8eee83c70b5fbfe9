// internal/browser/atoms/script.go
package atoms

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wdatoms/internal/browser/dispatch"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
)

// executeScript runs a script in the page. Arguments are the decoded live
// values, so element references arrive as nodes.
func executeScript(runner ScriptRunner) dispatch.Operation {
	return func(ctx context.Context, call *dispatch.Call) (any, error) {
		script, err := call.String(0)
		if err != nil {
			return nil, err
		}
		args, err := call.List(1)
		if err != nil {
			return nil, err
		}
		result, err := runner.Run(ctx, call.Window, script, args)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, errcode.Wrap(errcode.ScriptTimeout, err, "Timed out waiting for script: %v", err)
			}
			return nil, err
		}
		return result, nil
	}
}

// executeSQL runs one statement against the page origin's Web SQL database.
func executeSQL(db SQLExecutor) dispatch.Operation {
	return func(ctx context.Context, call *dispatch.Call) (any, error) {
		name, err := call.String(0)
		if err != nil {
			return nil, err
		}
		query, err := call.String(1)
		if err != nil {
			return nil, err
		}
		args, err := call.List(2)
		if err != nil {
			return nil, err
		}
		origin := call.Window.Origin()
		result, err := db.Exec(ctx, origin, name, query, args)
		if err != nil {
			call.Logger.Debug("SQL statement failed.", zap.String("database", name), zap.Error(err))
			if errcode.CodeOf(err) != errcode.UnknownError {
				return nil, err
			}
			return nil, errcode.Wrap(errcode.SqlDatabase, err, "")
		}
		return result, nil
	}
}
