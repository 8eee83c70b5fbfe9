// Package atoms holds the concrete browser automation operations that the
// dispatcher exposes by command name.
package atoms

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wdatoms/internal/browser/dispatch"
	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
)

// Command names.
const (
	ActiveElement     = "ACTIVE_ELEMENT"
	Clear             = "CLEAR"
	Click             = "CLICK"
	FindElement       = "FIND_ELEMENT"
	FindElements      = "FIND_ELEMENTS"
	GetAttributeValue = "GET_ATTRIBUTE_VALUE"
	GetTagName        = "GET_TAG_NAME"
	GetText           = "GET_TEXT"
	IsDisplayed       = "IS_DISPLAYED"
	IsEnabled         = "IS_ENABLED"
	IsSelected        = "IS_SELECTED"
	Submit            = "SUBMIT"
	Toggle            = "TOGGLE"

	FrameByIndex    = "FRAME_BY_INDEX"
	FrameByIDOrName = "FRAME_BY_ID_OR_NAME"
	DefaultContent  = "DEFAULT_CONTENT"
	ExecuteScript   = "EXECUTE_SCRIPT"
	ExecuteSQL      = "EXECUTE_SQL"
)

// ScriptRunner evaluates page script for EXECUTE_SCRIPT.
type ScriptRunner interface {
	Run(ctx context.Context, win *dom.Window, script string, args []any) (any, error)
}

// SQLExecutor runs Web SQL statements for EXECUTE_SQL.
type SQLExecutor interface {
	Exec(ctx context.Context, origin, database, query string, args []any) (any, error)
}

// Deps are the optional backends some atoms need. Atoms whose backend is nil
// are not registered.
type Deps struct {
	Scripts ScriptRunner
	SQL     SQLExecutor
	Logger  *zap.Logger
}

// Register adds every atom to reg.
func Register(reg *dispatch.Registry, deps Deps) error {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ops := map[string]dispatch.Operation{
		ActiveElement:     activeElement,
		Clear:             clearElement,
		Click:             click,
		FindElement:       findElement,
		FindElements:      findElements,
		GetAttributeValue: getAttributeValue,
		GetTagName:        getTagName,
		GetText:           getText,
		IsDisplayed:       isDisplayed,
		IsEnabled:         isEnabled,
		IsSelected:        isSelected,
		Submit:            submit,
		Toggle:            toggle,
		FrameByIndex:      frameByIndex,
		FrameByIDOrName:   frameByIDOrName,
		DefaultContent:    defaultContent,
	}
	for name, op := range storageOps() {
		ops[name] = op
	}
	if deps.Scripts != nil {
		ops[ExecuteScript] = executeScript(deps.Scripts)
	}
	if deps.SQL != nil {
		ops[ExecuteSQL] = executeSQL(deps.SQL)
	}

	for name, op := range ops {
		if err := reg.Register(name, op); err != nil {
			return err
		}
	}
	logger.Debug("Registered atoms.", zap.Int("count", len(ops)))
	return nil
}
