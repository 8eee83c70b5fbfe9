package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wdatoms/api/schemas"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
)

// Session-level commands understood by Handle in addition to the atoms.
const (
	CmdNavigate               = "NAVIGATE"
	CmdLoad                   = "LOAD"
	CmdSwitchToFrame          = "SWITCH_TO_FRAME"
	CmdSwitchToDefaultContent = "SWITCH_TO_DEFAULT_CONTENT"
	CmdGetCurrentURL          = "GET_CURRENT_URL"
)

// SessionCommands lists the commands Handle answers itself.
var SessionCommands = []string{CmdGetCurrentURL, CmdLoad, CmdNavigate, CmdSwitchToDefaultContent, CmdSwitchToFrame}

// Handle answers one transport request. Navigation and frame focus are
// handled here; every other command goes to the dispatcher.
func (s *Session) Handle(ctx context.Context, req schemas.Request) schemas.Response {
	s.serial.Lock()
	defer s.serial.Unlock()

	resp := schemas.Response{ID: req.ID}
	switch req.Command {
	case CmdNavigate:
		resp.Envelope = s.outcome(s.navigateArgs(ctx, req.Args))
	case CmdLoad:
		resp.Envelope = s.outcome(s.loadArgs(req.Args))
	case CmdSwitchToFrame:
		if len(req.Args) == 0 {
			resp.Envelope = s.outcome(errcode.New(errcode.NoSuchFrame, "Unable to locate frame: no reference given"))
			break
		}
		resp.Envelope = s.outcome(s.SwitchToFrame(req.Args[0]))
	case CmdSwitchToDefaultContent:
		s.SwitchToDefaultContent()
		resp.Envelope = schemas.Succeeded(schemas.Null())
	case CmdGetCurrentURL:
		resp.Envelope = schemas.Succeeded(schemas.String(s.Current().URL()))
	default:
		resp.Envelope = s.Execute(ctx, req.Command, req.Args)
	}
	return resp
}

func (s *Session) navigateArgs(ctx context.Context, args []schemas.Value) error {
	if len(args) == 0 || args[0].Kind() != schemas.KindString {
		return errcode.New(errcode.UnknownError, "%s expects a URL string", CmdNavigate)
	}
	return s.Navigate(ctx, args[0].AsString())
}

func (s *Session) loadArgs(args []schemas.Value) error {
	if len(args) == 0 || args[0].Kind() != schemas.KindString {
		return errcode.New(errcode.UnknownError, "%s expects a markup string", CmdLoad)
	}
	address := "about:blank"
	if len(args) > 1 && args[1].Kind() == schemas.KindString {
		address = args[1].AsString()
	}
	return s.LoadString(args[0].AsString(), address)
}

func (s *Session) outcome(err error) schemas.Envelope {
	if err == nil {
		return schemas.Succeeded(schemas.Null())
	}
	classified := errcode.FromError(err)
	s.logger.Debug("Session command failed.", zap.Error(err), zap.Stringer("code", classified.Code))
	return schemas.Failed(int(classified.Code), classified.Error())
}
