// internal/browser/atoms/frames.go
package atoms

import (
	"context"

	"github.com/xkilldash9x/wdatoms/internal/browser/dispatch"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
)

// frameByIndex returns window.frames[index] of the current window.
func frameByIndex(_ context.Context, call *dispatch.Call) (any, error) {
	index, err := call.Int(0)
	if err != nil {
		return nil, err
	}
	frame, ok := call.Window.FrameByIndex(index)
	if !ok {
		return nil, errcode.New(errcode.NoSuchFrame, "Unable to locate frame: %d", index)
	}
	return frame, nil
}

// frameByIDOrName looks a child frame up by window name, then by the id of
// its frame element. A frame element may also be passed directly.
func frameByIDOrName(_ context.Context, call *dispatch.Call) (any, error) {
	if _, isString := call.Arg(0).(string); call.Present(0) && !isString {
		host, err := call.Element(0)
		if err != nil {
			return nil, err
		}
		frame, found := call.Window.FrameForElement(host)
		if !found {
			return nil, errcode.New(errcode.NoSuchFrame, "Element is not a frame")
		}
		return frame, nil
	}
	key, err := call.String(0)
	if err != nil {
		return nil, err
	}
	frame, ok := call.Window.FrameByNameOrID(key)
	if !ok {
		return nil, errcode.New(errcode.NoSuchFrame, "Unable to locate frame: %s", key)
	}
	return frame, nil
}

func defaultContent(_ context.Context, call *dispatch.Call) (any, error) {
	return call.Window.Top(), nil
}
