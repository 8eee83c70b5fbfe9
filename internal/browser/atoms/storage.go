// internal/browser/atoms/storage.go
package atoms

import (
	"context"

	"github.com/xkilldash9x/wdatoms/internal/browser/dispatch"
	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
)

type storageArea struct {
	prefix string // LOCAL or SESSION
	open   func(*dom.Window) dom.Storage
}

var storageAreas = []storageArea{
	{prefix: "LOCAL", open: (*dom.Window).LocalStorage},
	{prefix: "SESSION", open: (*dom.Window).SessionStorage},
}

// storageOps builds the web storage atoms for both areas, e.g.
// GET_LOCAL_STORAGE_ITEM and CLEAR_SESSION_STORAGE.
func storageOps() map[string]dispatch.Operation {
	ops := make(map[string]dispatch.Operation)
	for _, area := range storageAreas {
		ops["GET_"+area.prefix+"_STORAGE_ITEM"] = area.getItem
		ops["SET_"+area.prefix+"_STORAGE_ITEM"] = area.setItem
		ops["REMOVE_"+area.prefix+"_STORAGE_ITEM"] = area.removeItem
		ops["GET_"+area.prefix+"_STORAGE_KEYS"] = area.keys
		ops["GET_"+area.prefix+"_STORAGE_SIZE"] = area.size
		ops["CLEAR_"+area.prefix+"_STORAGE"] = area.clear
	}
	return ops
}

func storageError(err error) error {
	return errcode.Wrap(errcode.UnknownError, err, "storage unavailable: %v", err)
}

func (a storageArea) getItem(ctx context.Context, call *dispatch.Call) (any, error) {
	key, err := call.String(0)
	if err != nil {
		return nil, err
	}
	v, ok, err := a.open(call.Window).Get(ctx, key)
	if err != nil {
		return nil, storageError(err)
	}
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (a storageArea) setItem(ctx context.Context, call *dispatch.Call) (any, error) {
	key, err := call.String(0)
	if err != nil {
		return nil, err
	}
	value, err := call.String(1)
	if err != nil {
		return nil, err
	}
	if err := a.open(call.Window).Set(ctx, key, value); err != nil {
		return nil, storageError(err)
	}
	return nil, nil
}

// removeItem returns the removed value, or null when the key was absent.
func (a storageArea) removeItem(ctx context.Context, call *dispatch.Call) (any, error) {
	key, err := call.String(0)
	if err != nil {
		return nil, err
	}
	old, ok, err := a.open(call.Window).Remove(ctx, key)
	if err != nil {
		return nil, storageError(err)
	}
	if !ok {
		return nil, nil
	}
	return old, nil
}

func (a storageArea) keys(ctx context.Context, call *dispatch.Call) (any, error) {
	keys, err := a.open(call.Window).Keys(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

func (a storageArea) size(ctx context.Context, call *dispatch.Call) (any, error) {
	n, err := a.open(call.Window).Len(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	return n, nil
}

func (a storageArea) clear(ctx context.Context, call *dispatch.Call) (any, error) {
	if err := a.open(call.Window).Clear(ctx); err != nil {
		return nil, storageError(err)
	}
	return nil, nil
}
