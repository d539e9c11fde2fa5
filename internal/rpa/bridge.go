package rpa

import (
	"context"
	"encoding/json"
	"fmt"

	"multi-platform-rpa/internal/model"
)

// Bridge is the typed view of the cooperative protocol a platform script
// exposes inside the page.
type Bridge interface {
	SetTask(ctx context.Context, task model.UploadTask) error
	// Start begins the upload (renderVideo(config)).
	Start(ctx context.Context) error
	// Tick is the per-poll hook (render(config)).
	Tick(ctx context.Context) error
	// IsComplete reads the completion flag (isDone).
	IsComplete(ctx context.Context) (bool, error)
	// Trigger fires the final publish action (startPush) without
	// awaiting it.
	Trigger(ctx context.Context) error
}

// Evaluator runs an expression in the page and decodes its JSON result.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, out any) error
}

// Entry points of the in-page contract.
const (
	entryStart   = "renderVideo"
	entryTick    = "render"
	entryTrigger = "startPush"
)

// callEntryJS calls a global function with the current task config
// when it exists and reports page exceptions as data so every backend
// surfaces the same message.
const callEntryJS = `(async () => {
  if (typeof %[1]s !== 'function') {
    return { ok: true, skipped: true };
  }
  try {
    await %[1]s(window.rpConfig);
    return { ok: true };
  } catch (e) {
    return { ok: false, error: String((e && e.message) || e) };
  }
})()`

// triggerJS starts the publish action without waiting for it. Only a
// synchronous throw fails the run; a later rejection is logged in the page.
const triggerJS = `(() => {
  if (typeof startPush !== 'function') {
    return { ok: true, skipped: true };
  }
  try {
    const p = startPush();
    if (p && typeof p.catch === 'function') {
      p.catch((e) => console.warn('startPush rejected', e));
    }
    return { ok: true };
  } catch (e) {
    return { ok: false, error: String((e && e.message) || e) };
  }
})()`

const isCompleteJS = `(() => ({ ok: true, value: window.isDone === true }))()`

const setTaskJS = `(() => {
  window.rpConfig = %s;
  window.isDone = false;
  window.serviceId = %s;
  window.renderTaskMap = {};
  return { ok: true };
})()`

type pageReply struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped"`
	Error   string `json:"error"`
	Value   bool   `json:"value"`
}

type pageBridge struct {
	page Evaluator
}

// NewPageBridge returns the Bridge backed by page globals.
func NewPageBridge(page Evaluator) Bridge {
	return &pageBridge{page: page}
}

func (b *pageBridge) eval(ctx context.Context, op, expr string) (pageReply, error) {
	var reply pageReply
	if err := b.page.Evaluate(ctx, expr, &reply); err != nil {
		if ctx.Err() != nil {
			return reply, ctx.Err()
		}
		return reply, &PageError{Op: op, Message: err.Error()}
	}
	if !reply.OK {
		msg := reply.Error
		if msg == "" {
			msg = op + " failed"
		}
		return reply, &PageError{Op: op, Message: msg}
	}
	return reply, nil
}

func (b *pageBridge) SetTask(ctx context.Context, task model.UploadTask) error {
	cfg, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode upload task: %w", err)
	}
	tab, _ := json.Marshal(task.TabID)
	_, err = b.eval(ctx, "setTask", fmt.Sprintf(setTaskJS, cfg, tab))
	return err
}

func (b *pageBridge) call(ctx context.Context, entry string) error {
	_, err := b.eval(ctx, entry, fmt.Sprintf(callEntryJS, entry))
	return err
}

func (b *pageBridge) Start(ctx context.Context) error { return b.call(ctx, entryStart) }
func (b *pageBridge) Tick(ctx context.Context) error  { return b.call(ctx, entryTick) }

func (b *pageBridge) Trigger(ctx context.Context) error {
	_, err := b.eval(ctx, entryTrigger, triggerJS)
	return err
}

func (b *pageBridge) IsComplete(ctx context.Context) (bool, error) {
	reply, err := b.eval(ctx, "isDone", isCompleteJS)
	if err != nil {
		return false, err
	}
	return reply.Value, nil
}
