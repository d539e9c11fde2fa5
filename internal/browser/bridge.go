package browser

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// HostBinding is the page global the capability bridge calls into.
const HostBinding = "__rpaHost"

const (
	HostSendEvent      = "rpa-send-event"
	HostSendEntryEvent = "rpa-send-entry-event"
)

//go:embed bridge.js
var bridgeSource string

// InitScript returns the capability bridge with fileBufferURL (the full
// URL of the file-buffer endpoint) baked in.
func InitScript(fileBufferURL string) string {
	u, _ := json.Marshal(fileBufferURL)
	name, _ := json.Marshal(HostBinding)
	return strings.NewReplacer(
		"__FILE_BUFFER_URL__", string(u),
		"__HOST_BINDING__", string(name),
	).Replace(bridgeSource)
}

// HostCall is one page-to-host request made through window.api.invoke.
type HostCall struct {
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

// StringArg returns argument i decoded as a string, or "" when absent or
// not a string.
func (c HostCall) StringArg(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	var s string
	if err := json.Unmarshal(c.Args[i], &s); err != nil {
		return ""
	}
	return s
}

func ParseHostCall(payload string) (HostCall, error) {
	var c HostCall
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return HostCall{}, fmt.Errorf("decode host call: %w", err)
	}
	if c.Method == "" {
		return HostCall{}, fmt.Errorf("host call without method")
	}
	return c, nil
}

// hostQueue delivers host calls to a handler one at a time, in arrival
// order, off the browser's event goroutine.
type hostQueue struct {
	ch   chan HostCall
	once sync.Once
	done chan struct{}
}

func newHostQueue(handler func(HostCall)) *hostQueue {
	q := &hostQueue{ch: make(chan HostCall, 64), done: make(chan struct{})}
	go func() {
		defer close(q.done)
		for c := range q.ch {
			if handler != nil {
				handler(c)
			}
		}
	}()
	return q
}

func (q *hostQueue) push(c HostCall) {
	defer func() { _ = recover() }() // push after close drops the call
	q.ch <- c
}

func (q *hostQueue) close() {
	q.once.Do(func() { close(q.ch) })
}
