package textproc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// LuaNormalizer runs a user script's normalize(text) function after the
// basic cleanup. The script is recompiled whenever it changes on disk; while
// it is missing or broken only the basic cleanup applies.
type LuaNormalizer struct {
	path    string
	watcher *fsnotify.Watcher
	closed  chan struct{}

	mu    sync.RWMutex
	proto *lua.FunctionProto
}

// NewLuaNormalizer loads the script at path (if present) and watches its
// directory for changes.
func NewLuaNormalizer(path string) (*LuaNormalizer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create script dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	n := &LuaNormalizer{
		path:    path,
		watcher: watcher,
		closed:  make(chan struct{}),
	}
	if err := n.compile(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("TEXT: normalize script not loaded: %v", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch script dir: %w", err)
	}
	go n.watchLoop()
	return n, nil
}

func (n *LuaNormalizer) compile() error {
	data, err := os.ReadFile(n.path)
	if err != nil {
		return err
	}
	name := filepath.Base(n.path)
	chunk, err := parse.Parse(strings.NewReader(string(data)), name)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	n.mu.Lock()
	n.proto = proto
	n.mu.Unlock()
	log.Printf("TEXT: compiled normalize script %q", name)
	return nil
}

func (n *LuaNormalizer) watchLoop() {
	for {
		select {
		case <-n.closed:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(n.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if err := n.compile(); err != nil {
					log.Printf("TEXT: hot reload failed: %v", err)
				}
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				n.mu.Lock()
				n.proto = nil
				n.mu.Unlock()
				log.Printf("TEXT: normalize script removed")
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("TEXT: watcher error: %v", err)
		}
	}
}

// Loaded reports whether a compiled script is active.
func (n *LuaNormalizer) Loaded() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.proto != nil
}

func (n *LuaNormalizer) Normalize(ctx context.Context, text string) (string, error) {
	text = Basic(text)

	n.mu.RLock()
	proto := n.proto
	n.mu.RUnlock()
	if proto == nil {
		return text, nil
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetContext(ctx)

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return "", fmt.Errorf("load normalize script: %w", err)
	}
	fn := L.GetGlobal("normalize")
	if fn == lua.LNil {
		return "", errors.New("normalize script has no normalize() function")
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(text)); err != nil {
		return "", fmt.Errorf("run normalize script: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	s, ok := ret.(lua.LString)
	if !ok {
		return "", fmt.Errorf("normalize() returned %s, want string", ret.Type())
	}
	return string(s), nil
}

func (n *LuaNormalizer) Close() error {
	select {
	case <-n.closed:
		return nil
	default:
	}
	close(n.closed)
	return n.watcher.Close()
}
