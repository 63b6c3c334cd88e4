package install

import "sync"

// Hook is called after every install batch. Implementations must be
// comparable (typically pointers) so they can be unregistered.
type Hook interface {
	AfterInstall(result *BatchResult)
}

// FuncHook adapts a function to Hook.
type FuncHook struct {
	fn func(*BatchResult)
}

// NewHook wraps fn. Keep the returned pointer to unregister it later.
func NewHook(fn func(*BatchResult)) *FuncHook {
	return &FuncHook{fn: fn}
}

func (h *FuncHook) AfterInstall(result *BatchResult) { h.fn(result) }

// Hooks is a registry of post-install hooks.
type Hooks struct {
	mu    sync.RWMutex
	hooks []Hook
}

// Register adds h. Registering the same hook twice has no effect.
func (r *Hooks) Register(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.hooks {
		if existing == h {
			return
		}
	}
	r.hooks = append(r.hooks, h)
}

// Unregister removes h.
func (r *Hooks) Unregister(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.hooks {
		if existing == h {
			r.hooks = append(r.hooks[:i:i], r.hooks[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered hooks.
func (r *Hooks) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// Fire calls every hook registered at the time of the call. Hooks may
// register or unregister hooks while running.
func (r *Hooks) Fire(result *BatchResult) {
	r.mu.RLock()
	snapshot := append([]Hook(nil), r.hooks...)
	r.mu.RUnlock()

	for _, h := range snapshot {
		h.AfterInstall(result)
	}
}
