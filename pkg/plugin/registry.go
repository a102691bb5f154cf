package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry manages all available checks
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// globalRegistry is the default registry
var globalRegistry = NewRegistry()

// NewRegistry creates a new registry
func NewRegistry() *Registry {
	return &Registry{
		checks: make(map[string]Check),
	}
}

// Register adds a check to the global registry
func Register(c Check) error {
	return globalRegistry.Register(c)
}

// Get retrieves a check from the global registry
func Get(name string) (Check, error) {
	return globalRegistry.Get(name)
}

// List returns all registered check names
func List() []string {
	return globalRegistry.List()
}

// Execute runs a check from the global registry
func Execute(ctx context.Context, name string, params Params) (Result, error) {
	return globalRegistry.Execute(ctx, name, params)
}

// Register adds a check to the registry
func (r *Registry) Register(c Check) error {
	if c == nil {
		return fmt.Errorf("check cannot be nil")
	}

	name := c.Name()
	if name == "" {
		return fmt.Errorf("check name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.checks[name]; exists {
		return fmt.Errorf("check %q already registered", name)
	}

	r.checks[name] = c
	return nil
}

// Get retrieves a check by name
func (r *Registry) Get(name string) (Check, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.checks[name]
	if !exists {
		return nil, fmt.Errorf("check %q not found", name)
	}

	return c, nil
}

// List returns all registered check names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Clear removes all checks from the registry
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checks = make(map[string]Check)
}

// Execute fills unset params from the check's defaults, validates them and
// runs the check under the params timeout. Timing fields of the result are
// always set.
func (r *Registry) Execute(ctx context.Context, name string, params Params) (Result, error) {
	c, err := r.Get(name)
	if err != nil {
		return Result{}, err
	}

	defaults := c.DefaultParams()
	if params.Timeout <= 0 {
		params.Timeout = defaults.Timeout
	}
	if params.Device == "" {
		params.Device = defaults.Device
	}
	if params.Config == nil {
		params.Config = defaults.Config
	}

	start := time.Now()
	if err := c.ValidateParams(params); err != nil {
		return Result{StartTime: start, EndTime: time.Now(), Error: err.Error()}, fmt.Errorf("invalid parameters: %w", err)
	}

	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	result, err := c.Run(ctx, params)
	if result.StartTime.IsZero() {
		result.StartTime = start
	}
	if result.EndTime.IsZero() {
		result.EndTime = time.Now()
	}
	result.Duration = result.EndTime.Sub(result.StartTime)
	if err != nil && result.Error == "" {
		result.Error = err.Error()
		result.Success = false
	}
	return result, err
}

// GetInfo returns detailed information about all registered checks
func GetInfo() []Info {
	return globalRegistry.GetInfo()
}

// GetInfo returns detailed information about all checks
func (r *Registry) GetInfo() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var infos []Info
	for _, c := range r.checks {
		info := Info{
			Name:        c.Name(),
			Description: c.Description(),
		}

		// Checks may describe themselves in more detail
		if ext, ok := c.(interface{ Info() Info }); ok {
			info = ext.Info()
		}

		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	return infos
}
