package prompt

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/enso/keyvalue"
	"github.com/ashita-ai/enso/payload"
)

// kvCollection is the key-value collection the library persists into.
const kvCollection = "prompts"

var (
	nameRe     = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)
	variableRe = regexp.MustCompile(`\{\{\s*([a-zA-Z][a-zA-Z0-9_]*)\s*\}\}`)
)

// Store is the slice of the key-value client the library needs. Satisfied
// by *keyvalue.Client.
type Store interface {
	Get(ctx context.Context, collection, key string) (payload.DataResult, error)
	Set(ctx context.Context, collection, key string, value any, opts *keyvalue.SetOptions) error
	Delete(ctx context.Context, collection, key string) error
}

// VersionRecord is one immutable prompt version, stored at
// prompts:{name}:v{n}.
type VersionRecord struct {
	Template    string         `json:"template"`
	Variables   []string       `json:"variables"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at,omitempty"`
	Version     int            `json:"version"`
}

// metaRecord is the per-prompt metadata stored at prompts:{name}.
type metaRecord struct {
	Name          string    `json:"name"`
	LatestVersion int       `json:"latest_version"`
	TotalVersions int       `json:"total_versions"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Library manages versioned prompt templates on top of the key-value
// store. Variables use the {{name}} syntax and are extracted automatically
// on Create.
type Library struct {
	kv     Store
	tracer trace.Tracer
	now    func() time.Time
}

// NewLibrary creates a Library backed by the given store.
func NewLibrary(kv Store, tracer trace.Tracer) *Library {
	if tracer == nil {
		tracer = otel.Tracer("enso/prompt")
	}
	return &Library{kv: kv, tracer: tracer, now: time.Now}
}

func validateName(name string) error {
	switch {
	case name == "":
		return &InvalidNameError{Name: name, Reason: "name cannot be empty"}
	case len(name) > 100:
		return &InvalidNameError{Name: name, Reason: "name cannot be longer than 100 characters"}
	case !nameRe.MatchString(name):
		return &InvalidNameError{Name: name, Reason: "name must start with a letter and contain only letters, numbers, underscores, and hyphens"}
	}
	return nil
}

// extractVariables returns the unique template variable names in order of
// first appearance.
func extractVariables(template string) []string {
	seen := make(map[string]struct{})
	var vars []string
	for _, m := range variableRe.FindAllStringSubmatch(template, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		vars = append(vars, m[1])
	}
	return vars
}

func promptKey(name string) string { return "prompts:" + name }

func versionKey(name string, v int) string { return fmt.Sprintf("prompts:%s:v%d", name, v) }

// loadMeta reads the prompt metadata record; ok is false on a miss.
func (l *Library) loadMeta(ctx context.Context, name string) (metaRecord, bool, error) {
	res, err := l.kv.Get(ctx, kvCollection, promptKey(name))
	if err != nil {
		return metaRecord{}, false, err
	}
	if !res.Exists() {
		return metaRecord{}, false, nil
	}
	var meta metaRecord
	if err := res.Data().JSONInto(&meta); err != nil {
		return metaRecord{}, false, fmt.Errorf("prompt: corrupt metadata for %q: %w", name, err)
	}
	return meta, true, nil
}

// CreateOptions carries the optional parameters of Create.
type CreateOptions struct {
	Description string
	Config      map[string]any
	// Force permits creating a new version of an existing prompt.
	Force bool
}

// Create stores a new prompt template. Without Force, creating an existing
// prompt fails with ExistsError; with Force the version number advances.
func (l *Library) Create(ctx context.Context, name, template string, opts *CreateOptions) (*VersionRecord, error) {
	ctx, span := l.tracer.Start(ctx, "enso.prompt.create", trace.WithAttributes(
		attribute.String("prompt.name", name),
	))
	defer span.End()

	if err := validateName(name); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &CreateOptions{}
	}

	meta, exists, err := l.loadMeta(ctx, name)
	if err != nil {
		return nil, err
	}

	next := 1
	if exists {
		if !opts.Force {
			return nil, &ExistsError{Name: name, CurrentVersion: meta.LatestVersion}
		}
		next = meta.LatestVersion + 1
	}
	span.SetAttributes(attribute.Int("prompt.version", next))

	cfg := opts.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	now := l.now().UTC()
	record := VersionRecord{
		Template:    template,
		Variables:   extractVariables(template),
		Description: opts.Description,
		Config:      cfg,
		CreatedAt:   now,
		Version:     next,
	}
	if err := l.kv.Set(ctx, kvCollection, versionKey(name, next), record, nil); err != nil {
		return nil, err
	}

	newMeta := metaRecord{
		Name:          name,
		LatestVersion: next,
		TotalVersions: next,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if exists {
		newMeta.CreatedAt = meta.CreatedAt
	}
	if err := l.kv.Set(ctx, kvCollection, promptKey(name), newMeta, nil); err != nil {
		return nil, err
	}
	return &record, nil
}

// Get returns a prompt version. Version 0 means latest.
func (l *Library) Get(ctx context.Context, name string, promptVersion int) (*VersionRecord, error) {
	ctx, span := l.tracer.Start(ctx, "enso.prompt.get", trace.WithAttributes(
		attribute.String("prompt.name", name),
	))
	defer span.End()

	if err := validateName(name); err != nil {
		return nil, err
	}

	if promptVersion == 0 {
		meta, exists, err := l.loadMeta(ctx, name)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, &NotFoundError{Name: name}
		}
		promptVersion = meta.LatestVersion
	}
	span.SetAttributes(attribute.Int("prompt.version", promptVersion))

	res, err := l.kv.Get(ctx, kvCollection, versionKey(name, promptVersion))
	if err != nil {
		return nil, err
	}
	if !res.Exists() {
		return nil, &NotFoundError{Name: name, Version: promptVersion}
	}
	var record VersionRecord
	if err := res.Data().JSONInto(&record); err != nil {
		return nil, fmt.Errorf("prompt: corrupt version record for %q: %w", name, err)
	}
	return &record, nil
}

// Compile substitutes variables into a stored template. All variables the
// template declares must be provided; extras are ignored.
func (l *Library) Compile(ctx context.Context, name string, variables map[string]any, promptVersion int) (string, error) {
	ctx, span := l.tracer.Start(ctx, "enso.prompt.compile_local", trace.WithAttributes(
		attribute.String("prompt.name", name),
	))
	defer span.End()

	record, err := l.Get(ctx, name, promptVersion)
	if err != nil {
		return "", err
	}

	var missing []string
	for _, v := range record.Variables {
		if _, ok := variables[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &MissingVariableError{Prompt: name, Missing: missing}
	}

	compiled := variableRe.ReplaceAllStringFunc(record.Template, func(m string) string {
		sub := variableRe.FindStringSubmatch(m)
		if v, ok := variables[sub[1]]; ok {
			return fmt.Sprint(v)
		}
		return m
	})
	return compiled, nil
}

// Versions lists the available version numbers in ascending order.
func (l *Library) Versions(ctx context.Context, name string) ([]int, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	meta, exists, err := l.loadMeta(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Name: name}
	}
	versions := make([]int, 0, meta.TotalVersions)
	for v := 1; v <= meta.TotalVersions; v++ {
		versions = append(versions, v)
	}
	return versions, nil
}

// Delete removes one version, or the whole prompt when promptVersion is 0.
// Metadata is kept consistent when versions remain.
func (l *Library) Delete(ctx context.Context, name string, promptVersion int) error {
	ctx, span := l.tracer.Start(ctx, "enso.prompt.delete", trace.WithAttributes(
		attribute.String("prompt.name", name),
	))
	defer span.End()

	if err := validateName(name); err != nil {
		return err
	}

	meta, exists, err := l.loadMeta(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return &NotFoundError{Name: name}
	}

	if promptVersion == 0 {
		for v := 1; v <= meta.TotalVersions; v++ {
			if err := l.kv.Delete(ctx, kvCollection, versionKey(name, v)); err != nil {
				return err
			}
		}
		return l.kv.Delete(ctx, kvCollection, promptKey(name))
	}
	span.SetAttributes(attribute.Int("prompt.version", promptVersion))

	res, err := l.kv.Get(ctx, kvCollection, versionKey(name, promptVersion))
	if err != nil {
		return err
	}
	if !res.Exists() {
		return &NotFoundError{Name: name, Version: promptVersion}
	}
	if err := l.kv.Delete(ctx, kvCollection, versionKey(name, promptVersion)); err != nil {
		return err
	}

	// Recompute the latest surviving version.
	latest := 0
	remaining := 0
	for v := 1; v <= meta.TotalVersions; v++ {
		if v == promptVersion {
			continue
		}
		res, err := l.kv.Get(ctx, kvCollection, versionKey(name, v))
		if err != nil {
			return err
		}
		if res.Exists() {
			remaining++
			latest = v
		}
	}
	if remaining == 0 {
		return l.kv.Delete(ctx, kvCollection, promptKey(name))
	}

	meta.LatestVersion = latest
	meta.UpdatedAt = l.now().UTC()
	return l.kv.Set(ctx, kvCollection, promptKey(name), meta, nil)
}

// UpdateConfig merges config into a version's existing config and persists
// it. Version 0 means latest.
func (l *Library) UpdateConfig(ctx context.Context, name string, config map[string]any, promptVersion int) (*VersionRecord, error) {
	ctx, span := l.tracer.Start(ctx, "enso.prompt.update_config", trace.WithAttributes(
		attribute.String("prompt.name", name),
	))
	defer span.End()

	record, err := l.Get(ctx, name, promptVersion)
	if err != nil {
		return nil, err
	}
	if record.Config == nil {
		record.Config = map[string]any{}
	}
	for k, v := range config {
		record.Config[k] = v
	}
	record.UpdatedAt = l.now().UTC()

	if err := l.kv.Set(ctx, kvCollection, versionKey(name, record.Version), record, nil); err != nil {
		return nil, err
	}
	return record, nil
}

// Copy duplicates a prompt (latest version unless promptVersion is given)
// under a new name as that name's version 1.
func (l *Library) Copy(ctx context.Context, sourceName, targetName string, promptVersion int) (*VersionRecord, error) {
	ctx, span := l.tracer.Start(ctx, "enso.prompt.copy", trace.WithAttributes(
		attribute.String("prompt.source_name", sourceName),
		attribute.String("prompt.target_name", targetName),
	))
	defer span.End()

	source, err := l.Get(ctx, sourceName, promptVersion)
	if err != nil {
		return nil, err
	}
	return l.Create(ctx, targetName, source.Template, &CreateOptions{
		Description: source.Description,
		Config:      source.Config,
	})
}
