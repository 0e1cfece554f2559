// Package config loads and validates debugmcp.config.json, and resolves a
// DebugConfig for a given source file from it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vajrock/dapctl/internal/types"
)

// ConfigFileName is the file FindConfig searches for.
const ConfigFileName = "debugmcp.config.json"

// languageByExtension is the closed map from source file extension to the
// adapter language key used to index StandaloneConfig.Adapters/Defaults.
// Extensions not present here fall back to defaultLanguage.
var languageByExtension = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "node",
	".ts":   "node",
	".jsx":  "node",
	".tsx":  "node",
	".java": "java",
	".cs":   "coreclr",
	".cpp":  "cppdbg",
	".cc":   "cppdbg",
	".c":    "cppdbg",
	".rs":   "lldb",
	".php":  "php",
	".rb":   "ruby",
}

// defaultLanguage is the language an unrecognized file extension maps to.
const defaultLanguage = "python"

// Load reads and validates path as a StandaloneConfig, expanding
// ${workspaceFolder} and ${env:NAME} placeholders against workspaceFolder
// and the process environment.
func Load(path, workspaceFolder string) (*types.StandaloneConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &types.ConfigNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg types.StandaloneConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, &types.ConfigInvalidError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	expandConfig(&cfg, workspaceFolder)
	return &cfg, nil
}

func validate(cfg *types.StandaloneConfig) error {
	if cfg.Adapters == nil {
		return &types.ConfigInvalidError{Reason: "'adapters' is required"}
	}
	if cfg.Port < 0 {
		return &types.ConfigInvalidError{Reason: "'port' must not be negative"}
	}
	if cfg.Timeout < 0 {
		return &types.ConfigInvalidError{Reason: "'timeout' must not be negative"}
	}
	for lang, desc := range cfg.Adapters {
		if strings.TrimSpace(desc.Command) == "" {
			return &types.ConfigInvalidError{Reason: fmt.Sprintf("adapter %q has an empty command", lang)}
		}
		if desc.Args == nil {
			desc.Args = []string{}
			cfg.Adapters[lang] = desc
		}
	}
	return nil
}

// expandConfig rewrites every string field in cfg.Adapters and cfg.Defaults
// in place, substituting ${workspaceFolder} and ${env:NAME}.
func expandConfig(cfg *types.StandaloneConfig, workspaceFolder string) {
	expand := func(s string) string { return expandString(s, workspaceFolder) }

	for lang, desc := range cfg.Adapters {
		desc.Command = expand(desc.Command)
		desc.Cwd = expand(desc.Cwd)
		for i, a := range desc.Args {
			desc.Args[i] = expand(a)
		}
		for k, v := range desc.Env {
			desc.Env[k] = expand(v)
		}
		cfg.Adapters[lang] = desc
	}

	for lang, defaults := range cfg.Defaults {
		cfg.Defaults[lang] = expandAny(defaults, expand)
	}
}

func expandAny(v map[string]any, expand func(string) string) map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		switch t := val.(type) {
		case string:
			out[k] = expand(t)
		case map[string]any:
			out[k] = expandAny(t, expand)
		case []any:
			items := make([]any, len(t))
			for i, item := range t {
				switch it := item.(type) {
				case string:
					items[i] = expand(it)
				case map[string]any:
					items[i] = expandAny(it, expand)
				default:
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = val
		}
	}
	return out
}

// expandString performs a single pass over s, replacing ${workspaceFolder}
// and ${env:NAME} placeholders. Unknown placeholder forms are left as-is.
func expandString(s, workspaceFolder string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "${workspaceFolder}", workspaceFolder)

	pos := 0
	for {
		start := strings.Index(s[pos:], "${env:")
		if start < 0 {
			break
		}
		start += pos
		end := strings.Index(s[start:], "}")
		if end < 0 {
			break
		}
		end += start
		name := s[start+len("${env:") : end]
		value := os.Getenv(name)
		s = s[:start] + value + s[end+1:]
		pos = start + len(value)
	}
	return s
}

// FindConfig walks upward from startDir looking for debugmcp.config.json,
// stopping at the filesystem root.
func FindConfig(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("config: failed to resolve %s: %w", startDir, err)
	}

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", &types.ConfigNotFoundError{Path: filepath.Join(startDir, ConfigFileName)}
		}
		dir = parent
	}
}

// Resolve builds a DebugConfig for sourcePath: it detects the language from
// the file extension, looks up the matching adapter, and merges
// cfg.Defaults[language] underneath the caller-supplied overrides. Only the
// "cwd", "stopOnEntry" and "args" keys of the defaults are applied; any
// other key in them is ignored.
func Resolve(cfg *types.StandaloneConfig, sourcePath string, overrides types.DebugConfig) (types.DebugConfig, error) {
	lang, ok := languageByExtension[strings.ToLower(filepath.Ext(sourcePath))]
	if !ok {
		lang = defaultLanguage
	}
	if _, ok := cfg.Adapters[lang]; !ok {
		return types.DebugConfig{}, &types.NoAdapterConfiguredError{
			Language:  lang,
			Available: adapterLanguages(cfg),
		}
	}

	dc := types.DebugConfig{
		Type:    lang,
		Request: types.RequestLaunch,
		Name:    fmt.Sprintf("Standalone Debug: %s", filepath.Base(sourcePath)),
		Program: sourcePath,
	}

	if defaults, ok := cfg.Defaults[lang]; ok {
		applyDefaults(&dc, defaults)
	}

	if overrides.Type != "" {
		dc.Type = overrides.Type
	}
	if overrides.Request != "" {
		dc.Request = overrides.Request
	}
	if overrides.Name != "" {
		dc.Name = overrides.Name
	}
	if overrides.Program != "" {
		dc.Program = overrides.Program
	}
	if overrides.Cwd != "" {
		dc.Cwd = overrides.Cwd
	}
	if len(overrides.Args) > 0 {
		dc.Args = overrides.Args
	}
	if overrides.StopOnEntry {
		dc.StopOnEntry = true
	}
	if len(overrides.Env) > 0 {
		dc.Env = overrides.Env
	}

	return dc, nil
}

func applyDefaults(dc *types.DebugConfig, defaults map[string]any) {
	if v, ok := defaults["cwd"].(string); ok {
		dc.Cwd = v
	}
	if v, ok := defaults["stopOnEntry"].(bool); ok {
		dc.StopOnEntry = v
	}
	if v, ok := defaults["args"].([]any); ok {
		args := make([]string, 0, len(v))
		for _, a := range v {
			if s, ok := a.(string); ok {
				args = append(args, s)
			}
		}
		dc.Args = args
	}
}

func adapterLanguages(cfg *types.StandaloneConfig) []string {
	out := make([]string, 0, len(cfg.Adapters))
	for lang := range cfg.Adapters {
		out = append(out, lang)
	}
	return out
}
