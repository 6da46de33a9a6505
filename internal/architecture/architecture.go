// Package architecture implements the Architectural Context Engine
// (spec.md §4.9): keyword-driven system-type detection, module synthesis,
// and file-placement rules that the Plan Generator (C10) uses to keep
// generated files inside the expected module boundaries. Grounded on the
// teacher's keyword-matching idiom in internal/retrieval/sparse.go
// (ExtractKeywords-style token scanning), applied here to system-type
// classification instead of file relevance ranking.
package architecture

import (
	"path"
	"strings"
)

// SystemType names the detected shape of the system under modification.
type SystemType string

const (
	SystemFullstackWebApp SystemType = "fullstack_web_app"
	SystemCLITool         SystemType = "cli_tool"
	SystemAPIService      SystemType = "api_service"
	SystemLibrary         SystemType = "library"
	SystemUnknown         SystemType = "unknown"
	// SystemWebApp is the fallback pattern used when detection is
	// inconclusive, per spec.md §4.9 step 1.
	SystemWebApp SystemType = "web_app"
)

// Module is one architectural module synthesized for a system type.
type Module struct {
	Name      string
	Role      string
	Languages []string
	BasePath  string
	Subfolders []string
}

// Context is the full Architectural Context produced for one task.
type Context struct {
	SystemType           SystemType
	ArchitecturePattern  string
	Modules              []Module
	FileOrganizationRules map[string]string // role keyword -> base path
	Constraints          []string
}

// detectionOrder maps detection keywords (lowercased) to the system
// type they indicate, per spec.md §4.9 step 1. Entries are checked in
// order and the first system type with a matching keyword wins, so
// fullstack_web_app keywords take precedence.
var detectionOrder = []struct {
	sysType  SystemType
	keywords []string
}{
	{SystemFullstackWebApp, []string{"web app", "frontend", "backend", "react", "api", "fastapi", "flask", "express", "vue", "angular"}},
	{SystemCLITool, []string{"cli", "command line", "script", "terminal"}},
	{SystemAPIService, []string{"api", "rest", "endpoints", "microservice"}},
	{SystemLibrary, []string{"library", "package", "module"}},
}

// patternForSystemType is the static system-type -> default architecture
// pattern mapping of spec.md §4.9 step 2.
var patternForSystemType = map[SystemType]string{
	SystemFullstackWebApp: "layered_frontend_backend",
	SystemCLITool:         "single_binary",
	SystemAPIService:      "layered_service",
	SystemLibrary:         "package_library",
	SystemWebApp:          "layered_frontend_backend",
}

// DetectSystemType classifies task+idea by keyword matching, per spec.md
// §4.9 step 1. Falls back to SystemWebApp when nothing matches.
func DetectSystemType(task, idea string) SystemType {
	combined := strings.ToLower(task + " " + idea)
	for _, entry := range detectionOrder {
		for _, kw := range entry.keywords {
			if strings.Contains(combined, kw) {
				return entry.sysType
			}
		}
	}
	return SystemWebApp
}

// PatternFor returns the default architecture pattern for sysType.
func PatternFor(sysType SystemType) string {
	if p, ok := patternForSystemType[sysType]; ok {
		return p
	}
	return patternForSystemType[SystemWebApp]
}

// SynthesizeModules builds the module list for sysType, per spec.md §4.9
// step 3. Only fullstack_web_app produces the canonical frontend/backend
// pair; other system types produce a single module rooted at ".".
func SynthesizeModules(sysType SystemType) []Module {
	switch sysType {
	case SystemFullstackWebApp:
		return []Module{
			{
				Name:       "frontend",
				Role:       "ui_layer",
				Languages:  []string{"javascript", "jsx"},
				BasePath:   "frontend",
				Subfolders: []string{"src/components", "src/pages", "src/services"},
			},
			{
				Name:       "backend",
				Role:       "api_layer",
				Languages:  []string{"python"},
				BasePath:   "backend",
				Subfolders: []string{"api", "services", "models"},
			},
		}
	case SystemCLITool:
		return []Module{{Name: "cli", Role: "entrypoint", Languages: []string{"go"}, BasePath: ".", Subfolders: []string{"cmd", "internal"}}}
	case SystemAPIService:
		return []Module{{Name: "service", Role: "api_layer", Languages: []string{"go"}, BasePath: ".", Subfolders: []string{"internal", "cmd"}}}
	case SystemLibrary:
		return []Module{{Name: "library", Role: "package", Languages: []string{"go"}, BasePath: ".", Subfolders: []string{}}}
	default:
		return []Module{{Name: "app", Role: "application", Languages: []string{"go"}, BasePath: ".", Subfolders: []string{}}}
	}
}

// FileOrganizationRules derives role -> base_path rules from modules, per
// spec.md §4.9 step 4's four canonical rules. Only rules applicable to the
// given modules are produced; a non-fullstack module set yields an empty
// or reduced rule set.
func FileOrganizationRules(modules []Module) map[string]string {
	rules := make(map[string]string)
	for _, m := range modules {
		switch m.Name {
		case "frontend":
			rules["ui_components"] = path.Join(m.BasePath, "src", "components")
		case "backend":
			rules["api_routes"] = path.Join(m.BasePath, "api")
			rules["business_logic"] = path.Join(m.BasePath, "services")
			rules["data_models"] = path.Join(m.BasePath, "models")
		}
	}
	return rules
}

// systemConstraints lists the mandatory constraints injected per system
// type, per spec.md §4.9 step 5.
var systemConstraints = map[SystemType][]string{
	SystemFullstackWebApp: {
		"never mix frontend and backend code in the same file",
		"frontend code belongs under frontend/, backend code under backend/",
	},
	SystemCLITool: {
		"expose one clear entrypoint under cmd/",
	},
	SystemAPIService: {
		"keep transport (handlers) separate from business logic",
	},
	SystemLibrary: {
		"avoid introducing a main package; this is a consumed library",
	},
}

// InjectConstraints appends sysType's mandatory constraints to existing,
// per spec.md §4.9 step 5.
func InjectConstraints(sysType SystemType, existing []string) []string {
	return append(append([]string{}, existing...), systemConstraints[sysType]...)
}

// Analyze produces a full Architectural Context for task+idea, per spec.md
// §4.9 steps 1-5.
func Analyze(task, idea string, existingConstraints []string) Context {
	sysType := DetectSystemType(task, idea)
	modules := SynthesizeModules(sysType)
	return Context{
		SystemType:            sysType,
		ArchitecturePattern:   PatternFor(sysType),
		Modules:               modules,
		FileOrganizationRules: FileOrganizationRules(modules),
		Constraints:           InjectConstraints(sysType, existingConstraints),
	}
}

// FallbackContext is the deterministic context used on analyzer failure,
// per spec.md §4.9's closing sentence.
func FallbackContext() Context {
	return Context{
		SystemType:            SystemWebApp,
		ArchitecturePattern:   patternForSystemType[SystemWebApp],
		Modules:               SynthesizeModules(SystemWebApp),
		FileOrganizationRules: map[string]string{},
		Constraints:           []string{},
	}
}

// roleKeywords maps a file-organization role to the words in a plan step's
// "what" description that indicate it, used by ValidateStepPlacement.
var roleKeywords = map[string][]string{
	"ui_components":  {"component", "ui", "page", "view"},
	"api_routes":     {"route", "endpoint", "handler", "controller"},
	"business_logic": {"service", "logic", "business"},
	"data_models":    {"model", "schema", "entity"},
}

// MatchRole returns the file-organization role implied by what, or "" if
// none of the role keywords appear.
func MatchRole(what string) string {
	lower := strings.ToLower(what)
	for role, keywords := range roleKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return role
			}
		}
	}
	return ""
}

// ValidateStepPlacement checks filePath against ctx's file-organization
// rules as implied by what. If the matched rule's base path isn't a
// prefix of filePath, it returns a rewritten path under that base path
// plus a note recording the original path, and ok=false to signal the
// rewrite happened. If no rule applies, or the path already matches, it
// returns the original path unchanged and ok=true.
func ValidateStepPlacement(filePath, what string, ctx Context) (newPath string, note string, ok bool) {
	role := MatchRole(what)
	if role == "" {
		return filePath, "", true
	}
	base, hasRule := ctx.FileOrganizationRules[role]
	if !hasRule {
		return filePath, "", true
	}
	if strings.HasPrefix(path.Clean(filePath), path.Clean(base)+"/") || path.Clean(filePath) == path.Clean(base) {
		return filePath, "", true
	}
	rewritten := path.Join(base, path.Base(filePath))
	note = "rewritten from " + filePath + " to satisfy " + role + " placement rule"
	return rewritten, note, false
}
