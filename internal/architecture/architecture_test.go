package architecture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectSystemTypeFullstack(t *testing.T) {
	assert.Equal(t, SystemFullstackWebApp, DetectSystemType("build a React frontend with a Flask backend", ""))
}

func TestDetectSystemTypeCLI(t *testing.T) {
	assert.Equal(t, SystemCLITool, DetectSystemType("write a command line tool to rename files", ""))
}

func TestDetectSystemTypeAPIService(t *testing.T) {
	assert.Equal(t, SystemAPIService, DetectSystemType("expose REST endpoints for order management", ""))
}

func TestDetectSystemTypeLibrary(t *testing.T) {
	assert.Equal(t, SystemLibrary, DetectSystemType("publish a reusable parsing library package", ""))
}

func TestDetectSystemTypeFallsBackToWebApp(t *testing.T) {
	assert.Equal(t, SystemWebApp, DetectSystemType("do something vague", ""))
}

func TestSynthesizeModulesFullstack(t *testing.T) {
	modules := SynthesizeModules(SystemFullstackWebApp)
	assert.Len(t, modules, 2)
	assert.Equal(t, "frontend", modules[0].Name)
	assert.Equal(t, "backend", modules[1].Name)
	assert.Contains(t, modules[0].Languages, "javascript")
	assert.Contains(t, modules[1].Languages, "python")
}

func TestFileOrganizationRules(t *testing.T) {
	modules := SynthesizeModules(SystemFullstackWebApp)
	rules := FileOrganizationRules(modules)
	assert.Equal(t, "frontend/src/components", rules["ui_components"])
	assert.Equal(t, "backend/api", rules["api_routes"])
	assert.Equal(t, "backend/services", rules["business_logic"])
	assert.Equal(t, "backend/models", rules["data_models"])
}

func TestInjectConstraintsAppendsSystemSpecific(t *testing.T) {
	got := InjectConstraints(SystemFullstackWebApp, []string{"existing constraint"})
	assert.Contains(t, got, "existing constraint")
	assert.Contains(t, got, "never mix frontend and backend code in the same file")
}

func TestAnalyzeProducesFullContext(t *testing.T) {
	ctx := Analyze("build a React frontend with a Flask backend", "", nil)
	assert.Equal(t, SystemFullstackWebApp, ctx.SystemType)
	assert.Equal(t, "layered_frontend_backend", ctx.ArchitecturePattern)
	assert.NotEmpty(t, ctx.Modules)
	assert.NotEmpty(t, ctx.Constraints)
}

func TestFallbackContextIsDeterministic(t *testing.T) {
	a := FallbackContext()
	b := FallbackContext()
	assert.Equal(t, a, b)
	assert.Equal(t, SystemWebApp, a.SystemType)
}

func TestValidateStepPlacementRewritesMismatchedPath(t *testing.T) {
	ctx := Analyze("build a React frontend with a Flask backend", "", nil)
	newPath, note, ok := ValidateStepPlacement("Login.jsx", "add a login component", ctx)
	assert.False(t, ok)
	assert.Equal(t, "frontend/src/components/Login.jsx", newPath)
	assert.NotEmpty(t, note)
}

func TestValidateStepPlacementLeavesMatchingPathAlone(t *testing.T) {
	ctx := Analyze("build a React frontend with a Flask backend", "", nil)
	newPath, note, ok := ValidateStepPlacement("frontend/src/components/Login.jsx", "add a login component", ctx)
	assert.True(t, ok)
	assert.Equal(t, "frontend/src/components/Login.jsx", newPath)
	assert.Empty(t, note)
}

func TestValidateStepPlacementNoRuleLeavesPathAlone(t *testing.T) {
	ctx := Analyze("build a React frontend with a Flask backend", "", nil)
	newPath, _, ok := ValidateStepPlacement("README.md", "update project documentation", ctx)
	assert.True(t, ok)
	assert.Equal(t, "README.md", newPath)
}
