package analysis

import "fmt"

// Module is one analysis category.
type Module string

// Supported analysis modules.
const (
	ModuleSEO      Module = "seo"
	ModuleAudit    Module = "audit"
	ModuleContent  Module = "content"
	ModuleSocial   Module = "social"
	ModuleEmail    Module = "email"
	ModuleContact  Module = "contact"
	ModuleBrochure Module = "brochure"

	// ModuleCompetitors compares the target site against competitor
	// sites. It needs multiple page fetches, so it runs only through
	// its own synchronous endpoint and is not part of a complete job.
	ModuleCompetitors Module = "competitors"
)

// AllModules returns every module in a fixed order. A "complete" job
// schedules exactly this set.
func AllModules() []Module {
	return []Module{
		ModuleSEO,
		ModuleAudit,
		ModuleContent,
		ModuleSocial,
		ModuleEmail,
		ModuleContact,
		ModuleBrochure,
	}
}

// ParseModule validates a client-supplied module name.
func ParseModule(name string) (Module, error) {
	m := Module(name)
	for _, known := range AllModules() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModule, name)
}
