// Package cmd implements the talc subcommands: render, compile, key, code
// and init.
//
// Commands receive their shared state through [context.Context]. The cli
// package stores the parsed [kong.Context] with [WithContext] and the
// cache, module registry and output writer with [WithEnv].
//
// A template's globals and modules are declared in an HCL manifest:
//
//	modules = ["strings"]
//	globals = {
//	  title  = string
//	  people = list(object({name = string, age = number}))
//	}
//
// When no manifest is named, a file next to the template with the suffix
// ".hcl" is used if it exists. Render values are read from YAML or JSON.
package cmd

var (
	// CacheIdentifier is the kong variable identifier containing the path to
	// the runtime cache directory.
	CacheIdentifier = "cacheDir"

	// ConfigIdentifier is the kong variable identifier containing the path of
	// the HCL configuration file.
	ConfigIdentifier = "config"

	// MaxDepthIdentifier is the kong variable identifier containing the
	// default limit on nested macro expansion.
	MaxDepthIdentifier = "maxDepth"
)
