package config

// Lua schema field names and globals
const (
	luaGlobalMachport    = "machport"
	luaFieldPrefixes     = "prefixes"
	luaFieldBad          = "bad"
	luaFieldSystem       = "system"
	luaFieldOptions      = "options"
	luaFieldMaxPasses    = "max_passes"
	luaFieldMaxDepth     = "max_depth"
	luaFieldMaxLinks     = "max_links"
	luaFieldStrictRpath  = "strict_rpath"
)

// Parsing limits
const (
	// maxConfigSize bounds policy file size to prevent memory exhaustion.
	maxConfigSize = 1 << 20 // 1MB

	// maxPrefixCount bounds the number of prefixes per list.
	maxPrefixCount = 256

	// maxPrefixLen bounds a single prefix string.
	maxPrefixLen = 1024
)

// Option bounds. Caps are generous; they exist to catch typos like
// max_passes = 100000, not to constrain real bundles.
const (
	maxPassBudget  = 100
	maxDepthBudget = 200
	maxLinkBudget  = 100
)
