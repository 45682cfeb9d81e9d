// Package config provides secure Lua policy configuration parsing for
// machport.
//
// # Overview
//
// A policy file tells machport which filesystem prefixes mark a library as
// bundlable ("bad" prefixes, typically package-manager roots) and which mark
// it as part of the operating system ("system" prefixes, never copied). It
// also carries run options such as the convergence pass budget. The file is
// optional; built-in defaults match the common Homebrew/MacPorts layout.
//
// # Schema
//
// Policy files are Lua, executed in a restricted sandbox with a read-only
// platform table injected for conditionals:
//
//	machport = {
//	  prefixes = {
//	    bad    = { "/usr/local", "/opt" },
//	    system = { "/usr", "/System" },
//	  },
//	  options = {
//	    max_passes   = 10,    -- convergence pass budget
//	    max_depth    = 20,    -- dependency walk depth cap
//	    max_links    = 10,    -- symlink chain length cap
//	    strict_rpath = false, -- abort on @rpath with no rpath entries
//	  },
//	}
//
// # Security Model
//
// User Lua code runs in a sandbox that removes os, io, require/dofile/
// loadfile/load/loadstring, and the debug library. String, table, and math
// libraries remain available. Policy files are size-limited and parsed under
// a context deadline (5 seconds by default).
//
// # Validation
//
// Every prefix must be an absolute path with no ".." component; all caps
// must be positive and bounded. Validation failures are reported as
// *ValidationError with the offending field named.
//
// # Related Packages
//
//   - internal/platform: platform table injection for conditionals
//   - internal/resolve: consumes the prefix policy for classification
package config
