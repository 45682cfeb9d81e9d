// Package macho wraps the platform binary tooling machport depends on:
// reading a Mach-O binary's load commands (dependency references, rpath
// entries, self-identity) and patching recorded references in place.
//
// The two concerns are split into the Introspector and Patcher interfaces so
// the closure and rewrite logic can be exercised against in-memory fakes
// without requiring macOS tooling. The production implementations are a
// go-macho based reader and an install_name_tool wrapper.
package macho
