package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable creates a read-only platform table and injects it into
// the Lua state as a global. This should be called before loading any user
// policy code, so that policy files can use platform conditionals:
//
//	machport = {
//	  prefixes = {
//	    bad = {
//	      "/opt",
//	      platform.is_arm64 and "/opt/homebrew" or "/usr/local",
//	    },
//	  },
//	}
func InjectPlatformTable(L *lua.LState, info *Info) error {
	platformTable := L.NewTable()

	// Basic OS and architecture
	L.SetField(platformTable, "os", lua.LString(info.OS))
	L.SetField(platformTable, "arch", lua.LString(info.Arch))
	L.SetField(platformTable, "arch_raw", lua.LString(info.ArchRaw))

	// OS booleans
	L.SetField(platformTable, "is_macos", lua.LBool(info.IsMacOS()))
	L.SetField(platformTable, "is_linux", lua.LBool(info.IsLinux()))

	// Architecture booleans
	L.SetField(platformTable, "is_amd64", lua.LBool(info.IsAMD64()))
	L.SetField(platformTable, "is_arm64", lua.LBool(info.IsARM64()))
	L.SetField(platformTable, "is_apple_silicon", lua.LBool(info.IsAppleSilicon()))

	// macOS product version (empty string when unknown or non-macOS)
	L.SetField(platformTable, "macos_version", lua.LString(info.Version))

	// Helper function: when(condition, value)
	// Returns value if condition is true, nil otherwise
	whenFunc := L.NewFunction(func(L *lua.LState) int {
		cond := L.CheckBool(1)
		value := L.Get(2)
		if cond {
			L.Push(value)
		} else {
			L.Push(lua.LNil)
		}
		return 1
	})
	L.SetField(platformTable, "when", whenFunc)

	// Make the table read-only using a proxy table with metatable
	readOnlyTable := makeReadOnly(L, platformTable)

	L.SetGlobal("platform", readOnlyTable)

	return nil
}

// makeReadOnly makes a Lua table read-only by creating a proxy table with a
// metatable. The proxy redirects reads to the original table but prevents
// all writes.
func makeReadOnly(L *lua.LState, table *lua.LTable) *lua.LTable {
	mt := L.NewTable()

	// Redirect reads to the original table
	L.SetField(mt, "__index", table)

	// Prevent all writes (both new and existing keys)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("platform table is read-only and cannot be modified")
		return 0
	}))

	// Prevent changing the metatable itself
	L.SetField(mt, "__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)

	return proxy
}
