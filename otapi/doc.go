// Package otapi provides Go proxies for Open-Transactions storable records.
//
// Each proxy type mirrors one native class and holds one handle per level of
// its inheritance chain, obtained by upcasting at construction:
//
//	si, _ := otapi.NewServerInfo(table)  // owning
//	defer si.Release()
//
//	_ = si.SetServerID("srv-1")
//	_ = si.SetGUILabel("Main server")
//
// # Ownership
//
// NewServerInfo and NewContactNym return owning proxies. Wrap functions take
// an explicit owns flag. Casts and container accessors return non-owning
// views. Releasing a view never destroys the record.
//
// Adding a ServerInfo to a ContactNym transfers ownership to the container:
// the proxy stops owning the record and pins the container, so the container
// cannot be finalized while the element proxy is reachable.
//
// # Release
//
// Release clears the ownership flag before destroying, then zeroes the
// handle at every level. After Release, accessors return an error matching
// errors.ErrUseAfterRelease. A proxy whose record was destroyed elsewhere,
// for example by its container, reports errors.ErrStaleHandle instead.
//
// A finalizer releases proxies that become unreachable without Release and
// logs a warning for owning ones. It is a fallback only.
//
// # Casts
//
//	view, err := otapi.CastServerInfo(obj)
//	if err != nil { ... }
//	if view == nil {
//	    // obj is nil, released, or not a ServerInfo
//	}
//
// # Logging
//
// Configure logging with SetLogger before creating proxies:
//
//	otapi.SetLogger(zapLogger)
package otapi
