package rowan

import "errors"

// ErrClassNotFound is returned by CallMain when the main class name was
// never interned by a prior Load (spec §6 "Host entry point"); a name
// that is interned but is not a linked class yields ResolveStatic's
// error instead.
// Fatal link-time failures surface as *linker.LinkError directly from
// Load, since that type already carries the class name and unresolved
// set a caller needs; this package adds only the sentinels for errors
// CallMain itself can raise before reaching the linker at all.
var ErrClassNotFound = errors.New("rowan: main class not found")

// ErrMethodNotFound is returned by CallMain when the main method name
// was never interned by a prior Load; a name that is interned (by any
// class, method, member or string constant) but is not a static method
// of the main class yields ResolveStatic's error instead.
var ErrMethodNotFound = errors.New("rowan: main method not found")
