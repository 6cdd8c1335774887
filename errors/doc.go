// Package errors provides classified error handling for mavrouter.
//
// # Classification
//
// Every error that crosses a package boundary is one of three classes:
//
//   - Transient: I/O timeouts, missing UDP peer, cancelled contexts. Readers swallow
//     these per poll cycle; writers return them to the immediate caller.
//   - Invalid: the caller referenced something that does not exist or asked for
//     something the registry refuses (duplicate name, unknown link, routing cycle).
//   - Fatal: the resource itself is gone (closed socket, unplugged device).
//
// # Wrapping
//
// Wrap produces messages of the form "component.method: action failed: cause" and keeps
// the cause reachable through errors.Is:
//
//	if err := t.Start(ctx); err != nil {
//	    return errors.WrapInvalid(errors.ErrOpenFailed, "Router", "Add", "transport start")
//	}
//
// Sentinels such as ErrDuplicateName and ErrUnknownLink are matched with errors.Is
// regardless of how many wrapping layers sit on top of them.
package errors
