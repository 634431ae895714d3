// Package registry keeps validated piece schemas and opens resolution
// sessions for them.
//
// Responsibilities:
//   - Store only loads/saves one schema for one Ref.
//   - Registry validates registrations (schemas are immutable once
//     registered; re-registering the same Ref needs an identical digest)
//     and opens sessions against stored schemas.
//
// Data flow:
//
//	loader/props.NewSchema -> Registry.Register -> Store
//	Store -> Registry.Open -> props.Open(...) -> *props.Session
//
// Deterministic keys:
//
//	Ref.Identifier() renders `piece@version`, the key MemoryStore uses.
package registry
