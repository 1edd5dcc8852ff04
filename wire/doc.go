// Package wire implements the typed binary codec framework used by every
// gamewire message.
//
// A Codec is compiled once per Go type (a Descriptor) by picking the first
// Strategy that accepts the type. The strategy returns an encode and a decode
// closure; closures for nested types capture the already compiled sub-codecs,
// so steady-state encoding never looks at the strategy list again.
//
//	Registry.Get(desc) ──► cached? ──yes──► *Codec
//	                         │
//	                         no (compile mutex held)
//	                         ▼
//	           Compiler: strategies[0..n].CanHandle(desc)
//	                         │ first match
//	                         ▼
//	           PlanEncode / PlanDecode ──► Resolve(elem) (recursive)
//
// Sequence frame (slices and strings):
//
//	┌──────────────┬────────────────────────────────┐
//	│ count int16  │ count elements, no separators   │
//	└──────────────┴────────────────────────────────┘
//
// When the element is a single byte the elements are one raw byte run. A
// count below 1 decodes to the empty sequence and nothing else is consumed.
// That leniency matches what deployed clients send for "no elements"; new
// message types should not rely on negative counts.
package wire
