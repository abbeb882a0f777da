// Package history keeps the session state shared by every detection entry
// point: the capped list of recent results, running statistics, the
// user-adjustable detection settings and the in-flight flag.
//
// # Results
//
// Results are stored newest first and capped at a configurable limit
// (DefaultLimit). Statistics are running averages over every result ever
// added since the last Clear, including results that have since been pushed
// out of the capped list.
//
// # Settings
//
// Settings are updated with partial patches; nil fields in a SettingsPatch
// leave the current value untouched. ResetSettings restores the values the
// Store was created with.
//
// # Thread Safety
//
// Store is safe for concurrent use. Returned slices and structs are copies
// and may be modified by the caller.
package history
