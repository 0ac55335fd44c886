// Package click adapts the merchant-callback payment protocol: a single
// POST endpoint driven by a two-phase action code (0 = prepare,
// 1 = complete), authenticated by an MD5 sign string over the callback
// fields and a shared secret. Responses are flat JSON echoes with
// provider-defined negative error codes.
package click
