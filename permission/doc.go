// Package permission maps permission names to bits and roles to permission sets.
//
// A [Registry] assigns each name a stable bit in a 64-bit [Mask]; a [RoleTable] freezes
// role definitions on top of it. Tokens carry permission names, and servers turn them
// back into a mask with [Registry.MaskOf] for constant-time checks.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import goGateway, jwt, or session.
package permission
