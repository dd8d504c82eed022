// Package mysql persists the deployment journal: one record per deployment,
// contract call, ownership transfer or verification. Records live either in
// an append-only JSON lines file or in MySQL with embedded schema migrations.
package mysql
