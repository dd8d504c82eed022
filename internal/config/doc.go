// Package config loads the lsrwactl JSON configuration and resolves the
// secrets it references from the process environment and an optional .env
// file. Defaults mirror the network, compiler, and explorer settings the
// contract was originally deployed with.
package config
