// Package web3 houses blockchain connectivity utilities shared by the
// deployment commands: the chain client abstraction, transaction signers,
// and conversion of textual arguments into ABI-typed values.
package web3
