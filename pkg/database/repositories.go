// Copyright 2025 Certen Protocol
//
// Repositories - Convenience wrapper for all database repositories
// Provides a single point of access to all repository types

package database

// Repositories holds all repository instances
type Repositories struct {
	Signers *SignerRepository
	Nonces  *NonceRepository
	Jobs    *JobRepository
	UTXOs   *UTXORepository
	Audit   *AuditRepository
}

// NewRepositories creates all repositories with the given client
func NewRepositories(client *Client) *Repositories {
	return &Repositories{
		Signers: NewSignerRepository(client),
		Nonces:  NewNonceRepository(client),
		Jobs:    NewJobRepository(client),
		UTXOs:   NewUTXORepository(client),
		Audit:   NewAuditRepository(client),
	}
}
