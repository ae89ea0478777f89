package ports

// PasswordHasher produces and checks one-way salted password hashes
type PasswordHasher interface {
	Hash(password string) (string, error)

	// Verify reports whether password matches storedHash. It never fails loudly:
	// malformed hashes simply do not match.
	Verify(password, storedHash string) bool
}
