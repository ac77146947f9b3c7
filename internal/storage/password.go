package storage

import "golang.org/x/crypto/bcrypt"

// HashPassword creates a bcrypt hash of a room password. An empty password
// hashes to the empty string, marking an open room.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext room password against a stored hash.
// An empty stored hash marks an open room and matches only an empty
// password; guessing a secret at an open room is still a wrong password.
func CheckPassword(password, hash string) bool {
	if hash == "" {
		return password == ""
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
