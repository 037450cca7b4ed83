package utils

import "golang.org/x/crypto/bcrypt"

// HashServiceKey returns the bcrypt hash operators put in service.key_hash.
func HashServiceKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckServiceKey compares a presented key with its bcrypt hash.
func CheckServiceKey(hash, key string) bool {
	if hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
