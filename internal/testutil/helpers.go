package testutil

import "math/rand"

// GenerateData returns size bytes from a seeded source, so failures are reproducible.
func GenerateData(seed int64, size int) []byte {
	r := rand.New(rand.NewSource(seed)) //nolint:gosec // test data
	data := make([]byte, size)
	_, _ = r.Read(data)
	return data
}
