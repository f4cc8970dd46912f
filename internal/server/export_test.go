package server

// StatusFor is exported for testing.
func StatusFor(err error) (int, string) {
	h := statusFor(err)
	return h.status, h.message
}
