package crypto

import "crypto/subtle"

// Wipe overwrites b with zeros. Best-effort: copies made by the runtime
// or by callers are not reached.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	zero := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zero)
}
