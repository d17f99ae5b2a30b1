package flaghash

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	hashed, err := Hash("flag{test}")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if !Verify("flag{test}", hashed) {
		t.Errorf("Verify() = false for matching flag")
	}
	if Verify("flag{wrong}", hashed) {
		t.Errorf("Verify() = true for wrong flag")
	}
}

func TestHashEmptyFlag(t *testing.T) {
	if _, err := Hash(""); err != ErrEmptyFlag {
		t.Errorf("Hash(\"\") error = %v, want ErrEmptyFlag", err)
	}
}

func TestVerifyEmptyStoredHash(t *testing.T) {
	if Verify("flag{test}", "") {
		t.Errorf("Verify() = true for empty stored hash")
	}
}

func TestVerifyLegacySHA256(t *testing.T) {
	sum := sha256.Sum256([]byte("flag{legacy}"))
	stored := hex.EncodeToString(sum[:])

	if !Verify("flag{legacy}", stored) {
		t.Errorf("Verify() = false for legacy sha256 digest")
	}
	if Verify("flag{other}", stored) {
		t.Errorf("Verify() = true for wrong flag against legacy digest")
	}
}
