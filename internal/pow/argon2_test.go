package pow

import (
	"strconv"
	"testing"

	"golang.org/x/crypto/argon2"
)

// tiny params keep the tests fast; production uses far higher cost.
var testParams = Params{TimeCost: 1, MemoryCost: 8 * 1024, Parallelism: 1}

func solveForTest(t *testing.T, seed, visitorID, traceData string, difficulty int) (uint64, string) {
	t.Helper()
	for nonce := uint64(0); nonce < 200000; nonce++ {
		secret := []byte(strconv.FormatUint(nonce, 10))
		salt := []byte(seed + visitorID + traceData)
		raw := argon2.IDKey(secret, salt, testParams.TimeCost, testParams.MemoryCost, testParams.Parallelism, hashLen)
		if leadingZeroBitCount(raw) >= difficulty {
			return nonce, hexEncode(raw)
		}
	}
	t.Fatalf("failed to find a solution under test bound")
	return 0, ""
}

func TestVerify_AcceptsValidSolution(t *testing.T) {
	seed, visitorID, trace := "seed123", "v1", "ip=1.2.3.4\n"
	nonce, hash := solveForTest(t, seed, visitorID, trace, 4)

	valid, reason := Verify(nonce, seed, visitorID, trace, hash, 4, testParams)
	if !valid {
		t.Fatalf("expected valid solution, got reason=%q", reason)
	}
}

func TestVerify_RejectsWrongHash(t *testing.T) {
	seed, visitorID, trace := "seed123", "v1", "ip=1.2.3.4\n"
	nonce, _ := solveForTest(t, seed, visitorID, trace, 1)

	valid, reason := Verify(nonce, seed, visitorID, trace, "deadbeef", 1, testParams)
	if valid {
		t.Fatalf("expected invalid solution to be rejected")
	}
	if reason != "Hash mismatch" {
		t.Fatalf("expected Hash mismatch reason, got %q", reason)
	}
}

func TestVerify_RejectsInsufficientDifficulty(t *testing.T) {
	seed, visitorID, trace := "seed123", "v1", "ip=1.2.3.4\n"
	nonce, hash := solveForTest(t, seed, visitorID, trace, 1)

	// The same correct hash, but we demand far more leading zero bits than
	// it has: the hash matches but the difficulty check must still fail.
	valid, reason := Verify(nonce, seed, visitorID, trace, hash, 64, testParams)
	if valid {
		t.Fatalf("expected difficulty check to reject an easy solution")
	}
	if reason == "Hash mismatch" {
		t.Fatalf("expected a difficulty-requirement reason, not a hash mismatch")
	}
}

func TestLeadingZeroBitCount_AllZero(t *testing.T) {
	zero := make([]byte, hashLen)
	if got := leadingZeroBitCount(zero); got != hashLen*8 {
		t.Fatalf("all-zero hash: got %d leading zero bits, want %d", got, hashLen*8)
	}
}

func TestLeadingZeroBitCount_HighBitSet(t *testing.T) {
	b := make([]byte, hashLen)
	b[0] = 0x80
	if got := leadingZeroBitCount(b); got != 0 {
		t.Fatalf("high bit set: got %d leading zero bits, want 0", got)
	}
}
