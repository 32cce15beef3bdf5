package updater

import "testing"

func TestLockStartsLocked(t *testing.T) {
	var l Lock
	if l.State() != Locked {
		t.Fatalf("State() = %v, want Locked", l.State())
	}
	if code := l.RequireUnlocked(); code != DeviceLocked {
		t.Fatalf("RequireUnlocked() = %v, want DeviceLocked", code)
	}
}

func TestUnlockViaProgramPinIgnoresUID(t *testing.T) {
	var l Lock
	var frameUID [12]byte
	var uid [16]byte
	for i := range frameUID {
		frameUID[i] = 0xFF // deliberately wrong
	}
	if code := l.Unlock(true, frameUID, uid); code != SUCCESS {
		t.Fatalf("Unlock() = %v, want SUCCESS", code)
	}
	if l.State() != Unlocked {
		t.Fatal("expected Unlocked after program-pin unlock")
	}
}

func TestUnlockViaMatchingUIDPrefix(t *testing.T) {
	var l Lock
	uid := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 0xAA, 0xBB, 0xCC, 0xDD}
	var frameUID [12]byte
	copy(frameUID[:], uid[:12])

	if code := l.Unlock(false, frameUID, uid); code != SUCCESS {
		t.Fatalf("Unlock() = %v, want SUCCESS", code)
	}
	if l.State() != Unlocked {
		t.Fatal("expected Unlocked after matching UID")
	}
}

func TestUnlockRejectsMismatchedUID(t *testing.T) {
	var l Lock
	uid := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 0xAA, 0xBB, 0xCC, 0xDD}
	frameUID := [12]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 99} // last byte wrong

	if code := l.Unlock(false, frameUID, uid); code != UIDMismatch {
		t.Fatalf("Unlock() = %v, want UIDMismatch", code)
	}
	if l.State() != Locked {
		t.Fatal("a mismatched UID must not unlock the device")
	}
}

func TestUnlockChecksEveryByteWithoutShortCircuiting(t *testing.T) {
	// Two frames each with exactly one wrong byte, in different
	// positions, must both fail identically — nothing about the
	// comparison may stop early at the first mismatch.
	uid := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 0, 0, 0, 0}

	first := [12]byte{99, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	last := [12]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 99}

	var l1, l2 Lock
	c1 := l1.Unlock(false, first, uid)
	c2 := l2.Unlock(false, last, uid)
	if c1 != UIDMismatch || c2 != UIDMismatch {
		t.Fatalf("Unlock() = %v, %v, want UIDMismatch for both", c1, c2)
	}
}
