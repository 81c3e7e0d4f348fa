package envutil

import (
	"testing"
	"time"
)

func TestEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("KRT_TEST_INT", "nope")
	t.Setenv("KRT_TEST_BOOL", "maybe")
	t.Setenv("KRT_TEST_MS", "-5")

	if got := Int("KRT_TEST_INT", 7); got != 7 {
		t.Fatalf("Int: want=7 got=%d", got)
	}
	if got := Bool("KRT_TEST_BOOL", true); !got {
		t.Fatalf("Bool: want=true got=%v", got)
	}
	if got := Millis("KRT_TEST_MS", time.Second); got != time.Second {
		t.Fatalf("Millis: want=1s got=%s", got)
	}
}

func TestEnvHelpersParse(t *testing.T) {
	t.Setenv("KRT_TEST_INT", " 42 ")
	t.Setenv("KRT_TEST_BOOL", "off")
	t.Setenv("KRT_TEST_SECONDS", "30")
	t.Setenv("KRT_TEST_LIST", "a, ,b")

	if got := Int("KRT_TEST_INT", 0); got != 42 {
		t.Fatalf("Int: want=42 got=%d", got)
	}
	if got := Bool("KRT_TEST_BOOL", true); got {
		t.Fatalf("Bool: want=false got=%v", got)
	}
	if got := Seconds("KRT_TEST_SECONDS", 0); got != 30*time.Second {
		t.Fatalf("Seconds: want=30s got=%s", got)
	}
	if got := List("KRT_TEST_LIST", nil); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("List: got=%v", got)
	}
}
