package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := Wrap("tcgplayer", CodeNetwork, "fetch pricing page", errors.New("connection reset")).WithHTTP(502)

	out := err.Error()
	for _, want := range []string{"tcgplayer", "network", "http=502", "fetch pricing page", "connection reset"} {
		if !strings.Contains(out, want) {
			t.Fatalf("error string missing %q: %s", want, out)
		}
	}
}

func TestCodeOfThroughWrapping(t *testing.T) {
	inner := New("cardkingdom", CodeRateLimited, "throttled").WithHTTP(429)
	wrapped := fmt.Errorf("provider run: %w", inner)

	if CodeOf(wrapped) != CodeRateLimited {
		t.Fatalf("expected rate_limited code, got %q", CodeOf(wrapped))
	}
	if StatusOf(wrapped) != 429 {
		t.Fatalf("expected status 429, got %d", StatusOf(wrapped))
	}
}

func TestCodeOfForeignError(t *testing.T) {
	if CodeOf(errors.New("plain")) != "" {
		t.Fatal("plain errors should yield empty code")
	}
	if IsNetwork(errors.New("plain")) {
		t.Fatal("plain errors are not network errors")
	}
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap("cardmarket", CodeParse, "decode guide", cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause should satisfy errors.Is")
	}
}
