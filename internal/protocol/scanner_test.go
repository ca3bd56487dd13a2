package protocol

import "testing"

func TestParseAdd(t *testing.T) {
	op := Parse("+alpha one")
	if op.Kind != KindAdd || op.Key != "alpha" || op.Value != "one" {
		t.Fatalf("Parse(+alpha one) = %+v", op)
	}
}

func TestParseAddValueWithSpaces(t *testing.T) {
	op := Parse("+alpha one two three")
	if op.Kind != KindAdd || op.Value != "one two three" {
		t.Fatalf("Parse value with spaces = %+v", op)
	}
}

func TestParseRemove(t *testing.T) {
	op := Parse("-alpha")
	if op.Kind != KindRemove || op.Key != "alpha" {
		t.Fatalf("Parse(-alpha) = %+v", op)
	}
}

func TestParseRead(t *testing.T) {
	op := Parse("$alpha")
	if op.Kind != KindRead || op.Key != "alpha" {
		t.Fatalf("Parse($alpha) = %+v", op)
	}
}

func TestParseReadRemove(t *testing.T) {
	op := Parse("!alpha")
	if op.Kind != KindReadRemove || op.Key != "alpha" {
		t.Fatalf("Parse(!alpha) = %+v", op)
	}
}

func TestParseWatch(t *testing.T) {
	op := Parse("*alpha #7")
	if op.Kind != KindWatch || op.Key != "alpha" || op.Tag != "7" || op.RepublishKey != "" {
		t.Fatalf("Parse(*alpha #7) = %+v", op)
	}
}

func TestParseWatchWithRepublish(t *testing.T) {
	op := Parse("*a #1 +b")
	if op.Kind != KindWatch || op.Key != "a" || op.Tag != "1" || op.RepublishKey != "b" {
		t.Fatalf("Parse(*a #1 +b) = %+v", op)
	}
}

func TestParseWatchOnce(t *testing.T) {
	op := Parse("@beta #2")
	if op.Kind != KindWatchOnce || op.Key != "beta" || op.Tag != "2" {
		t.Fatalf("Parse(@beta #2) = %+v", op)
	}
}

func TestParseUnknownOpcode(t *testing.T) {
	op := Parse("?nonsense")
	if op.Kind != KindError {
		t.Fatalf("Parse(?nonsense).Kind = %v; want KindError", op.Kind)
	}
}

func TestParseWatchMissingTag(t *testing.T) {
	op := Parse("*alpha")
	if op.Kind != KindError {
		t.Fatalf("Parse(*alpha).Kind = %v; want KindError", op.Kind)
	}
}

func TestParseWatchMalformedRepublish(t *testing.T) {
	op := Parse("*a #1 b")
	if op.Kind != KindError {
		t.Fatalf("Parse(*a #1 b).Kind = %v; want KindError", op.Kind)
	}
}

func TestParseReplayStripsTimestamp(t *testing.T) {
	op := ParseReplay("1706000000 +alpha one")
	if op.Kind != KindAdd || op.Key != "alpha" || op.Value != "one" {
		t.Fatalf("ParseReplay = %+v", op)
	}
}

func TestParseReplayStripsTimestampWithMillis(t *testing.T) {
	op := ParseReplay("1706000000.123 -alpha")
	if op.Kind != KindRemove || op.Key != "alpha" {
		t.Fatalf("ParseReplay = %+v", op)
	}
}

func TestParseReplayMalformed(t *testing.T) {
	op := ParseReplay("nodelimiterhere")
	if op.Kind != KindError {
		t.Fatalf("ParseReplay(nodelimiterhere).Kind = %v; want KindError", op.Kind)
	}
}
