package lockorder

import "testing"

func TestLevelOrdering(t *testing.T) {
	if !(LevelGlobal < LevelIndex && LevelIndex < LevelTable &&
		LevelTable < LevelRecord && LevelRecord < LevelMetadata) {
		t.Fatal("lock levels out of order")
	}
}

func TestLevelString(t *testing.T) {
	cases := map[Level]string{
		LevelGlobal:   "global",
		LevelIndex:    "index",
		LevelTable:    "table",
		LevelRecord:   "record",
		LevelMetadata: "metadata",
		Level(99):     "unknown",
	}
	for level, expected := range cases {
		if level.String() != expected {
			t.Fatalf("expected %q, got %q", expected, level.String())
		}
	}
}

func TestDistance(t *testing.T) {
	if Distance(LevelGlobal, LevelMetadata) != 4 {
		t.Fatal("expected distance 4")
	}
	if Distance(LevelMetadata, LevelGlobal) != 4 {
		t.Fatal("distance must be symmetric")
	}
	if Distance(LevelRecord, LevelRecord) != 0 {
		t.Fatal("expected distance 0")
	}
}
