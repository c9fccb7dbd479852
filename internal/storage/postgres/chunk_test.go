package postgres

import (
	"reflect"
	"testing"
)

func TestChunkBoundsSingleChunk(t *testing.T) {
	got := chunkBounds(100, 9)

	want := [][2]int{{0, 100}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("bounds mismatch: %+v != %+v", got, want)
	}
}

func TestChunkBoundsSplits(t *testing.T) {
	// 9 fields per row allows 7281 rows per statement.
	got := chunkBounds(15000, 9)

	want := [][2]int{{0, 7281}, {7281, 14562}, {14562, 15000}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("bounds mismatch: %+v != %+v", got, want)
	}
}

func TestChunkBoundsParamCeiling(t *testing.T) {
	for _, fields := range []int{3, 4, 6, 7, 9} {
		for _, bound := range chunkBounds(100000, fields) {
			params := (bound[1] - bound[0]) * fields
			if params >= maxStatementParams {
				t.Fatalf("chunk %v with %d fields binds %d params", bound, fields, params)
			}
		}
	}
}

func TestChunkBoundsEmpty(t *testing.T) {
	if got := chunkBounds(0, 9); got != nil {
		t.Fatalf("expected nil bounds, got %+v", got)
	}
}

func TestChunkBoundsCoverAllRows(t *testing.T) {
	total := 33333
	covered := 0
	prevEnd := 0
	for _, bound := range chunkBounds(total, 6) {
		if bound[0] != prevEnd {
			t.Fatalf("gap before chunk %+v", bound)
		}
		covered += bound[1] - bound[0]
		prevEnd = bound[1]
	}
	if covered != total {
		t.Fatalf("chunks cover %d rows, want %d", covered, total)
	}
}
