package model

import "testing"

func TestMergeVariantLists_KeepsNonEmptyURLs(t *testing.T) {
	stored := []SongVariant{
		{ID: "v1", AudioURL: "https://cdn/v1.mp3", StreamAudioURL: "https://cdn/v1-stream.mp3"},
	}
	incoming := []SongVariant{
		{ID: "v1", AudioURL: "", StreamAudioURL: ""},
	}

	merged := MergeVariantLists(stored, incoming)

	if len(merged) != 1 {
		t.Fatalf("expected 1 variant, got %d", len(merged))
	}
	if merged[0].AudioURL != "https://cdn/v1.mp3" {
		t.Errorf("empty incoming audioUrl overwrote stored value: %q", merged[0].AudioURL)
	}
	if merged[0].StreamAudioURL != "https://cdn/v1-stream.mp3" {
		t.Errorf("empty incoming streamAudioUrl overwrote stored value: %q", merged[0].StreamAudioURL)
	}
}

func TestMergeVariantLists_UpgradesFields(t *testing.T) {
	stored := []SongVariant{
		{ID: "v1", StreamAudioURL: "https://cdn/v1-stream.mp3"},
	}
	incoming := []SongVariant{
		{ID: "v1", AudioURL: "https://cdn/v1.mp3", StreamAudioURL: "https://cdn/v1-stream.mp3", Duration: 182.4},
	}

	merged := MergeVariantLists(stored, incoming)

	if merged[0].AudioURL != "https://cdn/v1.mp3" {
		t.Errorf("expected audioUrl to be set, got %q", merged[0].AudioURL)
	}
	if merged[0].Duration != 182.4 {
		t.Errorf("expected duration 182.4, got %v", merged[0].Duration)
	}
}

func TestMergeVariantLists_AppendsNewVariantsInOrder(t *testing.T) {
	stored := []SongVariant{{ID: "v1"}}
	incoming := []SongVariant{{ID: "v2"}, {ID: "v3"}}

	merged := MergeVariantLists(stored, incoming)

	if len(merged) != 3 {
		t.Fatalf("expected 3 variants, got %d", len(merged))
	}
	if merged[1].ID != "v2" || merged[2].ID != "v3" {
		t.Errorf("provider order not preserved: %v, %v", merged[1].ID, merged[2].ID)
	}
}

func TestMergeVariantLists_SkipsVariantsWithoutID(t *testing.T) {
	merged := MergeVariantLists(nil, []SongVariant{{AudioURL: "https://cdn/x.mp3"}})

	if len(merged) != 0 {
		t.Errorf("expected variant without id to be rejected, got %d variants", len(merged))
	}
}

func TestMergeVariantLists_DoesNotMutateStored(t *testing.T) {
	stored := []SongVariant{{ID: "v1", AudioURL: "https://cdn/v1.mp3"}}
	_ = MergeVariantLists(stored, []SongVariant{{ID: "v1", Title: "Birthday Song"}})

	if stored[0].Title != "" {
		t.Error("merge mutated the stored slice")
	}
}
