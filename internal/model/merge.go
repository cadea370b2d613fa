package model

// MergeVariantLists merges incoming variant snapshots into the stored list.
// Variants are matched by provider-assigned id; unknown ids are appended in
// the order the provider returned them. Per field, an incoming value only
// replaces the stored one when it does not reduce informational completeness:
// a non-empty stored URL is never overwritten by an empty one, so a partial
// or flaky poll can never demote a variant that already reached
// download-ready or stream-ready.
func MergeVariantLists(stored, incoming []SongVariant) []SongVariant {
	merged := make([]SongVariant, len(stored))
	copy(merged, stored)

	index := make(map[string]int, len(merged))
	for i, v := range merged {
		index[v.ID] = i
	}

	for _, in := range incoming {
		if in.ID == "" {
			continue
		}
		i, ok := index[in.ID]
		if !ok {
			merged = append(merged, in)
			index[in.ID] = len(merged) - 1
			continue
		}
		merged[i] = mergeVariant(merged[i], in)
	}

	return merged
}

func mergeVariant(stored, in SongVariant) SongVariant {
	out := stored
	out.AudioURL = keepNonEmpty(stored.AudioURL, in.AudioURL)
	out.SourceAudioURL = keepNonEmpty(stored.SourceAudioURL, in.SourceAudioURL)
	out.StreamAudioURL = keepNonEmpty(stored.StreamAudioURL, in.StreamAudioURL)
	out.SourceStreamAudioURL = keepNonEmpty(stored.SourceStreamAudioURL, in.SourceStreamAudioURL)
	out.ImageURL = keepNonEmpty(stored.ImageURL, in.ImageURL)
	out.Title = keepNonEmpty(stored.Title, in.Title)
	out.Prompt = keepNonEmpty(stored.Prompt, in.Prompt)
	out.Tags = keepNonEmpty(stored.Tags, in.Tags)
	out.ModelName = keepNonEmpty(stored.ModelName, in.ModelName)
	if in.CreateTime != 0 {
		out.CreateTime = in.CreateTime
	}
	if in.Duration != 0 {
		out.Duration = in.Duration
	}
	return out
}

func keepNonEmpty(stored, in string) string {
	if in == "" {
		return stored
	}
	return in
}
