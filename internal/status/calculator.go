// Package status derives generation status from variant snapshots.
// Everything here is pure: no I/O, no clock, no state.
package status

import "github.com/songgift/api/internal/model"

// Result is the outcome of a calculation over a variant set
type Result struct {
	Overall                  model.GenerationStatus
	Variants                 []model.VariantStatus
	HasAnyStreamReady        bool
	HasAnyDownloadReady      bool
	AllVariantsDownloadReady bool
}

// Of classifies a single variant from the presence of its URL fields.
// A download URL implies stream capability.
func Of(v model.SongVariant) model.VariantStatus {
	switch {
	case v.AudioURL != "" || v.SourceAudioURL != "":
		return model.VariantDownloadReady
	case v.StreamAudioURL != "" || v.SourceStreamAudioURL != "":
		return model.VariantStreamReady
	default:
		return model.VariantPending
	}
}

// Calculate derives the overall status and per-variant statuses for a variant
// set. It never yields StatusFailed: failure is decided by the reconciliation
// engine from explicit provider errors, not from variant data. An empty
// variant set is pending. Inputs are trusted as-is; regression protection
// happens at merge time, not here.
func Calculate(variants []model.SongVariant) Result {
	res := Result{
		Overall:  model.StatusPending,
		Variants: make([]model.VariantStatus, len(variants)),
	}

	allDownload := len(variants) > 0
	for i, v := range variants {
		vs := Of(v)
		res.Variants[i] = vs

		switch vs {
		case model.VariantDownloadReady:
			res.HasAnyDownloadReady = true
			res.HasAnyStreamReady = true
		case model.VariantStreamReady:
			res.HasAnyStreamReady = true
			allDownload = false
		default:
			allDownload = false
		}
	}
	res.AllVariantsDownloadReady = allDownload

	switch {
	case res.AllVariantsDownloadReady:
		res.Overall = model.StatusCompleted
	case res.HasAnyStreamReady:
		res.Overall = model.StatusStreamAvailable
	}

	return res
}
