// Package content turns a note body plus its candidate audio blocks into the
// structures the rest of the system renders and synchronizes against.
package content

import (
	"log/slog"
	"sort"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/domain"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/placeholder"
)

// SegmentKind discriminates the two segment variants.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentAudio
)

// Segment is one typed span of a rendered note body: either a run of text or
// an audio attachment. A dangling placeholder (token whose block is missing
// from the candidates) degrades to a text segment holding the raw token.
type Segment struct {
	Kind  SegmentKind
	Text  string
	Block domain.AudioBlock
}

// Segments produces the read-mode rendering of text against candidates.
//
// An empty body with candidate blocks is a note that is all attachments and
// no text scaffold: one audio segment per candidate, in the given order.
func Segments(text string, candidates []domain.AudioBlock) []Segment {
	if text == "" {
		segs := make([]Segment, 0, len(candidates))
		for _, b := range candidates {
			segs = append(segs, Segment{Kind: SegmentAudio, Block: b})
		}
		return segs
	}

	byID := make(map[int64]domain.AudioBlock, len(candidates))
	for _, b := range candidates {
		byID[b.ID] = b
	}

	var segs []Segment
	appendText := func(s string) {
		if s != "" {
			segs = append(segs, Segment{Kind: SegmentText, Text: s})
		}
	}

	pos := 0
	for _, m := range placeholder.FindAll(text) {
		appendText(text[pos:m.Start])
		if b, ok := byID[m.ID]; ok {
			segs = append(segs, Segment{Kind: SegmentAudio, Block: b})
		} else {
			// Dangling reference: show the raw token instead of failing.
			slog.Debug("dangling audio placeholder", "id", m.ID)
			appendText(text[m.Start:m.End])
		}
		pos = m.End
	}
	appendText(text[pos:])
	return segs
}

// ReferencedBlocks filters pending down to the blocks whose id appears as a
// token in text, ordered by the first occurrence of each block's own token.
// This is the live-edit "attached audio" view; it is recomputed after every
// mutation so the displayed list never diverges from the text.
//
// Persisted order is a different rule: the gateway reassigns a dense
// orderIndex in filtered-list order at save time.
func ReferencedBlocks(text string, pending []domain.AudioBlock) []domain.AudioBlock {
	referenced := placeholder.ReferencedIDs(text)

	kept := make([]domain.AudioBlock, 0, len(pending))
	firstAt := make(map[int64]int, len(pending))
	for _, b := range pending {
		if !referenced[b.ID] {
			continue
		}
		kept = append(kept, b)
		firstAt[b.ID] = placeholder.FirstIndex(text, b.ID)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return firstAt[kept[i].ID] < firstAt[kept[j].ID]
	})
	return kept
}
