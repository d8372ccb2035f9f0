package protocol

import "strings"

// MaxRecordSize bounds how far SplitRecords looks for the end of one
// record. Longer text is never split further.
const MaxRecordSize = 1024

var discriminators = []string{
	TypeCommand + FieldSep,
	TypePerfUpdate + FieldSep,
	TypeFileStart + FieldSep,
	FileOK,
	FileCancel,
}

// separators is the exact number of FieldSep in a complete record of each
// kind; sentinels have none.
var separators = map[string]int{
	TypeCommand + FieldSep:    1,
	TypePerfUpdate + FieldSep: 8,
	TypeFileStart + FieldSep:  2,
}

// SplitRecords separates control records that arrived coalesced in a single
// read. A split is made only where a discriminator starts and the text before
// it is itself a complete, well-formed known record; anything else stays
// joined so it is interpreted exactly as one record.
func SplitRecords(text string) []string {
	var out []string
	for {
		cut := nextBoundary(text)
		if cut < 0 {
			return append(out, text)
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
}

// nextBoundary returns the end of the first record in text, or -1 when text
// is a single record. It walks forward once and gives up as soon as no
// longer prefix could still be a complete record.
func nextBoundary(text string) int {
	lead := leadingDiscriminator(text)
	if lead == "" {
		return -1
	}

	want, fielded := separators[lead]
	if !fielded {
		// sentinels are complete only when matched exactly
		if len(text) > len(lead) && leadingDiscriminator(text[len(lead):]) != "" {
			return len(lead)
		}
		return -1
	}

	seps := 1
	limit := min(len(text), MaxRecordSize+1)
	for i := len(lead); i < limit; i++ {
		if text[i] == FieldSep[0] {
			seps++
		}
		if seps > want {
			return -1
		}
		next := i + 1
		if seps == want && next < len(text) && leadingDiscriminator(text[next:]) != "" && completeRecord(text[:next]) {
			return next
		}
	}
	return -1
}

func leadingDiscriminator(text string) string {
	for _, d := range discriminators {
		if strings.HasPrefix(text, d) {
			return d
		}
	}
	return ""
}

func completeRecord(text string) bool {
	ctl, err := ParseControl(text)
	return err == nil && ctl.Kind != KindUnknown
}
