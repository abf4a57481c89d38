package lsp

import "unicode/utf8"

func applyChanges(text string, changes []textDocumentContentChangeEvent) string {
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		start := offsetForPosition(text, change.Range.Start)
		end := offsetForPosition(text, change.Range.End)
		if end < start {
			end = start
		}
		text = text[:start] + change.Text + text[end:]
	}
	return text
}

// offsetForPosition переводит позицию LSP (UTF-16) в байтовый offset.
func offsetForPosition(text string, pos position) int {
	if pos.Line < 0 || pos.Character < 0 {
		return 0
	}
	line := 0
	i := 0
	for i < len(text) && line < pos.Line {
		if text[i] == '\n' {
			line++
		}
		i++
	}
	if line < pos.Line {
		return len(text)
	}
	units := 0
	for i < len(text) && text[i] != '\n' && units < pos.Character {
		r, size := utf8.DecodeRuneInString(text[i:])
		need := 1
		if r > 0xFFFF {
			need = 2
		}
		if units+need > pos.Character {
			break
		}
		units += need
		i += size
	}
	return i
}

// endPosition возвращает позицию конца текста для полной замены документа.
func endPosition(text string) position {
	var pos position
	for _, r := range text {
		switch {
		case r == '\n':
			pos.Line++
			pos.Character = 0
		case r > 0xFFFF:
			pos.Character += 2
		default:
			pos.Character++
		}
	}
	return pos
}

func fullRange(text string) lspRange {
	return lspRange{End: endPosition(text)}
}
