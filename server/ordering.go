package main

// reorderIDs applies a requested order to the current sequence. Requested ids
// that are not in current are dropped; current ids the request omits keep their
// relative order at the end.
func reorderIDs(current, requested []string) []string {
	exists := make(map[string]bool, len(current))
	for _, id := range current {
		exists[id] = true
	}
	out := make([]string, 0, len(current))
	seen := make(map[string]bool, len(current))
	for _, id := range requested {
		if exists[id] && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	for _, id := range current {
		if !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	return out
}

// removeID drops every occurrence of id, matching by value.
func removeID(seq []string, id string) []string {
	out := make([]string, 0, len(seq))
	for _, v := range seq {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// insertID places id at index; a negative or past-the-end index appends.
// It returns the new sequence and the index actually used.
func insertID(seq []string, id string, index int) ([]string, int) {
	if index < 0 || index > len(seq) {
		index = len(seq)
	}
	out := make([]string, 0, len(seq)+1)
	out = append(out, seq[:index]...)
	out = append(out, id)
	out = append(out, seq[index:]...)
	return out, index
}
